// Package storage fatura dosyalarını yerel diske yazar.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore dosyaları Dir altına yazar, PublicPrefix ile URL döndürür.
type LocalStore struct {
	Dir          string
	PublicPrefix string
}

func NewLocalStore(dir, publicPrefix string) *LocalStore {
	return &LocalStore{
		Dir:          dir,
		PublicPrefix: "/" + strings.Trim(publicPrefix, "/"),
	}
}

// Save dosyayı önce geçici isimle yazar, sonra yeniden adlandırır; yarım dosya kalmaz.
func (s *LocalStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	// Klasörü oluştur (yoksa)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("klasör oluşturulamadı: %w", err)
	}

	final := filepath.Join(s.Dir, name)
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("dosya zaten var: %s", name)
	}

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("dosya oluşturulamadı: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("dosya yazılamadı: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("dosya kapatılamadı: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("dosya taşınamadı: %w", err)
	}

	return path.Join(s.PublicPrefix, name), nil
}

// Delete Save'in döndürdüğü URL'i alır. Olmayan dosya hata sayılmaz.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := strings.TrimPrefix(url, s.PublicPrefix)
	name, err := cleanName(strings.TrimPrefix(rel, "/"))
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dosya silinemedi: %w", err)
	}
	return nil
}

// Path URL'in diskteki yolunu döndürür.
func (s *LocalStore) Path(url string) (string, error) {
	name, err := cleanName(strings.TrimPrefix(strings.TrimPrefix(url, s.PublicPrefix), "/"))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, name), nil
}

func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("geçersiz dosya adı: %q", name)
	}
	return name, nil
}
