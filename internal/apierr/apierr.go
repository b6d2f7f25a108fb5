// Package apierr servis hatalarını HTTP cevaplarına çevirir.
package apierr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"insaat-backend/internal/finance"
	"insaat-backend/internal/logging"

	"github.com/gofiber/fiber/v2"
)

// FromFinance finance sentinel hatalarını fiber.Error'a çevirir; bilinmeyenler 500 olarak kalır.
func FromFinance(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, finance.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, message(err, finance.ErrNotFound))
	case errors.Is(err, finance.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, message(err, finance.ErrInvalidInput))
	case errors.Is(err, finance.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, message(err, finance.ErrConflict))
	}
	return err
}

// message "not found: project 3" -> "project 3 bulunamadı" gibi kısa bir metin üretir.
func message(err, sentinel error) string {
	detail := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	switch sentinel {
	case finance.ErrNotFound:
		return fmt.Sprintf("Kayıt bulunamadı: %s", detail)
	case finance.ErrConflict:
		return fmt.Sprintf("Çakışma: %s", detail)
	default:
		return fmt.Sprintf("Geçersiz istek: %s", detail)
	}
}

// ErrorHandler tüm hataları {"error": "..."} olarak döndürür.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		err = FromFinance(err)
		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		logging.FromCtx(c, logger).Error("Unexpected error", logging.FieldError, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Beklenmeyen sunucu hatası",
		})
	}
}

// ParamID path parametresini pozitif id olarak okur.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Geçersiz %s", name))
	}
	return uint(id), nil
}

// QueryID opsiyonel id query parametresini okur; boşsa 0 döner.
func QueryID(c *fiber.Ctx, name string) (uint, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s geçersiz", name))
	}
	return uint(id), nil
}
