package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=insaat port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	LogLevel    string

	// Fatura (PDF) dosyalarının kaydedileceği klasör ve dışarıya açılan URL öneki
	InvoiceUploadPath   string
	InvoicePublicPrefix string

	// Redis boşsa özet cache devre dışı
	RedisAddr       string
	SummaryCacheTTL time.Duration

	// AMQP boşsa bütçe uyarıları yayınlanmaz
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	RepairWorkers int
}

// Load .env dosyasını (varsa) okur, ardından ortam değişkenlerinden config üretir.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		InvoiceUploadPath:   getEnv("INVOICE_UPLOAD_PATH", "./uploads/invoices"),
		InvoicePublicPrefix: getEnv("INVOICE_PUBLIC_PREFIX", "/uploads/invoices"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		SummaryCacheTTL: getEnvDuration("SUMMARY_CACHE_TTL", 10*time.Minute),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "insaat"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "budget_alerts"),

		RepairWorkers: getEnvInt("REPAIR_WORKERS", 4),
	}

	if cfg.DatabaseDSN == defaultDSN {
		slog.Warn("DATABASE_DSN varsayılan değer kullanılıyor, production için kendi Postgres bağlantı bilgisini tanımla")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		slog.Warn("CORS_ALLOWED_ORIGINS varsayılan değer kullanılıyor, production için kendi domain'ini tanımla")
	}

	return cfg
}

// Validate tüm hataları toplayıp tek seferde döndürür.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.HTTPPort); err != nil {
		problems = append(problems, fmt.Sprintf("invalid HTTP_PORT '%s': must be a number", c.HTTPPort))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid HTTP_PORT %d: must be between 1 and 65535", port))
	}

	if c.DatabaseDSN == "" {
		problems = append(problems, "DATABASE_DSN cannot be empty")
	}

	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters")
	}

	if c.InvoiceUploadPath == "" {
		problems = append(problems, "INVOICE_UPLOAD_PATH cannot be empty")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP_URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP_EXCHANGE cannot be empty when AMQP_URL is set")
		}
		if c.AMQPRoutingKey == "" {
			problems = append(problems, "AMQP_ROUTING_KEY cannot be empty when AMQP_URL is set")
		}
	}

	if c.SummaryCacheTTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid SUMMARY_CACHE_TTL %v: must be at least 1 second", c.SummaryCacheTTL))
	}

	if c.RepairWorkers < 1 || c.RepairWorkers > 64 {
		problems = append(problems, fmt.Sprintf("invalid REPAIR_WORKERS %d: must be between 1 and 64", c.RepairWorkers))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// CORSOriginList virgülle ayrılmış origin listesini temizleyip döndürür.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
