package logging

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

const ctxLoggerKey = "logger"

// Middleware assigns a request id, stores a request-scoped logger in the
// fiber locals and logs one line per request.
func Middleware(logger *Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(HeaderRequestID, requestID)

		reqLogger := logger.With(FieldRequestID, requestID)
		c.Locals(ctxLoggerKey, reqLogger)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		attrs := []any{
			FieldMethod, c.Method(),
			FieldPath, c.Path(),
			FieldStatusCode, status,
			FieldDuration, time.Since(start).Milliseconds(),
			FieldClientIP, c.IP(),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			reqLogger.Error("request failed", append(attrs, FieldError, errString(err))...)
		case status >= fiber.StatusBadRequest:
			reqLogger.Warn("request rejected", append(attrs, FieldError, errString(err))...)
		default:
			reqLogger.Info("request completed", attrs...)
		}
		return err
	}
}

// FromCtx returns the request-scoped logger, or fallback when none is set.
func FromCtx(c *fiber.Ctx, fallback *Logger) *Logger {
	if l, ok := c.Locals(ctxLoggerKey).(*Logger); ok && l != nil {
		return l
	}
	return fallback
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
