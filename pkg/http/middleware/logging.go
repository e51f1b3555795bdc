package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradeCast/pkg/logger"
)

// Paths hit by scrapers and probes clutter the request log.
var quietPaths = map[string]bool{
	"/metrics": true,
	"/healthz": true,
}

// RequestLogging emits one structured line per request.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			if quietPaths[req.URL.Path] {
				return err
			}

			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, logger.Error(err))
				l.Warn("http request", fields...)
				return err
			}
			l.Info("http request", fields...)
			return nil
		}
	}
}
