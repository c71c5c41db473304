// Package middleware carries the echo middleware shared by the api server.
package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

type Option func(*emw.RequestLoggerConfig)

// Logger emits one slog line per request. Handler errors are logged at
// error level after the global error handler has mapped them to a status.
func Logger(opts ...Option) echo.MiddlewareFunc {
	cfg := requestLoggerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return emw.RequestLoggerWithConfig(cfg)
}

func requestLoggerConfig() emw.RequestLoggerConfig {
	return emw.RequestLoggerConfig{
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v emw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(context.Background(), level, "http request", attrs...)
			return nil
		},
	}
}
