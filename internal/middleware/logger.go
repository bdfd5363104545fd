package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware emits one slog record per request. Server errors log at
// error level, client errors at warn, the rest at info. Requests whose path
// starts with one of skipPaths (health probes, for example) are not logged.
//
// The output format follows the default slog handler installed by
// telemetry.SetupLogger.
func LoggerMiddleware(skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		for _, p := range skipPaths {
			if strings.HasPrefix(path, p) {
				return
			}
		}

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.String("query", query),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", RequestID(c)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
