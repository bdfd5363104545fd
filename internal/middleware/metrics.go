// Package middleware holds the Gin middleware shared by every session API
// route. internal/api/router.go registers it ahead of the handlers.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rasterscope/rasterscope/internal/telemetry"
)

// noRoute labels requests that matched no route template.
const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and
// http_request_duration_seconds for every request.
//
// The path label is the matched route template (c.FullPath()), so layer ids
// in URLs such as /api/v1/session/layers/:id never become label values.
// Register it after gin.Recovery() so recovered panics are counted as 500s.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
