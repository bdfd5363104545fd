package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request identifier.
	RequestIDKey = "request_id"

	// maxRequestIDLen caps identifiers accepted from callers so log lines stay bounded.
	maxRequestIDLen = 128
)

// RequestIDMiddleware tags every request with an identifier. A usable
// X-Request-ID sent by the caller is kept; otherwise a UUID v4 is generated.
// The identifier is stored under RequestIDKey and echoed in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the identifier assigned to the request, or "" when
// RequestIDMiddleware did not run.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// validRequestID accepts non-empty printable ASCII up to maxRequestIDLen.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
