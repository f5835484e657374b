package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"lims/internal/logger"
)

const (
	requestIDKey       = "requestID"
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

// RequestLogging returns a Gin middleware that assigns each request an ID and
// logs method, path, status code, latency, and client IP using Zap. The ID is
// taken from X-Request-ID when the caller sends one, else from the active
// trace, else generated.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := requestIDFor(c)
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		logger.Get().Infow("request",
			"request_id", requestID,
			"user_id", c.GetString(UserIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func requestIDFor(c *gin.Context) string {
	if id := c.GetHeader(requestIDHeader); id != "" && len(id) <= maxRequestIDLength {
		return id
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
