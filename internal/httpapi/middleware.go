package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// requestIDHeader is the header both read from an inbound request and
// echoed on the response, matching the convention of the request-id
// middleware this is grounded on.
const requestIDHeader = "X-Request-ID"
const requestIDContextKey = "request_id"

// RequestID attaches a correlation id to every request: the client's own
// id if it supplied one via X-Request-ID, otherwise a freshly generated
// UUID. The id is stored in the gin context (for ZapLogger to pick up) and
// echoed back on the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ZapLogger logs one structured line per request: method, route, status,
// latency, client IP, and the request id RequestID attached.
func ZapLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDContextKey)),
		)
	}
}
