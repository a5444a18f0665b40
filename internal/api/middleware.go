package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an ID and logs method, path, status
// and latency on completion.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		log := logger.L().With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
		if len(c.Errors) > 0 {
			log.Error("request failed", "errors", c.Errors.String())
		} else if c.Writer.Status() >= 500 {
			log.Error("request failed")
		} else {
			log.Info("request handled")
		}
	}
}
