package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/metrics"
	"realtime_chat/pkg/logger"
)

func RequestLogger(log logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, statusCode, latency)

		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		}
		if userID := UserID(c); userID != "" {
			args = append(args, "user_id", userID)
		}

		switch {
		case statusCode >= 500:
			log.Error("Request failed", args...)
		case statusCode >= 400:
			log.Warn("Request rejected", args...)
		default:
			log.Debug("Request handled", args...)
		}
	}
}
