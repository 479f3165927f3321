package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error as
// {"error": message}. Uncategorised errors are logged and hidden behind a
// generic 500.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := errors.HTTPStatusFromError(err)
		message := err.Error()
		if statusCode == http.StatusInternalServerError {
			log.Error("Unhandled request error", "error", err, "method", c.Request.Method, "path", c.FullPath())
			message = "internal server error"
		}

		c.JSON(statusCode, gin.H{
			"error": message,
		})
	}
}

// abortWithError stops the chain and leaves err for ErrorHandler.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
