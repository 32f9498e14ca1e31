package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorHandler turns the first error attached to the context into a JSON
// response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors[0].Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]FieldError, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, FieldError{
					Field:   fe.Field(),
					Message: fe.Error(),
				})
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{Error: fields})
			return
		}

		var ae APIError
		if errors.As(err, &ae) {
			c.AbortWithStatusJSON(ae.StatusCode, Response{Error: ae.Message})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{Error: err.Error()})
	}
}

// RequestLogger logs each request at debug level, and failed ones at warn.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request failed", append(attrs, "err", c.Errors.String())...)
			return
		}
		logger.Debug("request served", attrs...)
	}
}
