package app

import (
	"fmt"
	"net/http"
	"time"

	"gamelend/apperr"
	"gamelend/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxLogger       = "logger"
)

// RequestLogger tags each request with an id, attaches a scoped logger to
// the request context and logs one line when the request starts and one
// when it completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(ctxLogger, log)

		ctx := log.WithRequestID(c.Request.Context(), id)
		ctx = log.WithFields(ctx, map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		c.Request = c.Request.WithContext(ctx)
		log.Debug(ctx, "request.start")

		start := time.Now()
		c.Next()

		// handlers may have added fields (user id) to the request context
		done := log.WithFields(c.Request.Context(), map[string]any{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		log.Info(done, "request.complete")
	}
}

// LoggerFrom returns the logger installed by RequestLogger.
func LoggerFrom(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.Nop()
}

// Recovery turns a panic into the standard internal error envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				err := apperr.Wrap(apperr.CodeInternal, fmt.Errorf("panic: %v", rec), "internal server error")
				if c.Writer.Written() {
					LoggerFrom(c).Error(c.Request.Context(), "request.panic", err)
					c.AbortWithStatus(http.StatusInternalServerError)
					return
				}
				WriteError(c, err)
			}
		}()
		c.Next()
	}
}
