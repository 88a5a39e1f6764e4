package middleware

import (
	"fmt"
	"time"

	appErr "codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"
	"codeverifier/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLogMiddleware logs one line per request once the handler chain returns.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("size", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			logger.Warn(c.Request.Context(), "request served", fields...)
			return
		}
		logger.Info(c.Request.Context(), "request served", fields...)
	}
}

// RecoveryMiddleware turns handler panics into a coded 500.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "handler panic", zap.Any("panic", recovered))
		response.AbortWithError(c, appErr.InternalError(fmt.Errorf("panic: %v", recovered)))
	})
}
