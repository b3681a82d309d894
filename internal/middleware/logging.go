package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autovpn-backend/internal/pkg/logger"
)

// RequestLogger replaces gin.Logger with one line per request on zap.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	z := log.Zap()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			z.Error("request", fields...)
		case c.Writer.Status() >= 400:
			z.Warn("request", fields...)
		default:
			z.Info("request", fields...)
		}
	}
}
