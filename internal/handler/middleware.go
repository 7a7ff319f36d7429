package handler

import (
	"net/http"
	"time"

	"pointsystem/internal/metrics"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware writes one access log line per request.
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path = path + "?" + query
		}

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Info("[HTTP]", fields...)
	}
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("[PANIC]", zap.Any("panic", p), zap.String("path", c.Request.URL.Path), zap.Stack("stack"))
				response.ServerError(c, "internal server error")
			}
		}()
		c.Next()
	}
}

// MetricsMiddleware records request count and latency by route template.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// CORSMiddleware allows any origin and answers preflight requests with 204.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
