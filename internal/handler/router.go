package handler

import (
	"net/http"

	"pointsystem/internal/metrics"
	"pointsystem/internal/service"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter builds the HTTP engine. gatherer may be nil to leave /metrics out.
func SetupRouter(pointService *service.PointService, m *metrics.Metrics, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(m))
	r.Use(CORSMiddleware())

	h := NewHandler(pointService, log)

	point := r.Group("/point")
	{
		point.GET("/:id", h.GetPoint)
		point.POST("/:id", h.Open)
		point.GET("/:id/histories", h.GetHistories)
		point.GET("/:id/usable", h.Usable)
		point.PATCH("/:id/charge", h.Charge)
		point.PATCH("/:id/use", h.Use)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "route not found")
	})

	return r
}
