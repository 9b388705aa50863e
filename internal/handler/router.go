package handler

import (
	"net/http"

	"github.com/SergeiKhy/link-registry/internal/metrics"
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter собирает маршруты. apiKeyMiddleware nil означает, что управляющие
// эндпоинты открыты; gatherer nil отключает /metrics.
func NewRouter(
	linkHandler *LinkHandler,
	rateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RequestMetrics(m))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found"})
	})

	limited := []gin.HandlerFunc{}
	if rateLimiter != nil {
		limited = append(limited, rateLimiter.Middleware())
	}

	// API v.1
	v1 := router.Group("/api/v1", limited...)
	{
		v1.GET("/health", linkHandler.Health)
		v1.GET("/info", linkHandler.Info)

		v1.POST("/shorten", linkHandler.Shorten)
		v1.POST("/bulk", linkHandler.Bulk)
		v1.GET("/redirect/:shortCode", linkHandler.Redirect)
		v1.GET("/analytics/:shortCode", linkHandler.Analytics)
		v1.GET("/qr/:shortCode", linkHandler.QRCode)

		// API Key middleware только для управляющих эндпоинтов
		admin := v1.Group("/links")
		if apiKeyMiddleware != nil {
			admin.Use(apiKeyMiddleware)
		}
		admin.POST("/:shortCode/deactivate", linkHandler.Deactivate)
		admin.POST("/:shortCode/activate", linkHandler.Activate)
	}

	// Переход из браузера
	router.GET("/s/:shortCode", append(limited, linkHandler.Follow)...)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Swagger документация (без аутентификации)
	AddSwaggerRoutes(router)

	return router
}
