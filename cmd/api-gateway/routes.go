package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	terms   *handler.AdmissionTermHandler
	forms   *handler.AdmissionFormHandler
	classes *handler.ClassHandler
	ops     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", h.ops.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.ForwardBearer())

	terms := api.Group("/admission-terms")
	terms.POST("", h.terms.Create)
	terms.GET("/active", h.terms.GetActive)
	terms.GET("/:id", h.terms.Get)
	terms.POST("/items/:itemId/start", h.terms.StartItem)
	terms.POST("/items/:itemId/end", h.terms.EndItem)

	forms := api.Group("/admission-forms")
	forms.POST("", h.forms.Submit)
	forms.GET("/:id", h.forms.Get)
	forms.POST("/:id/decision", h.forms.Decide)
	forms.POST("/:id/payment", h.forms.BeginPayment)

	classes := api.Group("/classes")
	classes.POST("", h.classes.Create)
	classes.POST("/select", h.classes.Select)
	classes.GET("/:id", h.classes.Get)

	return r
}
