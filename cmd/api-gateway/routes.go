package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	timetables *handler.TimetableHandler
	slots      *handler.SlotHandler
	exceptions *handler.ExceptionHandler
	metrics    *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, tokens middleware.TokenValidator, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", h.metrics.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(tokens))
	read := middleware.RequireRoles(middleware.ReaderRoles...)
	write := middleware.RequireRoles(middleware.WriterRoles...)

	timetables := api.Group("/timetables")
	timetables.GET("", read, h.timetables.List)
	timetables.POST("", write, h.timetables.Create)
	timetables.GET("/active", read, h.timetables.GetActive)
	timetables.GET("/:id", read, h.timetables.Get)
	timetables.PATCH("/:id", write, h.timetables.Rename)
	timetables.DELETE("/:id", write, h.timetables.Delete)
	timetables.POST("/:id/activate", write, h.timetables.Activate)
	timetables.GET("/:id/slots", read, h.slots.List)
	timetables.POST("/:id/slots", write, h.slots.Create)
	timetables.GET("/:id/occurrences", read, h.exceptions.DayOccurrences)

	slots := api.Group("/slots")
	slots.GET("/:id", read, h.slots.Get)
	slots.PATCH("/:id", write, h.slots.Update)
	slots.DELETE("/:id", write, h.slots.Delete)
	slots.GET("/:id/exceptions", read, h.exceptions.List)
	slots.PUT("/:id/exceptions/:date", write, h.exceptions.Upsert)
	slots.DELETE("/:id/exceptions/:date", write, h.exceptions.Delete)
	slots.GET("/:id/occurrences/:date", read, h.exceptions.Resolve)

	return r
}
