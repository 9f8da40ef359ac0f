package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly timetables with conflict-checked slots and single-date exceptions.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(newCacheRepository(cfg, logr), metrics, cfg.Timetable.CacheTTL, logr, cfg.Timetable.CacheEnabled)

	timetables := repository.NewTimetableRepository(db)
	slots := repository.NewTimetableSlotRepository(db)
	exceptions := repository.NewSlotExceptionRepository(db)
	years := repository.NewAcademicYearRepository(db)
	refs := repository.NewReferenceRepository(db)

	validate := dto.NewValidator()
	detector := service.NewConflictDetector(slots, metrics)

	handlers := routeHandlers{
		timetables: handler.NewTimetableHandler(service.NewTimetableService(timetables, years, db, cacheSvc, metrics, validate, logr)),
		slots:      handler.NewSlotHandler(service.NewSlotService(slots, timetables, years, refs, detector, exceptions, db, cacheSvc, validate, logr)),
		exceptions: handler.NewExceptionHandler(service.NewExceptionService(exceptions, slots, timetables, years, refs, metrics, validate, logr)),
		metrics:    handler.NewMetricsHandler(metrics, db),
	}

	r := newRouter(cfg, logr, service.NewTokenService(cfg.JWT.Secret), metrics, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env, "cache", cacheSvc.Enabled())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// newCacheRepository connects Redis when caching is enabled. A failed connection disables caching instead of
// stopping the server.
func newCacheRepository(cfg *config.Config, logr *zap.Logger) service.CacheRepository {
	if !cfg.Timetable.CacheEnabled {
		return nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
		return nil
	}
	return repository.NewCacheRepository(client, cfg.Timetable.CachePrefix, logr)
}
