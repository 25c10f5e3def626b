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
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/sma-admission-api/api/swagger"
	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/bus"
	"github.com/noah-isme/sma-admission-api/pkg/cache"
	"github.com/noah-isme/sma-admission-api/pkg/clock"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/database"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
	"github.com/noah-isme/sma-admission-api/pkg/tracing"
	"github.com/noah-isme/sma-admission-api/pkg/upstream"
)

// @title SMA Admission API
// @version 1.0.0
// @description Admission terms, admission forms, class builder and payment-driven enrollment
// @BasePath /api/v1
// @schemes http

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()
	clk := clock.Real{}

	termRepo := repository.NewAdmissionTermRepository(db)
	formRepo := repository.NewAdmissionFormRepository(db)
	classRepo := repository.NewClassRepository(db)
	syllabusRepo := repository.NewSyllabusRepository(db)
	paymentRepo := repository.NewProcessedPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "admission:cache:", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Upstream.ProfileCacheTTL, logr, true)
	identity := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.IdentityBaseURL,
		Timeout:        cfg.Upstream.Timeout,
		MaxRetries:     cfg.Upstream.MaxRetries,
		InitialBackoff: cfg.Upstream.InitialBackoff,
		MaxBackoff:     cfg.Upstream.MaxBackoff,
		Logger:         logr,
	})
	directory := service.NewDirectoryService(identity, cacheSvc, cfg.Upstream.ProfileCacheTTL, metrics, logr)

	termSvc := service.NewAdmissionTermService(termRepo, clk, metrics, validate, logr)
	formSvc := service.NewAdmissionFormService(formRepo, termRepo, directory, clk, metrics, validate, logr)
	classSvc := service.NewClassService(classRepo, syllabusRepo, directory, clk, validate, logr)

	streams := bus.NewRedisStreams(redisClient, bus.StreamConfig{
		Group:        cfg.Bus.Group,
		Consumer:     cfg.Bus.Consumer,
		BlockTimeout: cfg.Bus.BlockTimeout,
		ClaimIdle:    cfg.Bus.ClaimIdle,
		Workers:      cfg.Bus.Workers,
		Retries:      cfg.Bus.Retries,
		Logger:       logr,
	})
	saga := service.NewEnrollmentSaga(db, termRepo, classRepo, paymentRepo, streams, formSvc, service.EnrollmentSagaConfig{
		ClassCapacity: cfg.Admission.ClassCapacity,
		ResultStream:  cfg.Bus.ClassResultStream,
	}, metrics, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, logr, metrics, routeHandlers{
		terms:   handler.NewAdmissionTermHandler(termSvc),
		forms:   handler.NewAdmissionFormHandler(formSvc),
		classes: handler.NewClassHandler(classSvc),
		ops: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Admission.PollersEnabled {
		locker := cache.NewLocker(redisClient, "admission:lock:")
		pollers := []*jobs.Periodic{
			jobs.NewPeriodic("admission-term-status", termSvc.AdvanceTick, jobs.PeriodicConfig{
				Interval:       cfg.Admission.TermPollInterval,
				LockTTL:        cfg.Admission.LockTTL,
				Locker:         locker,
				Observer:       metrics,
				Logger:         logr,
				RunImmediately: true,
			}),
			jobs.NewPeriodic("admission-form-expiry", formSvc.ExpireTick, jobs.PeriodicConfig{
				Interval: cfg.Admission.FormExpiryInterval,
				LockTTL:  cfg.Admission.LockTTL,
				Locker:   locker,
				Observer: metrics,
				Logger:   logr,
			}),
		}
		for _, poller := range pollers {
			poller := poller
			g.Go(func() error { return poller.Run(gctx) })
		}
	}

	if cfg.Bus.ConsumersEnabled {
		subscriptions := map[string]bus.Handler{
			cfg.Bus.PaymentSuccessStream: saga.PaymentSuccessHandler(),
			cfg.Bus.PaymentTimeoutStream: saga.PaymentTimeoutHandler(),
			cfg.Bus.ClassResultStream:    formSvc.ClassResultHandler(),
		}
		for stream, h := range subscriptions {
			stream, h := stream, h
			g.Go(func() error { return streams.Subscribe(gctx, stream, h) })
		}
	}

	return g.Wait()
}
