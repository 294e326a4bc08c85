package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/restaurant/backend/internal/application/access"
	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/infrastructure/auth"
	"github.com/restaurant/backend/internal/infrastructure/cache"
	"github.com/restaurant/backend/internal/infrastructure/config"
	"github.com/restaurant/backend/internal/infrastructure/event"
	"github.com/restaurant/backend/internal/infrastructure/logger"
	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"github.com/restaurant/backend/internal/interfaces/http/handler"
	"github.com/restaurant/backend/internal/interfaces/http/middleware"
	"github.com/restaurant/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// maxRequestBody caps JSON bodies; the API only accepts small command payloads
const maxRequestBody = 1 << 20

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.FromAppConfig(cfg.App, cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting restaurant back-office API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:           cfg.Telemetry.TracingEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	profiler, err := telemetry.NewContinuousProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start continuous profiler", zap.Error(err))
	}
	if cfg.Profiling.SpanProfiles && profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	sink := telemetry.NewMeterSink(meterProvider.Meter(telemetry.MeterName), telemetry.WithSinkLogger(log))
	opProfiler := telemetry.NewOperationProfiler(sink,
		telemetry.WithTracer(tracerProvider.Tracer(telemetry.TracerName)))

	// Query cache
	store, err := cache.NewStoreFactory(cfg.Redis, cfg.Cache, cache.WithLogger(log)).CreateStore()
	if err != nil {
		log.Fatal("Failed to create cache store", zap.Error(err))
	}
	gateway := cache.NewGateway(store,
		cache.WithGatewayLogger(log),
		cache.WithGatewayMetrics(sink))
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Error("Error closing cache store", zap.Error(err))
		}
	}()

	var cachePinger cache.Pinger
	if redisStore, ok := store.(*cache.RedisStore); ok {
		cachePinger = redisStore
	}

	// Domain events
	bus := event.NewBus(event.WithLogger(log))
	event.Subscribe(bus, authz.EventTypeModuleAccessChanged, "audit-log",
		func(ctx context.Context, e *authz.ModuleAccessChangedEvent) error {
			logger.FromContext(ctx).Info("Module access changed",
				zap.String("event_id", e.EventID().String()),
				zap.String("user_id", e.UserID.String()))
			return nil
		})
	bus.Seal()

	// Authorization
	resolver, err := authz.NewPolicyResolver(authz.WithPolicyCacheSize(cfg.Authz.PolicyCacheSize))
	if err != nil {
		log.Fatal("Failed to create policy resolver", zap.Error(err))
	}
	jwtService := auth.NewJWTService(cfg.JWT)

	// Request pipeline
	registry := dispatch.NewRegistry()
	access.NewService(resolver).Register(registry)
	dispatcher, err := registry.Build(dispatch.Options{
		Logger:          log,
		Profiler:        opProfiler,
		Publisher:       bus,
		Cache:           gateway,
		DefaultCacheTTL: cfg.Cache.DefaultTTL,
		AbsentCacheTTL:  cfg.Cache.AbsentTTL,
	}, access.Required()...)
	if err != nil {
		log.Fatal("Failed to build request dispatcher", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	// Request ID first so every later middleware and log line can use it
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.TracingEnabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	if profiler.IsEnabled() {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.HTTPMetrics(middleware.DefaultHTTPMetricsConfig(sink)))
	engine.Use(middleware.CORS(cfg.HTTP.CORSOrigins))
	engine.Use(middleware.Secure(cfg.HTTP.HSTSMaxAge))
	engine.Use(middleware.BodyLimit(maxRequestBody))

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log
	r := router.NewRouter(engine, router.WithAPIMiddleware(
		middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
		middleware.TracingAttributeInjector(),
	))
	r.RegisterRoot(handler.NewSystemHandler(cfg.App.Name, cfg.App.Version, cachePinger))
	r.Register(handler.NewAccessHandler(dispatcher, resolver, cfg.Cache.DefaultTTL))
	r.Setup()

	log.Debug("Routes registered", zap.Strings("routes", r.Routes()))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Profiler shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
