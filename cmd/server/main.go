package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"

	"clinichire.app/scout/common/id"
	"clinichire.app/scout/common/logger"
	"clinichire.app/scout/common/otel"
	"clinichire.app/scout/core/config"
	"clinichire.app/scout/core/db"
	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/http/handler"
	"clinichire.app/scout/internal/http/middleware"
	httprouter "clinichire.app/scout/internal/http/router"
	"clinichire.app/scout/internal/queue"
	"clinichire.app/scout/internal/service"
	"clinichire.app/scout/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	schemas := extract.NewSchemas(cfg.Extract.PositionMaxChars, cfg.Extract.CompetitorMaxChars)

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, append(schemas.ResourceAttributes(),
		attribute.String("scout.llm.provider", cfg.Extract.LLM.Provider),
		attribute.Bool("scout.demo_mode", !cfg.Extract.LLM.Enabled()),
	)...)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "scout starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	recorders := extract.MultiRecorder{extract.LogRecorder{}}
	healthChecks := map[string]handler.HealthCheck{}

	// Redis and Postgres are optional. With a stream configured the worker
	// owns the run log writes; otherwise the server writes it directly. The
	// server reads the run log whenever a database is configured.
	var runs store.ExtractionRunStore
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")

		if err := store.Migrate(ctx, database); err != nil {
			slog.ErrorContext(ctx, "failed to migrate database", "error", err)
			os.Exit(1)
		}

		runs = store.NewExtractionRunStore(database.Queries())
		healthChecks["postgres"] = database.Ping
	}

	if cfg.Events.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Events.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Events.RedisStream)

		eventProducer := queue.NewRedisProducer(redisClient, cfg.Events.RedisStream, slog.Default())
		defer eventProducer.Close()

		recorders = append(recorders, eventProducer)
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else if runs != nil {
		recorders = append(recorders, runs)
	}

	inference, err := extract.NewInferenceClient(cfg.Extract)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create inference client", "error", err)
		os.Exit(1)
	}
	if inference.Demo() {
		slog.WarnContext(ctx, "no inference credential configured, serving demo records")
	} else {
		slog.InfoContext(ctx, "inference configured", "provider", cfg.Extract.LLM.Provider)
	}

	fetcher := extract.NewHTTPFetcher(extract.FetcherConfig{
		Timeout:           cfg.Fetch.Timeout,
		MaxBytes:          cfg.Fetch.MaxBytes,
		UserAgent:         cfg.Fetch.UserAgent,
		AllowPrivateHosts: cfg.Fetch.AllowPrivateHosts,
	})

	pipeline := extract.NewPipeline(
		fetcher,
		inference,
		schemas,
		extract.WithRecorder(recorders),
	)
	var serviceOpts []service.Option
	if runs != nil {
		serviceOpts = append(serviceOpts, service.WithRunStore(runs))
	}
	services := service.NewServices(pipeline, serviceOpts...)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, healthChecks)
	// WriteTimeout covers a full fetch plus inference.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Fetch.Timeout + cfg.Extract.LLM.Timeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, healthChecks map[string]handler.HealthCheck) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		DashboardURL: cfg.DashboardURL,
		APIKey:       cfg.APIKey,
		HealthChecks: healthChecks,
	})

	return router
}

const banner = `
███████╗ ██████╗ ██████╗ ██╗   ██╗████████╗
██╔════╝██╔════╝██╔═══██╗██║   ██║╚══██╔══╝
███████╗██║     ██║   ██║██║   ██║   ██║
╚════██║██║     ██║   ██║██║   ██║   ██║
███████║╚██████╗╚██████╔╝╚██████╔╝   ██║
╚══════╝ ╚═════╝ ╚═════╝  ╚═════╝    ╚═╝
`
