package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/app"
	"github.com/campusops/campusops/internal/auth"
	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/emergency"
	"github.com/campusops/campusops/internal/observability"
	"github.com/campusops/campusops/internal/platform/cache"
	"github.com/campusops/campusops/internal/platform/db"
	"github.com/campusops/campusops/internal/reporting"
	"github.com/campusops/campusops/internal/request"
	"github.com/campusops/campusops/internal/shared"
	"github.com/campusops/campusops/internal/users"
	"github.com/campusops/campusops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "campusops_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)
	guard := auth.Middleware{Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	yearRepo := academicyear.NewRepository(dbpool)
	yearService := academicyear.NewService(yearRepo, auditLogger)
	yearHandler := academicyear.NewHandler(logger, yearService, guard)

	reportingCache := reporting.NewCache(redisClient)

	budgetRepo := budget.NewRepository(dbpool)
	budgetService := budget.NewService(budgetRepo, yearService, auditLogger, reportingCache)
	budgetHandler := budget.NewHandler(logger, budgetService, guard)

	requestRepo := request.NewRepository(dbpool)
	requestService := request.NewService(requestRepo, auditLogger, idempotencyStore, reportingCache)
	requestHandler := request.NewHandler(logger, requestService, guard)

	emergencyRepo := emergency.NewRepository(dbpool)
	emergencyService := emergency.NewService(emergencyRepo, yearService, auditLogger, reportingCache)
	emergencyHandler := emergency.NewHandler(logger, emergencyService, guard)

	directoryRepo := users.NewRepository(dbpool)
	directoryService := users.NewService(directoryRepo, auditLogger)
	directoryHandler := users.NewHandler(logger, directoryService, guard)

	reportingRepo := reporting.NewRepository(dbpool)
	reportingService := reporting.NewService(reportingRepo, reportingCache, logger)
	reportingHandler := reporting.NewHandler(logger, reportingService, guard)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		AuthHandler:         authHandler,
		AcademicYearHandler: yearHandler,
		BudgetHandler:       budgetHandler,
		RequestHandler:      requestHandler,
		EmergencyHandler:    emergencyHandler,
		ReportingHandler:    reportingHandler,
		DirectoryHandler:    directoryHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
