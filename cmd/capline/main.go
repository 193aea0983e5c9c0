package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/app"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/auth"
	"github.com/capline-erp/capline/internal/budget"
	"github.com/capline-erp/capline/internal/execution"
	"github.com/capline-erp/capline/internal/grants"
	"github.com/capline-erp/capline/internal/groups"
	"github.com/capline-erp/capline/internal/observability"
	"github.com/capline-erp/capline/internal/platform/cache"
	"github.com/capline-erp/capline/internal/platform/db"
	"github.com/capline-erp/capline/internal/resources"
	"github.com/capline-erp/capline/internal/shared"
	"github.com/capline-erp/capline/internal/users"
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

	sessionManager := shared.NewSessionManager(redisClient, "capline_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	recorder := audit.NewRecorder()

	accessRepo := access.NewRepository(dbpool)
	evaluator := access.NewEvaluator(accessRepo, accessRepo)
	resolver := access.NewResolver(accessRepo)
	grantsRepo := grants.NewRepository(dbpool, recorder)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersRepo := users.NewRepository(dbpool, recorder)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	groupsRepo := groups.NewRepository(dbpool, recorder)
	groupsService := groups.NewService(groupsRepo, evaluator)
	groupsHandler := groups.NewHandler(logger, groupsService)

	budgetRepo := budget.NewRepository(dbpool, recorder)
	budgetService := budget.NewService(budgetRepo, evaluator, resolver)
	budgetHandler := budget.NewHandler(logger, budgetService)

	executionRepo := execution.NewRepository(dbpool, recorder)
	executionService := execution.NewService(executionRepo, evaluator, resolver)
	executionHandler := execution.NewHandler(logger, executionService)

	resourcesRepo := resources.NewRepository(dbpool, recorder)
	resourcesService := resources.NewService(resourcesRepo, evaluator, resolver)
	resourcesHandler := resources.NewHandler(logger, resourcesService)

	grantsService := grants.NewService(grantsRepo, accessRepo, evaluator)
	grantsHandler := grants.NewHandler(logger, grantsService)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Metrics:          metrics,
		AuthService:      authService,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		GroupsHandler:    groupsHandler,
		BudgetHandler:    budgetHandler,
		ExecutionHandler: executionHandler,
		ResourcesHandler: resourcesHandler,
		GrantsHandler:    grantsHandler,
		AuditHandler:     auditHandler,
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
