package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/sabha-admin/sabha/cmd/sabha/cli"
	"github.com/sabha-admin/sabha/internal/app"
	"github.com/sabha-admin/sabha/internal/audit"
	audithttp "github.com/sabha-admin/sabha/internal/audit/http"
	"github.com/sabha-admin/sabha/internal/auth"
	"github.com/sabha-admin/sabha/internal/gate"
	"github.com/sabha-admin/sabha/internal/lookup"
	"github.com/sabha-admin/sabha/internal/observability"
	"github.com/sabha-admin/sabha/internal/platform/cache"
	"github.com/sabha-admin/sabha/internal/platform/db"
	"github.com/sabha-admin/sabha/internal/rbac"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/settings"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/users"
	"github.com/sabha-admin/sabha/internal/validation"
	"github.com/sabha-admin/sabha/internal/view"
	"github.com/sabha-admin/sabha/jobs"
	"github.com/sabha-admin/sabha/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		if err := cli.Run(ctx, cfg.AsynqRedis(), os.Args[1:], os.Stdout); err != nil {
			logger.Error("cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sabha", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("sabha"))
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sabha_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	metrics := observability.NewMetrics()

	auditLogger := audit.NewLogger(audit.NewPGStore(dbpool), audit.Config{
		QueueSize:  cfg.AuditQueueSize,
		Workers:    cfg.AuditWorkers,
		MaxRetries: cfg.AuditMaxRetries,
	}, logger)
	// Workers outlive the signal context so Close can drain the queue.
	auditLogger.Start(context.WithoutCancel(ctx))
	metrics.RegisterAuditStats(auditLogger.Stats)

	rolesRepo := roles.NewRepository(dbpool)
	registry := roles.NewRegistry(rolesRepo, cfg.RoleCacheTTL, logger)
	rbacRepo := rbac.NewRepository(dbpool)
	evaluator := rbac.NewEvaluator(registry, rbacRepo, cfg.RoleCacheTTL, logger)

	lookupLoader := lookup.NewLoader(lookup.NewRepository(dbpool), lookup.NewCache(redisClient, cfg.LookupCacheTTL), logger)
	broadcaster := roles.NewBroadcaster(redisClient, logger, registry, evaluator, lookupLoader)

	accessGate := gate.New(evaluator, auditLogger, gate.Config{CheckTimeout: cfg.GateCheckTimeout}, logger,
		gate.WithObserver(metrics),
		gate.WithDenialRenderer(app.DenialPage(templates, csrfManager, logger)),
	)
	inputs := validation.NewGuard(auditLogger, validation.DefaultPasswordPolicy)

	settingsService := settings.NewService(settings.NewRepository(dbpool), logger)
	if _, err := settingsService.Refresh(ctx); err != nil {
		logger.Warn("load settings", slog.Any("error", err))
	}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, inputs, auditLogger, settingsService,
		auth.HandlerConfig{GoogleSignInURL: cfg.GoogleSignInURL})

	rolesService := roles.NewService(rolesRepo, auditLogger, broadcaster, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, templates, csrfManager, accessGate, inputs)

	permissionsService := rbac.NewService(rbacRepo, rolesRepo, auditLogger, broadcaster, logger)
	permissionsHandler := rbac.NewPermissionsHandler(logger, permissionsService, templates, csrfManager, accessGate)

	usersService := users.NewService(users.NewRepository(dbpool), rolesRepo, registry, auditLogger, broadcaster, logger)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, accessGate, lookupLoader)
	resolver := users.NewPrincipalResolver(usersService, cfg.GateCheckTimeout, logger)

	settingsHandler := settings.NewHandler(logger, settingsService, templates, csrfManager, accessGate)

	reportClient := report.NewClient(cfg.GotenbergURL)
	var pdf audit.PDFRenderer
	if reportClient != nil {
		pdf = reportClient
	}
	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewPGStore(dbpool)), templates, audit.NewExporter(pdf), accessGate, auditLogger)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Guard:              accessGate,
		Resolver:           resolver,
		Recorder:           auditLogger,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		SettingsHandler:    settingsHandler,
		AuditHandler:       auditHandler,
		LookupHandler:      lookup.NewHandler(lookupLoader, logger),
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		// Without the listener other instances fall back to the role cache TTL.
		if err := broadcaster.Listen(groupCtx, nil); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("role invalidation listener stopped", slog.Any("error", err))
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if err := auditLogger.Close(shutdownCtx); err != nil {
			logger.Warn("audit drain", slog.Any("error", err))
		}
		return nil
	})
	return group.Wait()
}
