package cmd

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

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/audit"
	auditPostgres "github.com/frahmantamala/backoffice/internal/audit/postgres"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/category"
	categoryPostgres "github.com/frahmantamala/backoffice/internal/category/postgres"
	"github.com/frahmantamala/backoffice/internal/core/events"
	"github.com/frahmantamala/backoffice/internal/discovery"
	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/permission"
	permissionPostgres "github.com/frahmantamala/backoffice/internal/permission/postgres"
	"github.com/frahmantamala/backoffice/internal/session"
	"github.com/frahmantamala/backoffice/internal/telemetry"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/internal/transport/middleware"
	"github.com/frahmantamala/backoffice/internal/transport/rest"
	"github.com/frahmantamala/backoffice/internal/user"
	userPostgres "github.com/frahmantamala/backoffice/internal/user/postgres"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

const (
	loginLimiterClients = 10000
	loginLimiterIdle    = 10 * time.Minute
	purgeInterval       = 5 * time.Minute
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	Bus      *events.EventBus
	Sessions kvstore.Store
	Cache    kvstore.Store
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	lg.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go purgeExpired(bgCtx, lg, purgeInterval, deps.Sessions, deps.Cache)

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			lg.Error("Server shutdown error", "error", err)
		}
		stopBackground()
		if err := deps.Bus.Close(ctx); err != nil {
			lg.Warn("audit events still in flight at shutdown", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			lg.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	lg.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db)
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if config.Observability.Metrics.Enabled {
		metrics = telemetry.NewDefault()
	}

	bus := events.NewEventBus(lg,
		events.WithWorkers(config.Events.Workers),
		events.WithQueueSize(config.Events.QueueSize),
	)
	auditRepo := auditPostgres.NewAuditRepository(gdb)
	recorder := audit.NewRecorder(bus, auditRepo, lg)

	cache := newKVStore(config.Cache.Backend, gdb, cacheTable, config.Cache.MaxEntries, config.Cache.PermissionTTL)
	sessionKV := newKVStore(config.Session.Backend, gdb, sessionTable, config.Session.MaxEntries, 0)

	users := user.NewService(userPostgres.NewUserRepository(gdb), lg)
	permissions := permission.NewService(
		permissionPostgres.NewPermissionRepository(gdb), users, cache, lg,
		permission.WithTTL(config.Cache.PermissionTTL),
		permission.WithMetrics(metrics),
		permission.WithAuditor(recorder),
	)
	sessions := session.New(sessionKV)
	tokens := auth.NewJWTTokenGenerator(config.Security.JWTSecret, config.Security.JWTIssuer, config.Security.TokenDuration)
	authService := auth.NewService(users, tokens, sessions, permissions, lg,
		auth.WithServiceMetrics(metrics),
		auth.WithServiceAuditor(recorder),
		auth.WithBCryptCost(config.Security.BCryptCost),
	)
	categories := category.NewService(categoryPostgres.NewCategoryRepository(gdb), lg)

	base := transport.NewBaseHandler(lg)
	metricsPath := ""
	if config.Observability.Metrics.Enabled {
		metricsPath = config.Observability.Metrics.Path
	}

	router := rest.NewRouter(rest.Dependencies{
		DB:             db,
		Cache:          cache,
		Logger:         lg,
		Metrics:        metrics,
		AllowedOrigins: config.Server.Origins(),
		TrustProxy:     config.Server.TrustProxy,
		OpenAPISpec:    config.Server.OpenAPISpec,
		MetricsPath:    metricsPath,
		LoginLimiter:   middleware.NewRateLimiter(config.RateLimit.LoginPerSecond, config.RateLimit.LoginBurst, loginLimiterClients, loginLimiterIdle, base),
		Strict:         auth.NewDBAuthoritativeVerifier(tokens, users, sessions, permissions, lg),
		Fast:           auth.NewSessionBoundVerifier(tokens, sessions),
		RBAC:           auth.NewRBACAuthorization(auth.NewGuard(permissions, lg, metrics), base),
		Auth:           auth.NewHandler(base, authService),
		Users:          user.NewHandler(base, users, permissions, permissions),
		Permissions:    permission.NewHandler(base, permissions),
		Categories:     category.NewHandler(base, categories),
		Audit:          audit.NewHandler(base, auditRepo),
	})

	// Every guarded route gets its catalog entry before the first request.
	registry := discovery.NewRegistry(permissions, lg, discovery.WithExcludedPrefixes(rest.ExcludedFromDiscovery...))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := registry.FromRouter(ctx, router); err != nil {
		return nil, fmt.Errorf("failed to register discovered actions: %w", err)
	}

	return &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gdb,
		Router:   router,
		Logger:   lg,
		Bus:      bus,
		Sessions: sessionKV,
		Cache:    cache,
	}, nil
}
