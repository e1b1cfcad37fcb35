package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/sentinel/pkg/api"
	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/config"
	"github.com/platinummonkey/sentinel/pkg/identity"
	"github.com/platinummonkey/sentinel/pkg/observability"
	"github.com/platinummonkey/sentinel/pkg/rbac"
	"github.com/platinummonkey/sentinel/pkg/session"
	"github.com/platinummonkey/sentinel/pkg/sso"
	"github.com/platinummonkey/sentinel/pkg/storage/postgres"
	"github.com/platinummonkey/sentinel/pkg/tenants"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("sentineld: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := postgres.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Migration order matters: tenants and role assignments reference users.
	if err := identity.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := tenants.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := audit.RunMigrations(ctx, db); err != nil {
		return err
	}
	logger.Info("database migrations complete")

	registry, err := rbac.NewRegistry(rbac.DefaultPermissions())
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	sessionStore := session.NewRedisStore(redisClient)
	binder := session.NewBinder(sessionStore, cfg.Session.TTL, logger, metrics)

	roleStore := rbac.NewStore(db)
	versions := rbac.NewRedisVersionStore(redisClient)

	var resolver rbac.RoleResolver = rbac.NewMultiRoleResolver(roleStore)
	if cfg.RBAC.RoleStrategy == "single" {
		resolver = rbac.NewSingleRoleResolver(roleStore)
	}

	rbacSvc := rbac.NewService(roleStore, versions, registry, resolver, logger,
		rbac.WithSnapshotRefresher(binder),
		rbac.WithMetrics(metrics),
	)

	identityStore := identity.NewStore(db)
	tenantSvc := tenants.NewService(db)

	auditStore := audit.NewStore(db)

	opts := []api.Option{
		api.WithMetrics(metrics),
		api.WithAuditLog(auditStore),
	}
	if cfg.OAuth.Enabled {
		provider, err := sso.NewOIDCProvider(ctx, cfg.OAuth)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithOIDC(provider, sso.NewStateStore(redisClient)))
		logger.WithField("provider", provider.Name()).Info("OAuth sign-in enabled")
	}

	server := api.NewServer(rbacSvc, binder, identityStore, tenantSvc, cfg.Session, logger, opts...)

	if cfg.Janitor.Enabled {
		janitor, err := rbac.NewJanitor(roleStore, versions, logger, cfg.Janitor.Schedule,
			rbac.WithAuditRetention(auditStore, cfg.Janitor.AuditRetentionDays))
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()
	}

	appServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux(db, redisClient, metrics, cfg.Observability.MetricsEnabled),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("starting API server")
		if err := appServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := appServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		if otelProviders != nil {
			if err := otelProviders.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
		return shutdownErr
	})

	return group.Wait()
}

func healthMux(db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
