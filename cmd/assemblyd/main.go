package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/assembly-hq/assembly/pkg/api"
	"github.com/assembly-hq/assembly/pkg/audit"
	"github.com/assembly-hq/assembly/pkg/authz"
	"github.com/assembly-hq/assembly/pkg/config"
	"github.com/assembly-hq/assembly/pkg/members"
	"github.com/assembly-hq/assembly/pkg/middleware"
	"github.com/assembly-hq/assembly/pkg/observability"
	"github.com/assembly-hq/assembly/pkg/policy"
	"github.com/assembly-hq/assembly/pkg/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "assemblyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Membership store.
	var store members.Store
	var db *sql.DB
	switch cfg.Store.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Store.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Store.MaxConns)

		pg, err := members.NewPostgresStore(db)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure membership schema: %w", err)
		}
		store = pg
	case "sqlite":
		sq, err := members.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		defer sq.Close()
		store = sq
	}

	// Policy set with hot reload.
	policies, err := policy.Load(cfg.Authz.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	logger.WithField("operations", len(policies.Operations())).Info("loaded operation policies")

	// Rate limiter for sensitive operations. Per-operation limit overrides
	// come from the policy file.
	limitCfg := ratelimit.Config{Limit: cfg.Authz.RateLimit, Window: cfg.Authz.RateWindow}
	var limiter authz.RateLimiter
	if cfg.Authz.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Authz.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, limitCfg, "assembly:ratelimit", true)
		logger.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewOperationLimiter(limitCfg, func(operationKey string) (ratelimit.Config, bool) {
			op, ok := policies.Lookup(operationKey)
			if !ok {
				return ratelimit.Config{}, false
			}
			return ratelimit.Config{Limit: op.Limit, Window: op.Window}, true
		})
		logger.Info("using in-memory rate limiter")
	}

	// Audit sinks: structured log always, database when enabled.
	sinks := []audit.Logger{audit.NewLogrusLogger(os.Stdout)}
	var dbSink *audit.DBLogger
	if cfg.Audit.DBEnabled {
		dbSink, err = audit.NewDBLogger(db)
		if err != nil {
			return fmt.Errorf("failed to initialize audit sink: %w", err)
		}
		sinks = append(sinks, dbSink)
	}
	auditSink := audit.NewMultiLogger(sinks...)
	defer auditSink.Close()
	recorder := audit.NewRecorder(auditSink, logger)

	guard := authz.NewGuard(authz.GuardConfig{
		Verifier: authz.NewFallbackVerifier(store, cfg.Authz.FallbackTimeout),
		Limiter:  limiter,
		Recorder: recorder,
		Metrics:  metrics,
		Logger:   logger,
	})

	// HTTP stack.
	authMW := middleware.NewAuthMiddleware(middleware.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)), recorder, metrics, logger)
	guardMW := middleware.NewGuardMiddleware(guard, policies)

	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(metrics.HTTPMiddleware)
	router.Use(authMW.Handler)
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	api.NewMemberHandlers(store).RegisterRoutes(router, guardMW)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "assemblyd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if err := policies.Watch(ctx, cfg.Authz.PolicyPath, logger); err != nil {
		return err
	}

	// Retention sweep of old audit events.
	if dbSink != nil {
		sweeper := cron.New()
		retention := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}
		_, err := sweeper.AddFunc(cfg.Audit.SweepSchedule, func() {
			removed, err := dbSink.Sweep(context.Background(), retention)
			if err != nil {
				logger.WithError(err).Error("audit retention sweep failed")
				return
			}
			logger.WithField("removed", removed).Info("audit retention sweep complete")
		})
		if err != nil {
			return fmt.Errorf("invalid sweep schedule: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
