package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/api"
	"github.com/ginthi/docregistry/pkg/audit"
	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/cache"
	"github.com/ginthi/docregistry/pkg/db"
	"github.com/ginthi/docregistry/pkg/document"
	"github.com/ginthi/docregistry/pkg/dynamic"
	"github.com/ginthi/docregistry/pkg/ha"
	"github.com/ginthi/docregistry/pkg/jobs"
	"github.com/ginthi/docregistry/pkg/logging"
	"github.com/ginthi/docregistry/pkg/metrics"
	"github.com/ginthi/docregistry/pkg/schema"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(loader *configLoader) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), loader, skipMigrate)
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on (default \":8080\")")
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not migrate the database on startup")
	return cmd
}

// stores bundles every persistence component the server wires up.
type stores struct {
	directory *tenancy.Directory
	schemas   *schema.Store
	documents *document.CollectionStore
	audit     *audit.Store
	jobs      *jobs.JobStore
}

func newStores(gdb *gorm.DB) *stores {
	return &stores{
		directory: tenancy.NewDirectory(gdb),
		schemas:   schema.NewStore(gdb),
		documents: document.NewCollectionStore(gdb),
		audit:     audit.NewStore(gdb),
		jobs:      jobs.NewJobStore(gdb),
	}
}

func (s *stores) migrators() []db.AutoMigrator {
	return []db.AutoMigrator{s.directory, s.schemas, s.audit, s.jobs}
}

func openDatabase(ctx context.Context, cfg Config, migrate bool, logger *slog.Logger) (*gorm.DB, *stores, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	st := newStores(gdb)
	if migrate {
		locker := ha.NewMigrationLocker(gdb, ha.HAConfigFromEnv())
		if err := db.Migrate(ctx, gdb, cfg.Database, locker, st.migrators(), logger); err != nil {
			return nil, nil, err
		}
	}
	return gdb, st, nil
}

func serve(ctx context.Context, loader *configLoader, skipMigrate bool) error {
	cfg := loader.cfg
	logger, level, flush, err := logging.NewLeveled(cfg.Log, os.Stdout)
	if err != nil {
		glog.Fatalf("Failed to configure logging: %v", err)
	}
	defer flush()
	slog.SetDefault(logger)

	loader.watch(func(next Config) {
		if next.Log.Level == level.String() {
			return
		}
		if err := level.Set(next.Log.Level); err != nil {
			logger.Warn("ignoring invalid log level from config", "level", next.Log.Level, "error", err)
			return
		}
		logger.Info("log level changed", "level", level.String())
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting docregistry", "version", version, "listen", cfg.Listen, "database", cfg.Database.Type)

	gdb, st, err := openDatabase(ctx, cfg, !skipMigrate, logger)
	if err != nil {
		glog.Fatalf("Failed to set up database: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	types := dynamic.NewSynthesizer(st.documents, cache.ConfigFromEnv(), dynamic.WithMetrics(m))
	registry := schema.NewRegistry(st.schemas, st.directory,
		schema.WithLogger(logger),
		schema.WithMetrics(m),
		schema.WithChangeHook(types.Invalidate))
	documents := document.NewService(st.documents, st.directory, st.directory, registry, types,
		document.WithLogger(logger),
		document.WithMetrics(m))

	authCfg := authz.ConfigFromEnv()
	auditCfg := cfg.Audit
	jobCfg := jobs.JobConfigFromEnv()

	opts := []api.ServerOption{
		api.WithAuthorizer(authz.NewAuthorizer(authCfg)),
		api.WithAudit(st.audit, auditCfg),
		api.WithJobStore(st.jobs),
		api.WithGatherer(reg),
		api.WithAllowedOrigins(cfg.CORSOrigins),
	}
	if authCfg.Authn == authz.AuthnModeJWT {
		verifier, err := authz.NewTokenVerifier(authCfg.JWTSecret, authCfg.JWTIssuer)
		if err != nil {
			glog.Fatalf("Failed to configure JWT authentication: %v", err)
		}
		opts = append(opts, api.WithTokenVerifier(verifier))
	}
	server := api.NewServer(gdb, registry, documents, logger, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("docregistry ready", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if auditCfg.Enabled {
		g.Go(func() error {
			audit.NewPruner(st.audit, auditCfg, logger).Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		jobs.NewWorkerPool(st.jobs, api.NewRevalidator(registry, documents), jobCfg, m, logger).Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("docregistry stopped with error", "error", err)
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("docregistry stopped")
	return nil
}
