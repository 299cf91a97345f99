package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hexrift/licensor/internal/api"
	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/config"
	"github.com/hexrift/licensor/internal/core"
	"github.com/hexrift/licensor/internal/db"
	"github.com/hexrift/licensor/internal/keygen"
	"github.com/hexrift/licensor/internal/logging"
	"github.com/hexrift/licensor/internal/metrics"
	"github.com/hexrift/licensor/internal/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "create-api-key":
			createAPIKey(os.Args[2:])
			return
		case "issue-batch":
			issueBatch(os.Args[2:])
			return
		}
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	sinks := []audit.Sink{audit.NewLogSink(logger.With().Str("component", "audit").Logger())}
	if cfg.AuditWebhookURL != "" {
		sinks = append(sinks, audit.NewWebhookSink(cfg.AuditWebhookURL, 10*time.Second))
	}
	if cfg.AuditAMQPURL != "" {
		sinks = append(sinks, audit.NewAMQPSink(cfg.AuditAMQPURL, cfg.AuditAMQPQueue))
	}
	emitter := audit.NewAsyncEmitter(logger, cfg.AuditBufferSize, sinks...)
	defer emitter.Close()

	services := core.NewServices(store.NewPostgres(pool), pool, emitter, logger, core.Options{
		Cooldown:         cfg.HWIDResetCooldown,
		DefaultMaxResets: cfg.DefaultMaxHWIDResets,
		VerifyAttempts:   cfg.VerifyRetryAttempts,
		KeyFormat:        keyFormat(cfg.KeyFormat),
	})

	srv := api.NewServer(logger, services, pool)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metrics.NewServer(cfg.MetricsListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting license API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
		}

		logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func keyFormat(name string) keygen.Format {
	if name == "hex" {
		return keygen.Hex
	}
	return keygen.Default
}

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	name := fs.String("name", "", "Name for the API key (required)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fmt.Fprintln(os.Stderr, "usage: license-api create-api-key --name <name>")
		os.Exit(1)
	}

	_, pool, cleanup := mustConnect()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc := core.NewAPIKeyService(pool)
	key, rawKey, err := svc.Create(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key - it will not be shown again.\n")
}

func issueBatch(args []string) {
	fs := flag.NewFlagSet("issue-batch", flag.ExitOnError)
	product := fs.String("product", "", "Product name (required)")
	quantity := fs.Int("quantity", 1, "Number of licenses to create")
	duration := fs.Int("duration-days", 0, "License lifetime in days (0 = never expires)")
	owner := fs.String("owner", "", "Owner reference (optional)")
	fs.Parse(args)

	if *product == "" {
		fmt.Fprintln(os.Stderr, "error: --product is required")
		fmt.Fprintln(os.Stderr, "usage: license-api issue-batch --product <name> [--quantity N] [--duration-days N] [--owner ref]")
		os.Exit(1)
	}

	cfg, pool, cleanup := mustConnect()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.NewLogger(cfg)
	emitter := audit.NewAsyncEmitter(logger, cfg.AuditBufferSize, audit.NewLogSink(logger))
	defer emitter.Close()

	issuer := core.NewIssuer(store.NewPostgres(pool), emitter, logger, keyFormat(cfg.KeyFormat), cfg.DefaultMaxHWIDResets)

	var durationDays *int
	if *duration > 0 {
		durationDays = duration
	}
	var ownerRef *string
	if *owner != "" {
		ownerRef = owner
	}

	result, err := issuer.IssueBatch(ctx, *product, *quantity, durationDays, ownerRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: issue batch failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %d license(s) for %s:\n", len(result.Licenses), *product)
	for _, item := range result.Licenses {
		expiry := "never"
		if item.License.ExpiresAt != nil {
			expiry = item.License.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("  %s  (expires %s)\n", item.License.Key, expiry)
	}
	if len(result.Errors) > 0 {
		var failures []string
		for _, item := range result.Errors {
			failures = append(failures, fmt.Sprintf("index %d: %v", item.Index, item.Err))
		}
		fmt.Fprintf(os.Stderr, "failed items:\n  %s\n", strings.Join(failures, "\n  "))
		os.Exit(1)
	}
}

func mustConnect() (*config.Config, *pgxpool.Pool, func()) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	return cfg, pool, pool.Close
}
