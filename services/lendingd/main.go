package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	protocol "lendcore/config"
	"lendcore/core/state"
	"lendcore/gateway/middleware"
	"lendcore/native/lending"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/services/lendingd/config"
	"lendcore/services/lendingd/idempotency"
	"lendcore/services/lendingd/outbox"
	"lendcore/services/lendingd/pricefeed"
	"lendcore/services/lendingd/scheduler"
	"lendcore/services/lendingd/server"
	"lendcore/services/lendingd/service"
	"lendcore/services/lendingd/stream"
	"lendcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("LENDCORE_ENV"))
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "lendingd",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	endpoint := cfg.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	headers := cfg.Telemetry.Headers
	if len(headers) == 0 {
		headers = telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, env, logger); err != nil {
		logger.Error("lendingd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, env string, logger *slog.Logger) error {
	proto, err := protocol.Load(cfg.ProtocolPath)
	if err != nil {
		return fmt.Errorf("load protocol config: %w", err)
	}
	params, err := proto.Params()
	if err != nil {
		return fmt.Errorf("protocol params: %w", err)
	}
	specs, err := proto.PoolSpecs()
	if err != nil {
		return fmt.Errorf("protocol pools: %w", err)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := state.EnsureStateVersion(db, cfg.Storage.AllowMigrate); err != nil {
		return err
	}
	manager := state.NewManager(db)
	manager.SetSnapshotRetention(cfg.Storage.Retention)

	static, err := cfg.Prices.StaticPrices()
	if err != nil {
		return err
	}
	sources := make([]pricefeed.Source, 0, len(cfg.Prices.Sources))
	for _, src := range cfg.Prices.Sources {
		sources = append(sources, pricefeed.Source{Name: src.Name, URL: src.URL})
	}
	feed := pricefeed.New(static, sources, cfg.Prices.Timeout, logger)

	pauses := service.NewPauses(map[string]bool{"lending": proto.Pauses.IsPaused("lending")})
	engine := lending.NewEngine(params)
	engine.SetLogger(logger)
	engine.SetOracle(feed)
	engine.SetVotes(service.StaticVotes(cfg.Votes))
	engine.SetAccounts(service.NewDirectory(cfg.Accounts.Contracts, cfg.Accounts.Unknown))
	engine.SetPauses(pauses)

	box, err := outbox.Open(cfg.Outbox.Driver, cfg.Outbox.DSN)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer box.Close()
	logger.Info("effect outbox opened",
		slog.String("driver", cfg.Outbox.Driver),
		logging.MaskField("dsn", cfg.Outbox.DSN))

	idemPath := cfg.Idempotency.Path
	if idemPath == "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		idemPath = filepath.Join(cfg.Storage.DataDir, "idempotency.db")
	}
	idem, err := idempotency.Open(idemPath, cfg.Idempotency.TTL, logger)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer idem.Close()

	hub := stream.NewHub(256, cfg.CORS.AllowedOrigins, logger)

	svc, err := service.New(service.Config{
		Engine:    engine,
		State:     manager,
		Outbox:    box,
		Publisher: hub,
		Prices:    feed,
		Oracle:    feed,
		Quota:     cfg.Quota,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restored, err := svc.Restore()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if restored {
		logger.Info("lending state restored", slog.Int("pools", len(engine.Pools())))
	}
	if err := svc.Bootstrap(ctx, specs, proto.Features()); err != nil {
		return fmt.Errorf("bootstrap pools: %w", err)
	}

	sched := scheduler.New(logger,
		scheduler.Task{Name: "interest", Interval: cfg.Scheduler.InterestInterval, Run: func(ctx context.Context) error {
			_, err := svc.SettleInterest(ctx)
			return err
		}},
		scheduler.Task{Name: "prices", Interval: cfg.Scheduler.PriceInterval, Run: func(ctx context.Context) error {
			_, err := svc.RefreshPrices(ctx)
			return err
		}},
		scheduler.Task{Name: "health", Interval: cfg.Scheduler.HealthInterval, Run: func(ctx context.Context) error {
			_, _, err := svc.RefreshHealth(ctx, cfg.Scheduler.HealthThreshold)
			return err
		}},
		scheduler.Task{Name: "claim_earn", Interval: cfg.Scheduler.ClaimInterval, Run: func(ctx context.Context) error {
			_, err := svc.ClaimEarn(ctx)
			return err
		}},
		scheduler.Task{Name: "idempotency_prune", Interval: time.Hour, Run: func(context.Context) error {
			_, err := idem.Prune()
			return err
		}},
	)
	sched.Start(ctx)

	if cfg.Auth.Enabled {
		logger.Info("api auth enabled",
			slog.String("issuer", cfg.Auth.Issuer),
			slog.String("audience", cfg.Auth.Audience),
			logging.MaskField("hmac_secret", cfg.Auth.HMACSecret))
	}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		OptionalPaths:  cfg.Auth.OptionalPaths,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	}, logger)
	api := server.New(server.Config{
		Service:       svc,
		Feed:          feed,
		Outbox:        box,
		State:         manager,
		Pauses:        pauses,
		Events:        hub,
		Auth:          auth,
		AuthEnabled:   cfg.Auth.Enabled,
		Limiter:       middleware.NewRateLimiter(cfg.RateLimits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: env == "dev", Enabled: true}, logger),
		Idempotency:   idem,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger:        logger,
	})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return errors.New("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}
	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(api.Handler(), "lendingd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", cfg.TLS.CertPath != ""))
		if cfg.TLS.CertPath != "" {
			httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			sched.Wait()
			return fmt.Errorf("serve http: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", slog.Any("error", err))
	}
	stop()
	sched.Wait()
	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	}
}
