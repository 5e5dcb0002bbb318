package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"otcpool/core/events"
	"otcpool/core/state"
	"otcpool/native/common"
	"otcpool/native/otc"
	"otcpool/observability"
	"otcpool/observability/logging"
	telemetry "otcpool/observability/otel"
	"otcpool/services/otcd/config"
	"otcpool/services/otcd/journal"
	"otcpool/services/otcd/recon"
	"otcpool/services/otcd/server"
	"otcpool/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/otcd/config.yaml", "path to otcd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("otcd: load config: %v", err)
	}
	env := strings.TrimSpace(os.Getenv("OTCD_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "otcd",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "otcd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Interval:    cfg.Telemetry.MetricInterval.Duration,
		Instance:    cfg.ListenAddress,
	})
	if err != nil {
		log.Fatalf("otcd: init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := openStateDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("otcd: open state: %v", err)
	}
	defer db.Close()
	store := state.NewStore(db)
	defer store.Close()

	engine := otc.NewEngine()
	engine.SetLogger(logger)
	engine.SetEmitter(store)

	eventJournal, err := journal.Open(journal.Config{
		Driver: cfg.Journal.Driver,
		DSN:    cfg.Journal.DSN,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("otcd: open journal: %v", err)
	}
	defer eventJournal.Close()
	if err := eventJournal.Verify(context.Background()); err != nil {
		log.Fatalf("otcd: journal integrity: %v", err)
	}
	metrics := observability.Pool()
	store.SetEmitter(events.Multi{metrics, eventJournal})

	if path := strings.TrimSpace(cfg.GenesisPath); path != "" {
		genesis, err := config.LoadGenesis(path)
		if err != nil {
			log.Fatalf("otcd: load genesis: %v", err)
		}
		applied, err := server.ApplyGenesis(store, engine, genesis)
		if err != nil {
			log.Fatalf("otcd: apply genesis: %v", err)
		}
		if applied {
			logger.Info("otcd: genesis applied", "path", path)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reconciler *recon.Reconciler
	if cfg.Recon.Enabled {
		reconciler, err = recon.NewReconciler(recon.Config{
			Store:     store,
			OutputDir: cfg.Recon.OutputDir,
			Logger:    logger,
			Alert: func(_ context.Context, anomaly recon.Anomaly) error {
				metrics.RecordAnomaly(anomaly.Type)
				return nil
			},
		})
		if err != nil {
			log.Fatalf("otcd: recon: %v", err)
		}
		scheduler, err := recon.NewScheduler(recon.SchedulerConfig{
			Runner:     reconciler,
			RunHour:    cfg.Recon.RunHour,
			RunMinute:  cfg.Recon.RunMinute,
			RunOnStart: cfg.Recon.RunOnStart,
			Logger:     logger,
		})
		if err != nil {
			log.Fatalf("otcd: recon scheduler: %v", err)
		}
		go scheduler.Start(ctx)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Store:         store,
		Engine:        engine,
		Journal:       eventJournal,
		Reconciler:    reconciler,
		Metrics:       metrics,
		Logger:        logger,
		Auth: server.AuthConfig{
			MaxSkew:        cfg.Auth.MaxSkew.Duration,
			NonceTTL:       cfg.Auth.NonceTTL.Duration,
			OperatorSecret: cfg.Auth.OperatorSecret,
			OperatorIssuer: cfg.Auth.OperatorIssuer,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Quota: common.Quota{
			MaxRequestsPerEpoch: cfg.Quota.MaxRequests,
			MaxVolumePerEpoch:   cfg.Quota.MaxVolume,
			EpochSeconds:        uint32(cfg.Quota.Epoch.Duration.Seconds()),
		},
	})
	if err != nil {
		log.Fatalf("otcd: server: %v", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("otcd: server stopped: %v", err)
	}
	logger.Info("otcd: shutdown complete")
}

// openStateDB opens the pool state. The literal "memory" keeps state in
// process for local experiments.
func openStateDB(dataDir string) (storage.Database, error) {
	if strings.EqualFold(strings.TrimSpace(dataDir), "memory") {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(dataDir)
}
