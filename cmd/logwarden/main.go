package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/logwarden/internal/alert"
	"github.com/your-org/logwarden/internal/pipeline"
	"github.com/your-org/logwarden/internal/rules"
	"github.com/your-org/logwarden/internal/store"
	"github.com/your-org/logwarden/pkg/config"
	"github.com/your-org/logwarden/pkg/kafka"
	"github.com/your-org/logwarden/pkg/logger"
	"github.com/your-org/logwarden/pkg/storage/blobstore"
	"github.com/your-org/logwarden/pkg/tracing"
)

// Exit codes. Config and mode errors get distinct codes so wrappers can tell
// "fix your config" from "something broke at runtime".
const (
	exitOK       = 0
	exitRuntime  = 1
	exitConfig   = 2
	exitModeFlag = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "config.yml", "path to the YAML configuration file")
		once       = flag.Bool("once", false, "process one cycle and exit")
		loop       = flag.Bool("loop", false, "run forever, polling on an interval")
		interval   = flag.Int("interval", 0, "polling interval in seconds (overrides config)")
	)
	flag.Parse()

	mode, err := pipeline.ResolveMode(*once, *loop)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitModeFlag
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("load config: %v", err)
		return exitConfig
	}
	if *interval > 0 {
		cfg.Polling.IntervalSeconds = *interval
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid config: %v", err)
		return exitConfig
	}

	logr, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Printf("init logger: %v", err)
		return exitConfig
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: "logwarden",
	})
	if err != nil {
		logr.Error("init tracing", zap.Error(err))
		return exitRuntime
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	storeCfg, err := blobstore.ParseConnectionString(cfg.Storage.ConnectionString)
	if err != nil {
		logr.Error("parse storage connection string", zap.Error(err))
		return exitConfig
	}
	connector, err := blobstore.New(storeCfg)
	if err != nil {
		logr.Error("init blob store", zap.Error(err))
		return exitRuntime
	}

	db, err := store.Open(cfg.Database.Path, logr)
	if err != nil {
		logr.Error("open event store", zap.Error(err))
		return exitRuntime
	}
	defer db.Close() //nolint:errcheck

	var producer alert.Publisher
	if cfg.Alerts.Kafka.Enabled {
		kp := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.Alerts.Kafka.Brokers,
			Topic:   cfg.Alerts.Kafka.Topic,
		})
		defer kp.Close() //nolint:errcheck
		producer = kp
	}

	webhookURL := ""
	if cfg.Alerts.Webhook.Enabled {
		webhookURL = cfg.Alerts.Webhook.URL
	}

	dispatcher := alert.NewDispatcher(alert.Params{
		Stdout:     cfg.Alerts.Stdout,
		WebhookURL: webhookURL,
		Producer:   producer,
		Logger:     logr,
		Console:    os.Stdout,
	})

	pipe := pipeline.New(pipeline.Params{
		Connector:  connector,
		Store:      db,
		Engine:     rules.New(cfg.Rules),
		Dispatcher: dispatcher,
		Containers: cfg.Storage.Containers,
		Window:     time.Duration(cfg.Polling.SinceMinutes) * time.Minute,
		Logger:     logr,
	})

	scheduler := pipeline.NewScheduler(pipeline.SchedulerParams{
		Runner:   pipe,
		Interval: time.Duration(cfg.Polling.IntervalSeconds) * time.Second,
		Logger:   logr,
	})

	logr.Info("pipeline starting",
		zap.Strings("containers", cfg.Storage.Containers),
		zap.Int("rules", len(cfg.Rules)),
		zap.Bool("loop", mode == pipeline.ModeLoop))

	if err := scheduler.Run(ctx, mode); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("pipeline failed", zap.Error(err))
		return exitRuntime
	}
	return exitOK
}
