package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/feed"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/logging"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/redisutil"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/pkg/envconf"
	"github.com/ottkdev/standoff2com-sub001/pkg/shutdownqueue"
)

type notifierConfig struct {
	LogLevel        zapcore.Level `env:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"20s"`
	MetricsPort     uint16        `env:"NOTIFIER_METRICS_PORT" default:"9091"`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Kafka    config.KafkaConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running notifier: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(notifierConfig)

	err := envconf.LoadWithDotenv(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, "notifier")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

	rdb, err := redisutil.Connect(ctx, cfg.Redis, "marketplace-notifier")
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	shutdownqueue.Add("redis", func(context.Context) error { return rdb.Close() })

	sink := notify.NewStoreSink(db, feed.New(rdb), log)

	consumer, err := notify.NewConsumer(cfg.Kafka, sink, log)
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}

	shutdownqueue.Add("kafka-consumer", func(context.Context) error { return consumer.Close() })

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(gctx)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		serr := metricsSrv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", serr)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("notifier started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	err = g.Wait()
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	return nil
}
