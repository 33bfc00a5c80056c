package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/api"
	"github.com/ottkdev/standoff2com-sub001/internal/feed"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/logging"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/redisutil"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/services/deposit"
	"github.com/ottkdev/standoff2com-sub001/internal/services/dispute"
	"github.com/ottkdev/standoff2com-sub001/internal/services/order"
	"github.com/ottkdev/standoff2com-sub001/internal/services/paytr"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
	"github.com/ottkdev/standoff2com-sub001/internal/services/withdrawal"
	"github.com/ottkdev/standoff2com-sub001/pkg/envconf"
	"github.com/ottkdev/standoff2com-sub001/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

//nolint:funlen
func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.LoadWithDotenv(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, "api")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	shutdownqueue.OnDone(func(name string, err error) {
		if err != nil {
			log.Warn("shutdown step failed", zap.String("step", name), zap.Error(err))
			return
		}

		log.Info("shutdown step done", zap.String("step", name))
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

	rdb, err := redisutil.Connect(ctx, cfg.Redis, "marketplace-api")
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	shutdownqueue.Add("redis", func(context.Context) error { return rdb.Close() })

	live := feed.New(rdb)

	var pub notify.Publisher = notify.NewLogPublisher(log)
	if cfg.Kafka.Enabled {
		pub = notify.NewKafkaPublisher(cfg.Kafka)
	}

	dispatcher := notify.NewDispatcher(pub, cfg.NotifyQueueSize, log)
	go dispatcher.Run()

	shutdownqueue.Add("notifications", dispatcher.Close)

	// --- Services ---
	ledger := wallet.New(db, log)
	deposits := deposit.New(ledger, paytr.New(cfg.PayTR), live, dispatcher, cfg.Ledger, log)
	orders := order.New(ledger, dispatcher, cfg.Ledger, log)
	disputes := dispute.New(db, orders, dispatcher, log)
	withdrawals := withdrawal.New(ledger, dispatcher, cfg.Ledger, log)

	releaser, err := order.NewAutoReleaser(orders, cfg.Ledger.AutoReleaseSchedule, cfg.Ledger.AutoReleaseBatch, log)
	if err != nil {
		return fmt.Errorf("init auto release: %w", err)
	}

	releaser.Start()
	shutdownqueue.Add("auto-release", releaser.Stop)

	// --- HTTP server ---
	router := api.NewRouter(api.Services{
		Wallet:      ledger,
		Deposits:    deposits,
		Stream:      live,
		Orders:      orders,
		Disputes:    disputes,
		Withdrawals: withdrawals,
	}, cfg.HTTP.AllowedOrigins, log)

	srv := api.NewServer(cfg.HTTP, router)

	shutdownqueue.Add("http", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	log.Info("api started", zap.Uint16("port", cfg.HTTP.Port), zap.Bool("kafka", cfg.Kafka.Enabled))

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
