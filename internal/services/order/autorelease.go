package order

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultBatch = 100

// AutoReleaser periodically completes overdue orders. A run that is still
// going when the next tick fires makes that tick a no-op.
type AutoReleaser struct {
	svc   *Service
	cron  *cron.Cron
	batch int
	log   *zap.Logger
}

func NewAutoReleaser(svc *Service, schedule string, batch int, log *zap.Logger) (*AutoReleaser, error) {
	if batch <= 0 {
		batch = defaultBatch
	}

	l := cronLogger{log: log.Named("cron")}

	a := &AutoReleaser{
		svc:   svc,
		cron:  cron.New(cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)), cron.WithLogger(l)),
		batch: batch,
		log:   log.Named("auto_release"),
	}

	_, err := a.cron.AddFunc(schedule, a.tick)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}

	return a, nil
}

func (a *AutoReleaser) Start() {
	a.cron.Start()
	a.log.Info("auto release scheduled", zap.Int("batch", a.batch))
}

// Stop waits for a running tick to finish or ctx to expire.
func (a *AutoReleaser) Stop(ctx context.Context) error {
	done := a.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AutoReleaser) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := a.svc.ReleaseDue(ctx, a.batch)
	if err != nil {
		a.log.Error("release due orders", zap.Error(err))
		return
	}

	if n > 0 {
		a.log.Info("released due orders", zap.Int("count", n))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
