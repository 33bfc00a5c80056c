package shutdownqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetQueue(t *testing.T) {
	t.Helper()

	reset := func() {
		q.mu.Lock()
		q.entries = nil
		q.hook = nil
		q.closed = false
		q.mu.Unlock()
	}

	reset()
	t.Cleanup(reset)
}

func noop(context.Context) error { return nil }

//nolint:paralleltest
func TestAddNilIsIgnored(t *testing.T) {
	resetQueue(t)

	Add("nil", nil)
	assert.Equal(t, 0, Len())
	require.NoError(t, Shutdown(t.Context()))
}

//nolint:paralleltest
func TestLIFOOrderAndHook(t *testing.T) {
	resetQueue(t)

	var (
		mu    sync.Mutex
		order []string
	)

	OnDone(func(name string, err error) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	})

	Add("http", noop)
	Add("kafka", noop)
	Add("postgres", noop)

	require.NoError(t, Shutdown(t.Context()))
	assert.Equal(t, []string{"postgres", "kafka", "http"}, order)
}

//nolint:paralleltest
func TestErrorsAreNamedAndJoined(t *testing.T) {
	resetQueue(t)

	errRedis := errors.New("redis gone")
	errDB := errors.New("db gone")

	Add("postgres", func(context.Context) error { return errDB })
	Add("redis", func(context.Context) error { return errRedis })

	err := Shutdown(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, errRedis)
	assert.ErrorIs(t, err, errDB)
	assert.Contains(t, err.Error(), "shutdown redis: redis gone")
	assert.Contains(t, err.Error(), "shutdown postgres: db gone")
}

//nolint:paralleltest
func TestPanicIsRecoveredAndDrainContinues(t *testing.T) {
	resetQueue(t)

	var ranAfter atomic.Bool

	Add("last", func(context.Context) error {
		ranAfter.Store(true)

		return nil
	})
	Add("boom", func(context.Context) error { panic("boom") })

	err := Shutdown(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown boom: panic: boom")
	assert.True(t, ranAfter.Load())
}

//nolint:paralleltest
func TestCancelStopsDrain(t *testing.T) {
	resetQueue(t)

	var ranFirst atomic.Bool

	entered := make(chan struct{})

	Add("first", func(context.Context) error {
		ranFirst.Store(true)

		return nil
	})
	Add("gate", func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)

	go func() { errCh <- Shutdown(ctx) }()

	<-entered
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "before first")
	assert.False(t, ranFirst.Load())
}

//nolint:paralleltest
func TestShutdownRunsOnce(t *testing.T) {
	resetQueue(t)

	var count atomic.Int32

	Add("counter", func(context.Context) error {
		count.Add(1)

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, Shutdown(ctx))
	require.NoError(t, Shutdown(ctx))
	assert.Equal(t, int32(1), count.Load())
}

//nolint:paralleltest
func TestAddDuringShutdownIsIgnored(t *testing.T) {
	resetQueue(t)

	started := make(chan struct{})
	unblock := make(chan struct{})

	Add("blocker", func(context.Context) error {
		close(started)
		<-unblock

		return nil
	})

	done := make(chan struct{})

	go func() {
		_ = Shutdown(context.Background())

		close(done)
	}()

	<-started

	var ran atomic.Bool

	Add("late", func(context.Context) error {
		ran.Store(true)

		return nil
	})
	close(unblock)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not finish")
	}

	assert.False(t, ran.Load())
	assert.Equal(t, 0, Len())
}
