package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgtestutil"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	pgnotifications "github.com/ottkdev/standoff2com-sub001/internal/repos/notifications/postgres"
)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []models.Notification
	block  chan struct{}
	err    error
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, n models.Notification) error {
	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.sent = append(p.sent, n)

	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePublisher) Sent() []models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.Notification(nil), p.sent...)
}

func note(user string) models.Notification {
	return models.Notification{UserID: user, Kind: models.NotifyOrderCreated, Title: "t"}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d := NewDispatcher(pub, 8, zap.NewNop())

	for _, u := range []string{"u1", "u2", "u3"} {
		d.Notify(context.Background(), note(u))
	}

	go d.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Close(ctx))

	sent := pub.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "u1", sent[0].UserID)
	assert.Equal(t, "u3", sent[2].UserID)
	assert.True(t, pub.closed)

	// after close nothing is queued and nothing panics
	d.Notify(context.Background(), note("late"))
	assert.Len(t, pub.Sent(), 3)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d := NewDispatcher(pub, 2, zap.NewNop())

	// Run is not started, so the queue fills up
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		d.Notify(context.Background(), note(u))
	}

	go d.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Close(ctx))

	sent := pub.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "u1", sent[0].UserID)
	assert.Equal(t, "u2", sent[1].UserID)
}

func TestDispatcher_CloseTimesOut(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, 2, zap.NewNop())

	d.Notify(context.Background(), note("u1"))

	go d.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(pub.block)
}

func TestDispatcher_PublishErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, 4, zap.NewNop())

	d.Notify(context.Background(), note("u1"))
	d.Notify(context.Background(), note("u2"))

	go d.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Close(ctx))
	assert.Empty(t, pub.Sent())
}

type fakeSink struct {
	mu       sync.Mutex
	failures int
	err      error
	got      []models.Notification
	calls    int
}

func (s *fakeSink) Deliver(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.calls <= s.failures {
		return s.err
	}

	s.got = append(s.got, n)

	return nil
}

func message(t *testing.T, n models.Notification) *sarama.ConsumerMessage {
	t.Helper()

	raw, err := json.Marshal(n)
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: "notifications", Key: []byte(n.UserID), Value: raw}
}

func TestClaimHandler_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sink      *fakeSink
		msg       func(t *testing.T) *sarama.ConsumerMessage
		wantCalls int
		wantGot   int
	}{
		{
			name:      "delivered",
			sink:      &fakeSink{},
			msg:       func(t *testing.T) *sarama.ConsumerMessage { return message(t, note("u1")) },
			wantCalls: 1,
			wantGot:   1,
		},
		{
			name:      "retried then delivered",
			sink:      &fakeSink{failures: 2, err: errors.New("db down")},
			msg:       func(t *testing.T) *sarama.ConsumerMessage { return message(t, note("u1")) },
			wantCalls: 3,
			wantGot:   1,
		},
		{
			name:      "invalid is not retried",
			sink:      &fakeSink{failures: 5, err: models.ErrInvalidRequest},
			msg:       func(t *testing.T) *sarama.ConsumerMessage { return message(t, note("")) },
			wantCalls: 1,
		},
		{
			name:      "malformed payload skipped",
			sink:      &fakeSink{},
			msg:       func(*testing.T) *sarama.ConsumerMessage { return &sarama.ConsumerMessage{Value: []byte("{")} },
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &claimHandler{sink: tt.sink, log: zap.NewNop()}

			assert.True(t, h.handle(context.Background(), tt.msg(t)))
			assert.Equal(t, tt.wantCalls, tt.sink.calls)
			assert.Len(t, tt.sink.got, tt.wantGot)
		})
	}
}

func TestClaimHandler_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &fakeSink{failures: 10, err: errors.New("db down")}
	h := &claimHandler{sink: sink, log: zap.NewNop()}

	assert.False(t, h.handle(ctx, message(t, note("u1"))))
	assert.Equal(t, 1, sink.calls)
}

type fakeLive struct {
	mu  sync.Mutex
	got []models.Notification
	err error
}

func (f *fakeLive) PublishNotification(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.got = append(f.got, n)

	return f.err
}

func TestStoreSink_Deliver(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	live := &fakeLive{err: errors.New("redis down")}
	sink := NewStoreSink(db, live, zap.NewNop())

	require.NoError(t, sink.Deliver(ctx, note("u1")))
	assert.ErrorIs(t, sink.Deliver(ctx, note("")), models.ErrInvalidRequest)

	stored, err := pgnotifications.New().ListByUser(ctx, db, "u1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].IsRead)

	require.Len(t, live.got, 1)
	assert.Equal(t, stored[0].ID, live.got[0].ID)
}
