package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

type flakyPublisher struct {
	calls    int32
	failures int32
}

func (f *flakyPublisher) Name() string { return "flaky" }

func (f *flakyPublisher) Publish(ctx context.Context, e *event.Event) error {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return errors.New("connection reset")
	}
	return nil
}

type senderFunc func(ctx context.Context, receiverID, content string) error

func (f senderFunc) SendText(ctx context.Context, receiverID, content string) error {
	return f(ctx, receiverID, content)
}

func testEvent() *event.Event {
	return event.New(event.KindStepApproved, "r1", "s1", "lead", entity.RequestStatusInReview, time.Now())
}

func fastConfig() ReliableConfig {
	return ReliableConfig{
		RetryAttempts:   3,
		RetryDelay:      time.Millisecond,
		CallTimeout:     time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func TestReliablePublisher_RetriesUntilSuccess(t *testing.T) {
	next := &flakyPublisher{failures: 2}
	p := NewReliablePublisher(next, fastConfig(), zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))
	assert.Equal(t, "flaky", p.Name())
	assert.Equal(t, gobreaker.StateClosed, p.guard.state())
}

func TestReliablePublisher_BreakerOpens(t *testing.T) {
	next := &flakyPublisher{failures: 1000}
	cfg := fastConfig()
	cfg.RetryAttempts = 1
	p := NewReliablePublisher(next, cfg, zap.NewNop())
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, testEvent()))
	assert.Error(t, p.Publish(ctx, testEvent()))
	assert.Equal(t, gobreaker.StateOpen, p.guard.state())

	err := p.Publish(ctx, testEvent())
	assert.True(t, errors.Is(err, ErrSinkUnavailable))
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls), "open breaker must not reach the sink")
}

func TestReliablePublisher_RateLimitHonoursContext(t *testing.T) {
	next := &flakyPublisher{}
	cfg := fastConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	p := NewReliablePublisher(next, cfg, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Publish(ctx, testEvent()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestReliableSender(t *testing.T) {
	var attempts int32
	next := senderFunc(func(ctx context.Context, receiverID, content string) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.New("timeout")
		}
		assert.Equal(t, "ou_lead", receiverID)
		return nil
	})

	s := NewReliableSender("lark", next, fastConfig(), zap.NewNop())
	require.NoError(t, s.SendText(context.Background(), "ou_lead", "please review"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
