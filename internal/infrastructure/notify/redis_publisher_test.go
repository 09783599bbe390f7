package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

func TestChannels(t *testing.T) {
	assert.Equal(t, "approval:events:step_approved", KindChannel("approval", event.KindStepApproved))
	assert.Equal(t, "approval:events:step_escalation_due", KindChannel("approval", event.KindStepEscalationDue))
	assert.Equal(t, "acme:events:request_completed", KindChannel("acme", event.KindRequestCompleted))
	assert.Equal(t, "acme:request:r1", RequestChannel("acme", "r1"))
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, KindChannel(DefaultChannelPrefix, event.KindStepApproved), RequestChannel(DefaultChannelPrefix, "r1"))
	defer sub.Close()
	// first Receive confirms the subscription
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb, "", zap.NewNop())
	assert.Equal(t, "redis", p.Name())

	evt := event.New(event.KindStepApproved, "r1", "s1", "lead", entity.RequestStatusInReview, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)).
		WithPayload(event.PayloadActivatedSteps, "s2")
	require.NoError(t, p.Publish(ctx, evt))

	channels := map[string]bool{}
	ch := sub.Channel()
	for len(channels) < 2 {
		select {
		case msg := <-ch:
			channels[msg.Channel] = true

			var got event.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, evt.ID, got.ID)
			assert.Equal(t, event.KindStepApproved, got.Kind)
			assert.Equal(t, entity.RequestStatusInReview, got.ResultingStatus)
			assert.Equal(t, "s2", got.PayloadValue(event.PayloadActivatedSteps))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for messages, got %v", channels)
		}
	}
	assert.True(t, channels["approval:events:step_approved"])
	assert.True(t, channels["approval:request:r1"])
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	p := NewRedisPublisher(rdb, "acme", zap.NewNop())
	err = p.Publish(context.Background(), event.New(event.KindRequestPublished, "r1", "", "dev", entity.RequestStatusPending, time.Now()))
	assert.Error(t, err)
}
