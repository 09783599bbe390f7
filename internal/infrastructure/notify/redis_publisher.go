// Package notify delivers domain events to outside channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// DefaultChannelPrefix is used when no prefix is configured
const DefaultChannelPrefix = "approval"

// KindChannel is the pub/sub channel carrying every event of one kind.
// Kinds are written in snake case, e.g. approval:events:step_approved.
func KindChannel(prefix string, kind event.Kind) string {
	return fmt.Sprintf("%s:events:%s", prefix, snakeCase(string(kind)))
}

func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RequestChannel is the pub/sub channel carrying every event of one request
func RequestChannel(prefix, requestID string) string {
	return fmt.Sprintf("%s:request:%s", prefix, requestID)
}

// RedisPublisher publishes events as JSON on Redis pub/sub channels
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher on the given client
func NewRedisPublisher(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
	}
}

// Name identifies the sink in logs and metrics
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Publish sends the event to its kind channel and its request channel in one round trip
func (p *RedisPublisher) Publish(ctx context.Context, e *event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, KindChannel(p.prefix, e.Kind), payload)
	pipe.Publish(ctx, RequestChannel(p.prefix, e.RequestID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", e.ID),
			zap.String("event_kind", string(e.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.EventPublisher = (*RedisPublisher)(nil)
