package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
)

// RedisNotifier publishes session events on session:<id>:events.
type RedisNotifier struct {
	rdb redis.Cmdable
}

func NewRedisNotifier(rdb redis.Cmdable) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

// EventsChannel returns the pub/sub channel for a session.
func EventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

func (n *RedisNotifier) Notify(ctx context.Context, event model.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, EventsChannel(event.SessionID), b).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.Notifier = (*RedisNotifier)(nil)
