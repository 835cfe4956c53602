package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

func (r *RedisSessionRepository) Load(ctx context.Context, sessionID string) (*model.ConversationState, bool, error) {
	key := r.sessionKey(sessionID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, false, errx.WrapRedis(err)
	}

	s, err := decodeState(raw)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to decode session state")
		return nil, false, err
	}
	return s, true, nil
}

// Save writes the whole state in one SET and refreshes the TTL.
func (r *RedisSessionRepository) Save(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("save session: missing session id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to marshal session state")
		return fmt.Errorf("marshal session state: %w", err)
	}
	key := r.sessionKey(state.SessionID)

	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// decodeState unmarshals a stored state. Records written before versioning
// carry schema_version 0 and are read as version 1.
func decodeState(raw []byte) (*model.ConversationState, error) {
	var s model.ConversationState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	switch {
	case s.SchemaVersion == 0:
		s.SchemaVersion = model.StateSchemaVersion
	case s.SchemaVersion > model.StateSchemaVersion:
		return nil, fmt.Errorf("unsupported session schema version %d", s.SchemaVersion)
	}
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("stored session has unknown phase %q", s.Phase)
	}
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	return &s, nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
