package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

type memoryEntry struct {
	state   *model.ConversationState
	expires time.Time
}

// MemorySessionRepository keeps sessions in process memory. States are cloned
// on the way in and out so callers never share the stored copy.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionRepository creates an in-memory store. A zero ttl keeps
// sessions until they are evicted.
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *MemorySessionRepository) Load(_ context.Context, sessionID string) (*model.ConversationState, bool, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && r.now().After(e.expires) {
		r.Evict(sessionID)
		return nil, false, nil
	}
	return e.state.Clone(), true, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, state *model.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("save session: missing session id")
	}
	e := memoryEntry{state: state.Clone()}
	if r.ttl > 0 {
		e.expires = r.now().Add(r.ttl)
	}
	r.mu.Lock()
	r.sessions[state.SessionID] = e
	r.mu.Unlock()
	return nil
}

// Evict drops a session.
func (r *MemorySessionRepository) Evict(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Sweep drops every expired session and returns how many were removed.
func (r *MemorySessionRepository) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.sessions {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (r *MemorySessionRepository) RunJanitor(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logx.Debug().Int("removed", n).Int("remaining", r.Len()).Msg("Swept expired sessions")
			}
		}
	}
}

// Len returns the number of stored sessions, expired or not.
func (r *MemorySessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
