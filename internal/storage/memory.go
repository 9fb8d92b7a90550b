package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/identity-bot/internal/session"
)

// Ensure MemoryStore implements Store
var (
	_ Store  = (*MemoryStore)(nil)
	_ Pruner = (*MemoryStore)(nil)
)

// MemoryStore keeps sessions in process memory. Values are cloned on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[session.Key]*session.Session
	touched  map[session.Key]time.Time
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[session.Key]*session.Session),
		touched:  make(map[session.Key]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key session.Key) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions[key].Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, key session.Key, provider string, data session.ProviderSession) error {
	return s.UpdateProvider(ctx, key, provider, func(ps *session.ProviderSession) error {
		*ps = data
		return nil
	})
}

func (s *MemoryStore) UpdateProvider(_ context.Context, key session.Key, provider string, fn func(*session.ProviderSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.sessions[key].Provider(provider).Clone()
	if err := fn(&ps); err != nil {
		return err
	}

	s.sessionLocked(key).SetProvider(provider, ps.Clone())
	return nil
}

func (s *MemoryStore) SetDialog(_ context.Context, key session.Key, state session.DialogState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionLocked(key).Dialog = state
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key session.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	delete(s.touched, key)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored sessions
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) sessionLocked(key session.Key) *session.Session {
	sess, ok := s.sessions[key]
	if !ok {
		sess = session.New()
		s.sessions[key] = sess
	}
	s.touched[key] = s.now()
	return sess
}

// PruneIdle drops sessions that have not been written for maxIdle
func (s *MemoryStore) PruneIdle(_ context.Context, maxIdle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	pruned := 0
	for key, at := range s.touched {
		if at.Before(cutoff) {
			delete(s.sessions, key)
			delete(s.touched, key)
			pruned++
		}
	}
	return pruned, nil
}
