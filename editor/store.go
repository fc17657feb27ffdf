// ABOUTME: In-memory session store with TTL cleanup and capacity limits
// ABOUTME: Thread-safe registry of open editing sessions, at most one per node

package editor

import (
	"context"
	"sync"
	"time"

	"github.com/2389-research/flowgraph/mutation"
	"github.com/2389-research/flowgraph/selection"
)

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	engine      *mutation.Engine
	selection   *selection.Model
	maxSessions int
	ttl         time.Duration
}

// NewStore creates a new session store
func NewStore(engine *mutation.Engine, sel *selection.Model, maxSessions int, ttl time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		engine:      engine,
		selection:   sel,
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// Open returns the open session for nodeID or starts one
func (s *Store) Open(ctx context.Context, nodeID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapClosed()
	for _, sess := range s.sessions {
		if sess.NodeID == nodeID {
			_ = sess.touch()
			return sess, nil
		}
	}

	// Check capacity
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		// Evict least recently used session
		var oldestID string
		var oldestTime time.Time
		for id, sess := range s.sessions {
			if last := sess.lastAccess(); oldestTime.IsZero() || last.Before(oldestTime) {
				oldestID = id
				oldestTime = last
			}
		}
		s.sessions[oldestID].Close()
		delete(s.sessions, oldestID)
	}

	sess, err := Open(ctx, s.engine, s.selection, nodeID)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get retrieves an open session by ID and updates its LastAccess time
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if err := sess.touch(); err != nil {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// Len returns the number of sessions held, closed ones included until reaped
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseAll closes every session
func (s *Store) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

// Cleanup closes sessions idle for longer than the TTL and drops closed ones
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.lastAccess().Before(cutoff) {
			sess.Close()
			delete(s.sessions, id)
		}
	}
	s.reapClosed()
}

func (s *Store) reapClosed() {
	for id, sess := range s.sessions {
		if closed, _ := sess.Closed(); closed {
			delete(s.sessions, id)
		}
	}
}

// StartCleanup starts a background cleanup goroutine and returns a stop function
func (s *Store) StartCleanup(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
