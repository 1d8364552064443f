package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec          *Record
	expiresAt    time.Time
	lastModified time.Time
}

// MemoryStore keeps sessions in process memory. Records do not survive a
// restart and are not shared between instances.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]memoryEntry
	touchAfter time.Duration
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(touchAfter time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]memoryEntry),
		touchAfter: touchAfter,
		now:        time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	rec := e.rec.clone()
	rec.LastModified = e.lastModified
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, rec *Record, ttl time.Duration) error {
	now := s.now()
	s.mu.Lock()
	s.sessions[id] = memoryEntry{rec: rec.clone(), expiresAt: now.Add(ttl), lastModified: now}
	s.mu.Unlock()
	rec.LastModified = now
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, rec *Record, ttl time.Duration) error {
	now := s.now()
	if now.Sub(rec.LastModified) < s.touchAfter {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	e.expiresAt = now.Add(ttl)
	e.lastModified = now
	s.sessions[id] = e
	rec.LastModified = now
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
