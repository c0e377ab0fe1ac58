package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps threads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
}

type memoryThread struct {
	meta    Thread
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*memoryThread)}
}

func (s *MemoryStore) CreateThread(_ context.Context, userID, title string) (Thread, error) {
	now := time.Now()
	t := Thread{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = &memoryThread{meta: t}
	return t, nil
}

func (s *MemoryStore) Thread(_ context.Context, threadID string) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return t.meta, nil
}

func (s *MemoryStore) Append(_ context.Context, threadID, userID string, entries ...Entry) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		t = &memoryThread{meta: Thread{ID: threadID, UserID: userID, CreatedAt: now}}
		s.threads[threadID] = t
	}
	if t.meta.Title == "" {
		for _, e := range entries {
			if e.Role == RoleUser {
				t.meta.Title = TitleFrom(e.Content)
				break
			}
		}
	}
	t.entries = append(t.entries, stamp(entries, now)...)
	t.meta.UpdatedAt = now
	return nil
}

func (s *MemoryStore) History(_ context.Context, threadID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	entries := t.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return slices.Clone(entries), nil
}

func (s *MemoryStore) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[threadID]; ok {
		t.entries = nil
		t.meta.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) Threads(_ context.Context, userID string) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Thread
	for _, t := range s.threads {
		if t.meta.UserID == userID {
			out = append(out, t.meta)
		}
	}
	slices.SortFunc(out, func(a, b Thread) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
