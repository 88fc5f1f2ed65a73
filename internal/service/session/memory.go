package session

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

// MemoryStore 进程内会话存储，读写均深拷贝
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]conversation.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]conversation.Session)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sess conversation.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
