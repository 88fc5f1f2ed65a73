// Package session 按会话 ID 持久化路演记录
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidID       = errors.New("invalid session id")
)

// Store 会话 ID 到记录与状态的映射，Save 覆盖旧值，后写者生效
type Store interface {
	Load(ctx context.Context, id string) (conversation.Session, error)
	Save(ctx context.Context, s conversation.Session) error
	Close() error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidID 判断 id 能否在所有存储后端中作为键
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// NewStore 根据配置创建存储后端
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.StoreFile, "":
		return NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Backend)
	}
}
