package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

// FileStore 每个会话保存为目录下的一个 JSON 文件
type FileStore struct {
	dir  string
	sync func(*os.File) error
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "conversations"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, sync: (*os.File).Sync}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, id string) (conversation.Session, error) {
	if err := ctx.Err(); err != nil {
		return conversation.Session{}, err
	}
	p, err := s.path(id)
	if err != nil {
		return conversation.Session{}, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return conversation.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return conversation.Session{}, fmt.Errorf("read session %s: %w", id, err)
	}

	sess, err := decodeDocument(id, data)
	if err != nil {
		return conversation.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// decodeDocument 兼容当前对象格式与旧版消息数组
func decodeDocument(id string, data []byte) (conversation.Session, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var turns []conversation.Turn
		if err := json.Unmarshal(trimmed, &turns); err != nil {
			return conversation.Session{}, err
		}
		log.Printf("[store] migrating legacy transcript for session=%s", id)
		return conversation.Session{
			ID:     id,
			Status: conversation.DeriveStatus(turns),
			Turns:  turns,
		}, nil
	}

	var sess conversation.Session
	if err := json.Unmarshal(trimmed, &sess); err != nil {
		return conversation.Session{}, err
	}
	sess.ID = id
	if sess.Status == "" {
		sess.Status = conversation.DeriveStatus(sess.Turns)
	}
	return sess, nil
}

// Save 先写同目录临时文件再重命名覆盖，写入失败时保留旧记录
func (s *FileStore) Save(ctx context.Context, sess conversation.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(sess.ID)
	if err != nil {
		return err
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	if err := s.sync(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	committed = true
	return nil
}

func (s *FileStore) Close() error { return nil }
