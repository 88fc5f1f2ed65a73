package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

// PostgresStore PostgreSQL 会话存储，状态与记录同行保存，一次 upsert 同时更新
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pitch_sessions (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			transcript JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pitch_sessions_updated ON pitch_sessions (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (conversation.Session, error) {
	var (
		sess       = conversation.Session{ID: id}
		status     string
		transcript []byte
	)

	err := s.pool.QueryRow(ctx,
		`SELECT persona, status, transcript, updated_at FROM pitch_sessions WHERE id=$1`,
		id,
	).Scan(&sess.Persona, &status, &transcript, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return conversation.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return conversation.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}

	if err := json.Unmarshal(transcript, &sess.Turns); err != nil {
		return conversation.Session{}, fmt.Errorf("decode transcript %s: %w", id, err)
	}
	sess.Status = conversation.Status(status)
	if sess.Status == "" {
		sess.Status = conversation.DeriveStatus(sess.Turns)
	}
	return sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess conversation.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}

	transcript, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("encode transcript %s: %w", sess.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pitch_sessions (id, persona, status, transcript, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET persona = EXCLUDED.persona,
		     status = EXCLUDED.status,
		     transcript = EXCLUDED.transcript,
		     updated_at = EXCLUDED.updated_at`,
		sess.ID,
		sess.Persona,
		string(sess.Status),
		transcript,
		sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
