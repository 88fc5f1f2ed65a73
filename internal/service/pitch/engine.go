// Package pitch 基于会话存储与模型驱动投资人问答状态机
package pitch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
	"github.com/zhouzirui/pitch-tank/backend/internal/observability"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/ai"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrProviderFailure = errors.New("completion provider failure")
	ErrPersistence     = errors.New("session persistence failure")
)

const (
	MessageEvaluation   = "Q&A complete. Here's your final evaluation:"
	MessageAlreadyEnded = "Session already ended. Please restart."

	defaultTimeout = 60 * time.Second
)

// Reply 一条创始人消息的处理结果
type Reply struct {
	Message    string `json:"message"`
	Done       bool   `json:"done"`
	Evaluation string `json:"evaluation,omitempty"`
}

// Resolver 角色系统指令
type Resolver interface {
	Resolve(name string) string
	Canonical(name string) string
}

// Options 引擎参数，零值使用默认配置
type Options struct {
	Timeout time.Duration
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Engine 管理路演会话 NEW -> ACTIVE -> COMPLETED 的生命周期
type Engine struct {
	store    session.Store
	provider ai.Provider
	personas Resolver
	timeout  time.Duration
	metrics  *observability.Metrics
	now      func() time.Time
	locks    *keyedMutex
}

func NewEngine(store session.Store, provider ai.Provider, personas Resolver, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    store,
		provider: provider,
		personas: personas,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		now:      opts.Now,
		locks:    newKeyedMutex(),
	}
}

// Send 处理一条创始人消息。失败时不写入任何内容，可直接重试
func (e *Engine) Send(ctx context.Context, sessionID, message, personaName string) (Reply, error) {
	if err := validateID(sessionID); err != nil {
		e.metrics.ObserveTransition(observability.TransitionRejected)
		return Reply{}, err
	}
	if strings.TrimSpace(message) == "" {
		e.metrics.ObserveTransition(observability.TransitionRejected)
		return Reply{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	kind := observability.TransitionMessage
	sess, err := e.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		sess = e.seed(sessionID, personaName)
		kind = observability.TransitionStart
	case err != nil:
		return Reply{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	case sess.Completed():
		e.metrics.ObserveTransition(observability.TransitionEnded)
		return Reply{Message: MessageAlreadyEnded, Done: true}, nil
	}

	next := sess.Clone()
	exit := conversation.IsExit(message)
	if exit {
		kind = observability.TransitionExit
		next.Turns = append(next.Turns,
			conversation.UserTurn(conversation.ExitCommand),
			conversation.UserTurn(conversation.EvaluationPrompt),
		)
	} else {
		next.Turns = append(next.Turns, conversation.UserTurn(strings.TrimSpace(message)))
	}

	content, err := e.complete(ctx, next.Turns)
	if err != nil {
		log.Printf("[pitch] session=%s transition=%s failed: %v", sessionID, kind, err)
		return Reply{}, err
	}

	content = strings.TrimSpace(content)
	next.Turns = append(next.Turns, conversation.AssistantTurn(content))
	if exit {
		next.Status = conversation.StatusCompleted
	}
	next.UpdatedAt = e.now()

	if err := e.store.Save(ctx, next); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.metrics.ObserveTransition(kind)
	log.Printf("[pitch] session=%s transition=%s turns=%d", sessionID, kind, len(next.Turns))

	if exit {
		return Reply{Message: MessageEvaluation, Done: true, Evaluation: content}, nil
	}
	return Reply{Message: content}, nil
}

// Reset 无论当前状态，将会话重置为仅含系统消息
func (e *Engine) Reset(ctx context.Context, sessionID, personaName string) (string, error) {
	if err := validateID(sessionID); err != nil {
		return "", err
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	if err := e.store.Save(ctx, e.seed(sessionID, personaName)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.metrics.ObserveTransition(observability.TransitionReset)
	log.Printf("[pitch] session=%s reset", sessionID)
	return fmt.Sprintf("Session '%s' reset.", sessionID), nil
}

// Transcript 返回已保存的会话，不存在时返回 session.ErrSessionNotFound
func (e *Engine) Transcript(ctx context.Context, sessionID string) (conversation.Session, error) {
	if err := validateID(sessionID); err != nil {
		return conversation.Session{}, err
	}

	sess, err := e.store.Load(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return conversation.Session{}, err
	}
	if err != nil {
		return conversation.Session{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return sess, nil
}

func (e *Engine) seed(sessionID, personaName string) conversation.Session {
	return conversation.Session{
		ID:        sessionID,
		Persona:   e.personas.Canonical(personaName),
		Status:    conversation.StatusActive,
		Turns:     []conversation.Turn{conversation.SystemTurn(e.personas.Resolve(personaName))},
		UpdatedAt: e.now(),
	}
}

func (e *Engine) complete(ctx context.Context, turns []conversation.Turn) (string, error) {
	if e.provider == nil {
		return "", fmt.Errorf("%w: %w", ErrProviderFailure, ai.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	name := e.provider.Name()
	start := time.Now()
	content, err := e.provider.Complete(ctx, turns)
	e.metrics.ObserveCompletionLatency(name, time.Since(start))

	if err == nil && strings.TrimSpace(content) == "" {
		err = ai.ErrEmptyCompletion
	}
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, ai.ErrEmptyCompletion):
			reason = "empty"
		}
		e.metrics.ObserveProviderError(name, reason)
		return "", fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	return content, nil
}

func validateID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if !session.ValidID(sessionID) {
		return fmt.Errorf("%w: session id %q has unsupported characters", ErrInvalidInput, sessionID)
	}
	return nil
}
