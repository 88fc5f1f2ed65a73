package conversation

import (
	"strings"
	"time"
)

// Status 路演会话的持久化状态
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ExitCommand 结束问答并请求最终评估
const ExitCommand = "exit"

// EvaluationPrompt 创始人退出后追加的评估指令，模型据此给出结论
const EvaluationPrompt = `
You are now done asking questions. Based on the entire conversation so far, give a comprehensive evaluation:

1. Score out of 10
2. 2-3 Strengths
3. 2-3 Areas for improvement
4. Final Verdict: Invest / Needs Work / Pass

Make it concise, insightful, and professional.
`

// Session 一次路演的对话记录与状态
type Session struct {
	ID        string    `json:"sessionId"`
	Persona   string    `json:"persona"`
	Status    Status    `json:"status"`
	Turns     []Turn    `json:"turns"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Completed 会话是否已结束
func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// Clone 深拷贝会话
func (s Session) Clone() Session {
	s.Turns = CloneTurns(s.Turns)
	return s
}

// IsExit 判断创始人消息是否为退出指令
func IsExit(message string) bool {
	return strings.EqualFold(strings.TrimSpace(message), ExitCommand)
}

// DeriveStatus 为未保存状态的旧记录推断状态
func DeriveStatus(turns []Turn) Status {
	for _, turn := range turns {
		if turn.Content == EvaluationPrompt {
			return StatusCompleted
		}
	}
	return StatusActive
}
