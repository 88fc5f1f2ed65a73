// Package tui 本地路演的终端界面
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
)

const greeting = "Hello Founder! Paste your pitch below to get started. Type 'exit' for the final evaluation."

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	investorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	founderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	verdictStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// Sender 向会话发送一条创始人消息
type Sender interface {
	Send(ctx context.Context, sessionID, message, personaName string) (pitch.Reply, error)
}

type speaker int

const (
	speakerInvestor speaker = iota
	speakerFounder
	speakerVerdict
)

type entry struct {
	who  speaker
	text string
}

type replyMsg struct{ reply pitch.Reply }

type errMsg struct{ err error }

type model struct {
	ctx       context.Context
	sender    Sender
	sessionID string
	persona   string

	input   textinput.Model
	spinner spinner.Model

	history []entry
	waiting bool
	done    bool
	err     error
	width   int
}

func newModel(ctx context.Context, sender Sender, sessionID, persona string) model {
	input := textinput.New()
	input.Placeholder = "Your pitch or answer"
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Line

	return model{
		ctx:       ctx,
		sender:    sender,
		sessionID: sessionID,
		persona:   persona,
		input:     input,
		spinner:   spin,
		history:   []entry{{who: speakerInvestor, text: greeting}},
		width:     80,
	}
}

// Run 在终端启动交互式路演
func Run(ctx context.Context, sender Sender, sessionID, persona string) error {
	p := tea.NewProgram(newModel(ctx, sender, sessionID, persona), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
			text := strings.TrimSpace(m.input.Value())
			if m.waiting || text == "" {
				return m, nil
			}
			m.input.Reset()
			m.history = append(m.history, entry{who: speakerFounder, text: text})
			m.waiting = true
			m.err = nil
			return m, tea.Batch(sendCmd(m.ctx, m.sender, m.sessionID, text, m.persona), m.spinner.Tick)
		}

	case replyMsg:
		m.waiting = false
		m.history = append(m.history, entry{who: speakerInvestor, text: msg.reply.Message})
		if msg.reply.Evaluation != "" {
			m.history = append(m.history, entry{who: speakerVerdict, text: msg.reply.Evaluation})
		}
		if msg.reply.Done {
			m.done = true
			m.input.Blur()
		}
		return m, nil

	case errMsg:
		m.waiting = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	wrapWidth := max(m.width-4, 20)

	b.WriteString(headerStyle.Render(fmt.Sprintf("Pitch Tank · %s · session %s", m.persona, m.sessionID)))
	b.WriteString("\n\n")

	for _, e := range m.history {
		wrapped := ansi.Wrap(e.text, wrapWidth, "")
		switch e.who {
		case speakerFounder:
			b.WriteString(founderStyle.Render("Founder: "))
			b.WriteString(wrapped)
		case speakerVerdict:
			b.WriteString(verdictStyle.Render(wrapped))
		default:
			b.WriteString(investorStyle.Render("VC: "))
			b.WriteString(wrapped)
		}
		b.WriteString("\n\n")
	}

	if m.waiting {
		b.WriteString(m.spinner.View() + " the investor is thinking...\n\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n\n")
	}

	if m.done {
		b.WriteString(footerStyle.Render("Session complete. Press enter to quit."))
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("enter: send · esc: quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func sendCmd(ctx context.Context, sender Sender, sessionID, text, persona string) tea.Cmd {
	return func() tea.Msg {
		reply, err := sender.Send(ctx, sessionID, text, persona)
		if err != nil {
			return errMsg{err: err}
		}
		return replyMsg{reply: reply}
	}
}
