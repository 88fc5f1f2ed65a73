package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
)

// PromptTemplate 在基础投资人指令上叠加的角色设定
type PromptTemplate struct {
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager 角色提示词管理器
type PersonaPromptManager struct {
	personas  persona.Store
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager 创建角色提示词管理器
func NewPersonaPromptManager(personas persona.Store) *PersonaPromptManager {
	manager := &PersonaPromptManager{
		personas:  personas,
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// Resolve 返回角色的系统指令。未知或空名称回退到默认角色，再回退到固定指令
func (pm *PersonaPromptManager) Resolve(name string) string {
	p, ok := pm.lookup(name)
	if !ok {
		return baseInstruction
	}
	return pm.BuildSystemPrompt(&p)
}

// Canonical 返回 Resolve 实际使用的角色名
func (pm *PersonaPromptManager) Canonical(name string) string {
	if p, ok := pm.lookup(name); ok {
		return p.Name
	}
	return persona.DefaultName
}

func (pm *PersonaPromptManager) lookup(name string) (persona.Persona, bool) {
	if pm.personas == nil {
		return persona.Persona{}, false
	}
	if p, ok := pm.personas.FindByName(name); ok {
		return p, true
	}
	return pm.personas.FindByName(persona.DefaultName)
}

// BuildSystemPrompt 将角色信息填入投资人指令模板
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	fmt.Fprintf(&b, "\nYour persona:\n- Name: %s\n- Role: %s\n- Style: %s\n", p.Name, p.Title, p.Tone)
	if p.Description != "" {
		fmt.Fprintf(&b, "- Background: %s\n", p.Description)
	}
	if len(p.FocusAreas) > 0 {
		fmt.Fprintf(&b, "- Focus areas: %s\n", strings.Join(p.FocusAreas, ", "))
	}

	if tpl, ok := pm.templates[p.ID]; ok {
		writeList(&b, "Personality hints:", tpl.PersonalityHints)
		writeList(&b, "Conversation rules:", tpl.ContextRules)
	}

	if len(p.SampleQuestions) > 0 {
		b.WriteString("\nBelow are examples of good questions you may be inspired by:\n-----\n")
		b.WriteString(strings.Join(p.SampleQuestions, "\n"))
		b.WriteString("\n-----\n")
	}
	if len(p.SamplePitches) > 0 {
		b.WriteString("\nAnd here are some example founder pitches to guide your expectations:\n-----\n")
		b.WriteString(strings.Join(p.SamplePitches, "\n\n"))
		b.WriteString("\n-----\n")
	}

	b.WriteString("\nNow, begin the session.\n")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

const baseInstruction = `You are a seasoned Venture Capitalist (VC) with expertise in evaluating startup pitches.
Your job is to:
1. Carefully analyze the founder's pitch.
2. Ask insightful, high-quality questions one at a time.
3. Wait for the founder's answer before asking the next question.
4. End the session when you're satisfied or the founder types "exit".
5. Keep questions short. Ask strictly one question at a time.
6. After the Q&A ends, evaluate the pitch and answers:
   - Give a score out of 10.
   - List 2-3 strengths.
   - List 2-3 areas for improvement.
   - Conclude with a final verdict: Invest / Needs Work / Pass.

Be thoughtful, critical, and constructive. Ask follow-ups if needed.
`

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["shark"] = &PromptTemplate{
		PersonalityHints: []string{
			"Push back on hand-wavy answers and ask for the actual number",
			"Compare the founder's claims against public benchmarks for the sector",
		},
		ContextRules: []string{
			"Never accept projections as traction",
			"If an answer dodges the question, ask it again more directly",
		},
	}

	pm.templates["angel"] = &PromptTemplate{
		PersonalityHints: []string{
			"Acknowledge what is strong before probing what is weak",
			"Ask about the founder's personal story and insight",
		},
		ContextRules: []string{
			"Keep the tone encouraging while still being honest in the evaluation",
		},
	}
}
