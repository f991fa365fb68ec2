package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

// PromptTemplate defines the rules layered on top of an agent's own system message
type PromptTemplate struct {
	RoleSummary  string
	ContextRules []string
}

// AgentPromptManager builds prompts for debaters and the judge
type AgentPromptManager struct {
	templates map[string]*PromptTemplate
}

const (
	roleDebater = "debater"
	roleJudge   = "judge"
)

// NewAgentPromptManager creates a prompt manager with the default role templates
func NewAgentPromptManager() *AgentPromptManager {
	manager := &AgentPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// BuildSystemPrompt combines the agent's system message with its role rules
func (pm *AgentPromptManager) BuildSystemPrompt(turn debate.Turn) string {
	template := pm.templates[roleOf(turn.Agent.Name)]

	var builder strings.Builder
	if msg := strings.TrimSpace(turn.Agent.SystemMessage); msg != "" {
		builder.WriteString(msg)
		builder.WriteString("\n\n")
	}
	builder.WriteString(fmt.Sprintf(template.RoleSummary, turn.Agent.Name))
	builder.WriteString(fmt.Sprintf("\nDebate topic: %s", turn.Topic))
	if turn.MaxRounds > 0 {
		builder.WriteString(fmt.Sprintf("\nCurrent round: %d of %d.", turn.Round, turn.MaxRounds))
	}
	builder.WriteString("\n\nRules:\n- ")
	builder.WriteString(strings.Join(template.ContextRules, "\n- "))
	return builder.String()
}

// BuildTurnPrompt is the instruction that asks the agent to speak now
func (pm *AgentPromptManager) BuildTurnPrompt(turn debate.Turn) string {
	if debate.IsJudge(turn.Agent.Name) {
		if turn.MaxRounds > 0 && turn.Round >= turn.MaxRounds {
			return fmt.Sprintf("Round %d is the final round. Evaluate the whole debate and declare the winner.", turn.Round)
		}
		return fmt.Sprintf("Round %d is complete. Comment briefly on the arguments of this round.", turn.Round)
	}
	return fmt.Sprintf("Round %d: it is your turn, %s. Present your argument.", turn.Round, turn.Agent.Name)
}

func roleOf(name string) string {
	if debate.IsJudge(name) {
		return roleJudge
	}
	return roleDebater
}

func (pm *AgentPromptManager) loadDefaultTemplates() {
	pm.templates[roleDebater] = &PromptTemplate{
		RoleSummary: "You are %s, a participant in a structured multi-agent debate.",
		ContextRules: []string{
			"Reply with your own argument only, in at most three short paragraphs.",
			"Respond to the strongest point made by the other debaters in the previous turns.",
			"Do not repeat arguments you already made.",
			"Never speak for another agent and never declare a winner; that is the judge's role.",
			"Do not prefix your reply with your name.",
		},
	}

	pm.templates[roleJudge] = &PromptTemplate{
		RoleSummary: "You are %s, the neutral judge of a structured multi-agent debate.",
		ContextRules: []string{
			"After each round, comment briefly on the quality of each debater's arguments.",
			"Stay neutral and do not argue for either side.",
			"Only use the word \"winner\" when you declare the final result.",
			"When you declare the result, name the winning debater exactly, e.g. Debater_A.",
		},
	}
}
