package debate

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// JudgeName is the fixed name of the judging agent.
	JudgeName = "Judge"
	// UserName marks human or moderator input.
	UserName = "user"
	// DebaterPrefix prefixes every debater name, e.g. Debater_A.
	DebaterPrefix = "Debater_"
)

var (
	ErrNoDebaters     = errors.New("at least one debater is required")
	ErrJudgeRequired  = errors.New("exactly one judge is required")
	ErrDuplicateAgent = errors.New("duplicate agent name")
	ErrUnknownAgent   = errors.New("unknown agent name")
)

// Agent 描述一个参与辩论的智能体。
type Agent struct {
	Name          string `json:"name"`
	SystemMessage string `json:"systemMessage"`
}

// IsDebater reports whether name follows the Debater_<letter> pattern.
func IsDebater(name string) bool {
	return strings.HasPrefix(name, DebaterPrefix)
}

// IsJudge reports whether name is the judge.
func IsJudge(name string) bool {
	return name == JudgeName
}

// DebaterName returns the canonical name for the i-th debater (0 -> Debater_A).
func DebaterName(i int) string {
	return fmt.Sprintf("%s%c", DebaterPrefix, 'A'+rune(i%26))
}

// Seed 提供默认的辩手与裁判设定。
func Seed() []Agent {
	return []Agent{
		{
			Name:          DebaterName(0),
			SystemMessage: "You are arguing for the proposition. Be concise and logical.",
		},
		{
			Name:          DebaterName(1),
			SystemMessage: "You are arguing against the proposition. Be concise and logical.",
		},
		{
			Name:          JudgeName,
			SystemMessage: "You are a neutral judge. After each pair of responses, comment briefly. When the debate ends, declare the winner.",
		},
	}
}

// NormalizeAgents returns a copy of the roster with names trimmed, so that the
// stored roster matches what ValidateAgents checked.
func NormalizeAgents(agents []Agent) []Agent {
	out := make([]Agent, len(agents))
	for i, agent := range agents {
		agent.Name = strings.TrimSpace(agent.Name)
		out[i] = agent
	}
	return out
}

// ValidateAgents checks that a roster can run a debate. Names must already be
// trimmed; see NormalizeAgents.

func ValidateAgents(agents []Agent) error {
	seen := make(map[string]struct{}, len(agents))
	debaters, judges := 0, 0

	for _, agent := range agents {
		name := agent.Name
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
		}
		seen[name] = struct{}{}

		switch {
		case IsJudge(name):
			judges++
		case isValidDebaterName(name):
			debaters++
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAgent, name)
		}
	}

	if debaters == 0 {
		return ErrNoDebaters
	}
	if judges != 1 {
		return ErrJudgeRequired
	}
	return nil
}

func isValidDebaterName(name string) bool {
	if !IsDebater(name) {
		return false
	}
	suffix := strings.TrimPrefix(name, DebaterPrefix)
	if len(suffix) != 1 {
		return false
	}
	return suffix[0] >= 'A' && suffix[0] <= 'Z'
}

// SplitRoster returns the debaters in roster order and the judge.
func SplitRoster(agents []Agent) ([]Agent, Agent) {
	var judge Agent
	debaters := make([]Agent, 0, len(agents))
	for _, agent := range agents {
		if IsJudge(agent.Name) {
			judge = agent
			continue
		}
		if IsDebater(agent.Name) {
			debaters = append(debaters, agent)
		}
	}
	return debaters, judge
}
