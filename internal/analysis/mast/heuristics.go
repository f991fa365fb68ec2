package mast

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zhouzirui/mad-arena/backend/internal/analysis/keywords"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

const (
	// SourceHeuristic marks reports produced by the rule-based checks below.
	SourceHeuristic = "heuristic"
	// SourceLLM marks reports produced by the model classifier.
	SourceLLM = "llm"

	repetitionThreshold = 0.8
	penaltyPerFailure   = 20
)

// Failure is one detected failure mode.
type Failure struct {
	ModeID    string `json:"mode_id"`
	ModeName  string `json:"mode_name"`
	Agent     string `json:"agent,omitempty"`
	Reasoning string `json:"reasoning"`
}

// Report 为单个回合的诊断结果。
type Report struct {
	Round       int       `json:"round"`
	Failures    []Failure `json:"failures"`
	HealthScore int       `json:"health_score"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
}

var roleBreakPhrases = []string{"the winner is", "is the winner", "declare the winner", "i declare", "wins this debate"}

// Diagnose 使用启发式规则检查指定回合的失效模式。
func Diagnose(transcript []debate.Message, round int, debaters []string) Report {
	roundMessages := MessagesInRound(transcript, round)

	var failures []Failure
	failures = append(failures, detectRepetition(transcript, round)...)
	failures = append(failures, detectRoleBreak(roundMessages)...)
	if f, ok := detectIgnoredTermination(transcript, round); ok {
		failures = append(failures, f)
	}
	if f, ok := detectPrematureEnd(roundMessages, debaters); ok {
		failures = append(failures, f)
	}

	return NewReport(round, failures, SourceHeuristic)
}

// NewReport derives health score and summary from the failures.
func NewReport(round int, failures []Failure, source string) Report {
	if failures == nil {
		failures = []Failure{}
	}
	score := 100 - penaltyPerFailure*len(failures)
	if score < 0 {
		score = 0
	}
	return Report{
		Round:       round,
		Failures:    failures,
		HealthScore: score,
		Summary:     summarize(round, failures),
		Source:      source,
	}
}

// MessagesInRound filters the transcript to one round.
func MessagesInRound(transcript []debate.Message, round int) []debate.Message {
	out := make([]debate.Message, 0, 4)
	for _, msg := range transcript {
		if msg.Round == round {
			out = append(out, msg)
		}
	}
	return out
}

// Rounds lists the distinct round numbers containing a debater or judge message.
func Rounds(transcript []debate.Message) []int {
	var rounds []int
	for _, msg := range transcript {
		if !debate.IsDebater(msg.Agent) && !debate.IsJudge(msg.Agent) {
			continue
		}
		if !slices.Contains(rounds, msg.Round) {
			rounds = append(rounds, msg.Round)
		}
	}
	slices.Sort(rounds)
	return rounds
}

func detectRepetition(transcript []debate.Message, round int) []Failure {
	var failures []Failure
	for i, msg := range transcript {
		if msg.Round != round || !debate.IsDebater(msg.Agent) {
			continue
		}
		current := tokenSet(msg.Content)
		if len(current) == 0 {
			continue
		}
		for _, earlier := range transcript[:i] {
			if earlier.Agent != msg.Agent {
				continue
			}
			similarity := jaccard(current, tokenSet(earlier.Content))
			if similarity >= repetitionThreshold {
				failures = append(failures, newFailure(ModeStepRepetition, msg.Agent,
					fmt.Sprintf("%s repeated an earlier argument from round %d (similarity %.2f).", msg.Agent, earlier.Round, similarity)))
				break
			}
		}
	}
	return failures
}

func detectRoleBreak(roundMessages []debate.Message) []Failure {
	var failures []Failure
	for _, msg := range roundMessages {
		if !debate.IsDebater(msg.Agent) {
			continue
		}
		lower := strings.ToLower(msg.Content)
		for _, phrase := range roleBreakPhrases {
			if strings.Contains(lower, phrase) {
				failures = append(failures, newFailure(ModeDisobeyRole, msg.Agent,
					fmt.Sprintf("%s declared a result, which is the judge's role.", msg.Agent)))
				break
			}
		}
	}
	return failures
}

func detectIgnoredTermination(transcript []debate.Message, round int) (Failure, bool) {
	decidedIn := 0
	for _, msg := range transcript {
		if debate.IsJudge(msg.Agent) && msg.Round < round && debate.DeclaresWinner(msg.Content) {
			decidedIn = msg.Round
			break
		}
	}
	if decidedIn == 0 {
		return Failure{}, false
	}

	for _, msg := range transcript {
		if msg.Round == round && debate.IsDebater(msg.Agent) {
			return newFailure(ModeUnawareTermination, msg.Agent,
				fmt.Sprintf("Debate continued after the judge declared a winner in round %d.", decidedIn)), true
		}
	}
	return Failure{}, false
}

func detectPrematureEnd(roundMessages []debate.Message, debaters []string) (Failure, bool) {
	declared := false
	spoke := make(map[string]bool, len(debaters))
	for _, msg := range roundMessages {
		if debate.IsJudge(msg.Agent) && debate.DeclaresWinner(msg.Content) {
			declared = true
		}
		if debate.IsDebater(msg.Agent) {
			spoke[msg.Agent] = true
		}
	}
	if !declared {
		return Failure{}, false
	}

	var missing []string
	for _, name := range debaters {
		if !spoke[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return Failure{}, false
	}
	return newFailure(ModePrematureEnd, debate.JudgeName,
		fmt.Sprintf("Winner declared before %s argued in this round.", strings.Join(missing, ", "))), true
}

func newFailure(modeID, agent, reasoning string) Failure {
	mode, _ := Lookup(modeID)
	return Failure{ModeID: mode.ID, ModeName: mode.Name, Agent: agent, Reasoning: reasoning}
}

func summarize(round int, failures []Failure) string {
	if len(failures) == 0 {
		return fmt.Sprintf("No failure modes detected in round %d.", round)
	}
	labels := make([]string, 0, len(failures))
	for _, f := range failures {
		label := fmt.Sprintf("%s (%s)", f.ModeID, f.ModeName)
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}
	return fmt.Sprintf("Round %d shows %s.", round, strings.Join(labels, ", "))
}

func tokenSet(text string) map[string]struct{} {
	tokens := keywords.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
