// Package diagnosis classifies debate rounds against the MAST failure taxonomy.
package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/mad-arena/backend/internal/analysis/keywords"
	"github.com/zhouzirui/mad-arena/backend/internal/analysis/mast"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

// Config 控制诊断服务的行为。
type Config struct {
	LLMEnabled  bool
	Concurrency int
}

// Service asks the chat model for a MAST diagnosis and falls back to heuristics.
type Service struct {
	enabled     bool
	classifier  compose.Runnable[map[string]any, *schema.Message]
	concurrency int
}

type classifierPayload struct {
	Failures []struct {
		ModeID    string `json:"mode_id"`
		ModeName  string `json:"mode_name"`
		Agent     string `json:"agent"`
		Reasoning string `json:"reasoning"`
	} `json:"failures"`
	HealthScore *float64 `json:"health_score"`
	Summary     string   `json:"summary"`
}

// NewService creates the diagnosis service. chatModel may be nil; only heuristics
// are used then.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config) (*Service, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	svc := &Service{
		enabled:     cfg.LLMEnabled && chatModel != nil,
		concurrency: concurrency,
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(diagnosisSystemPrompt),
		schema.UserMessage(diagnosisUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile diagnosis chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the model classifier is used.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// DiagnoseRound diagnoses one round. It never fails: model or parse errors fall
// back to the heuristic report.
func (s *Service) DiagnoseRound(ctx context.Context, transcript []debate.Message, round int, debaters []string) mast.Report {
	if !s.Enabled() {
		return mast.Diagnose(transcript, round, debaters)
	}

	roundMessages := mast.MessagesInRound(transcript, round)
	if len(roundMessages) == 0 {
		return mast.Diagnose(transcript, round, debaters)
	}

	input := map[string]any{
		"taxonomy":   mast.Describe(),
		"round":      round,
		"debaters":   strings.Join(debaters, ", "),
		"transcript": formatTranscript(roundMessages),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		log.Printf("[diagnosis] classifier invoke failed for round %d, use fallback: %v", round, err)
		return mast.Diagnose(transcript, round, debaters)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return mast.Diagnose(transcript, round, debaters)
	}

	report, err := parseClassifierOutput(msg.Content, round)
	if err != nil {
		log.Printf("[diagnosis] classifier output parse failed for round %d, use fallback: %v", round, err)
		return mast.Diagnose(transcript, round, debaters)
	}
	return report
}

// DiagnoseDebate diagnoses every round concurrently; reports are in round order.
// Messages without round numbers are numbered first.
func (s *Service) DiagnoseDebate(ctx context.Context, transcript []debate.Message, debaters []string) ([]mast.Report, error) {
	if debate.NeedsRounds(transcript) {
		transcript = debate.AssignRounds(transcript)
	}
	if len(debaters) == 0 {
		debaters = keywords.DebatersInOrder(transcript)
	}

	rounds := mast.Rounds(transcript)
	reports := make([]mast.Report, len(rounds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, round := range rounds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = s.DiagnoseRound(gctx, transcript, round, debaters)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func parseClassifierOutput(content string, round int) (mast.Report, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return mast.Report{}, fmt.Errorf("missing json object")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return mast.Report{}, err
	}

	failures := make([]mast.Failure, 0, len(payload.Failures))
	for _, f := range payload.Failures {
		mode, ok := mast.Lookup(f.ModeID)
		if !ok {
			log.Printf("[diagnosis] dropping unknown failure mode %q", f.ModeID)
			continue
		}
		failures = append(failures, mast.Failure{
			ModeID:    mode.ID,
			ModeName:  mode.Name,
			Agent:     strings.TrimSpace(f.Agent),
			Reasoning: strings.TrimSpace(f.Reasoning),
		})
	}

	report := mast.NewReport(round, failures, mast.SourceLLM)
	if payload.HealthScore != nil {
		report.HealthScore = clampScore(*payload.HealthScore)
	}
	if summary := strings.TrimSpace(payload.Summary); summary != "" {
		report.Summary = summary
	}
	return report, nil
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}

func formatTranscript(messages []debate.Message) string {
	var builder strings.Builder
	for i, msg := range messages {
		builder.WriteString(msg.Agent)
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(msg.Content))
		if i < len(messages)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// Prompts are FString templates: literal braces are not allowed here.
const diagnosisSystemPrompt = "You review transcripts of multi-agent debates for coordination failures, using the MAST failure taxonomy below.\n\n{taxonomy}\nOutput rules: return exactly one JSON object with the fields failures (an array of objects with mode_id, mode_name, agent and reasoning), health_score (0 to 100, 100 means no failures) and summary (one sentence). Only report failure modes listed above. Return an empty failures array when the round is healthy. Do not output any other text."

const diagnosisUserPrompt = "Debaters: {debaters}\n\nTranscript of round {round}:\n{transcript}\n\nReturn the JSON diagnosis for this round."
