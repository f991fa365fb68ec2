package keywords

import (
	"strings"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

const (
	overallTopN  = 15
	debaterTopN  = 10
	timelineTopN = 5
	overallDocID = "overall"
)

// Keyword is a term with its TF-IDF weight.
type Keyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// RoundKeywords holds the per-debater keywords of one round.
type RoundKeywords struct {
	Round             int                  `json:"round"`
	KeywordsByDebater map[string][]Keyword `json:"keywordsByDebater"`
}

// Result 为一次关键词分析的完整输出，每次调用重新计算。
type Result struct {
	OverallKeywords   []Keyword            `json:"overallKeywords"`
	KeywordsByDebater map[string][]Keyword `json:"keywordsByDebater"`
	Timeline          []RoundKeywords      `json:"timeline"`
}

// Analyze extracts overall, per-debater and per-round keywords from a transcript.
// It returns nil when the transcript holds no debater message.
func Analyze(messages []debate.Message, debaterIDs []string) *Result {
	if !hasDebaterMessage(messages) {
		return nil
	}

	ids := uniqueIDs(debaterIDs)
	rounds := SegmentRounds(messages)

	contentByDebater := make(map[string]string, len(ids))
	debaterCorpus := make([]string, 0, len(ids))
	for _, id := range ids {
		content := joinContent(messages, id)
		contentByDebater[id] = content
		debaterCorpus = append(debaterCorpus, content)
	}

	overall := topKeywords(
		[]document{{id: overallDocID, content: strings.Join(debaterCorpus, " ")}},
		debaterCorpus,
		overallTopN,
	)[overallDocID]

	debaterDocs := make([]document, 0, len(ids))
	for _, id := range ids {
		debaterDocs = append(debaterDocs, document{id: id, content: contentByDebater[id]})
	}
	byDebater := topKeywords(debaterDocs, debaterCorpus, debaterTopN)

	roundCorpus := make([]string, len(rounds))
	for i, round := range rounds {
		roundCorpus[i] = joinAll(round)
	}

	timeline := make([]RoundKeywords, 0, len(rounds))
	for i, round := range rounds {
		docs := make([]document, 0, len(ids))
		for _, id := range ids {
			docs = append(docs, document{id: id, content: joinContent(round, id)})
		}
		timeline = append(timeline, RoundKeywords{
			Round:             i + 1,
			KeywordsByDebater: topKeywords(docs, roundCorpus, timelineTopN),
		})
	}

	return &Result{
		OverallKeywords:   overall,
		KeywordsByDebater: byDebater,
		Timeline:          timeline,
	}
}

// SegmentRounds groups consecutive debater messages into rounds closed by a judge
// message. A trailing run without a judge still forms the last round.
func SegmentRounds(messages []debate.Message) [][]debate.Message {
	var rounds [][]debate.Message
	var pending []debate.Message

	for _, msg := range messages {
		if debate.IsDebater(msg.Agent) {
			pending = append(pending, msg)
		}
		if debate.IsJudge(msg.Agent) && len(pending) > 0 {
			rounds = append(rounds, pending)
			pending = nil
		}
	}
	if len(pending) > 0 {
		rounds = append(rounds, pending)
	}
	return rounds
}

// DebatersInOrder lists the debater agents of a transcript by first appearance.
func DebatersInOrder(messages []debate.Message) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 4)
	for _, msg := range messages {
		if !debate.IsDebater(msg.Agent) {
			continue
		}
		if _, ok := seen[msg.Agent]; ok {
			continue
		}
		seen[msg.Agent] = struct{}{}
		ids = append(ids, msg.Agent)
	}
	return ids
}

func hasDebaterMessage(messages []debate.Message) bool {
	for _, msg := range messages {
		if debate.IsDebater(msg.Agent) {
			return true
		}
	}
	return false
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinContent(messages []debate.Message, agent string) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Agent == agent {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, " ")
}

func joinAll(messages []debate.Message) string {
	parts := make([]string, len(messages))
	for i, msg := range messages {
		parts[i] = msg.Content
	}
	return strings.Join(parts, " ")
}
