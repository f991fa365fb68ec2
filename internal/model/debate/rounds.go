package debate

import "strings"

var controlMarkers = []string{"TERMINATE", "Proceed to next round", "Proceed to the next round"}

// IsControlContent reports whether content is an orchestration command rather than
// an argument, e.g. a TERMINATE marker.
func IsControlContent(content string) bool {
	for _, marker := range controlMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// DeclaresWinner reports whether a message announces the debate result.
func DeclaresWinner(content string) bool {
	return strings.Contains(strings.ToLower(content), "winner")
}

// AssignRounds numbers messages starting at round 1; the round advances after each
// judge message. Empty and control messages are dropped.
func AssignRounds(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	round := 1
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" || IsControlContent(content) {
			continue
		}
		msg.Content = content
		msg.Round = round
		out = append(out, msg)
		if IsJudge(msg.Agent) {
			round++
		}
	}
	return out
}

// NeedsRounds reports whether no message carries a round number.
func NeedsRounds(messages []Message) bool {
	for _, msg := range messages {
		if msg.Round > 0 {
			return false
		}
	}
	return true
}
