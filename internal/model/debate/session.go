package debate

import "time"

// Status mirrors the debate lifecycle shown to clients.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

// Session captures one debate: its topic, roster and progress.
type Session struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Agents    []Agent   `json:"agents"`
	Status    Status    `json:"status"`
	Round     int       `json:"round"`
	MaxRounds int       `json:"maxRounds"`
	Winner    string    `json:"winner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DebaterNames returns the debater identifiers in roster order.
func (s Session) DebaterNames() []string {
	names := make([]string, 0, len(s.Agents))
	for _, agent := range s.Agents {
		if IsDebater(agent.Name) {
			names = append(names, agent.Name)
		}
	}
	return names
}

// Finished reports whether no more rounds can run.
func (s Session) Finished() bool {
	return s.Status == StatusFinished
}
