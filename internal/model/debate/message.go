package debate

// Message is one transcript entry. Insertion order is chronological order.
type Message struct {
	Agent     string `json:"agent"`
	Content   string `json:"content"`
	Round     int    `json:"round"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Turn 描述一次发言所需的上下文，交给大模型生成回复。
type Turn struct {
	Agent     Agent
	Topic     string
	Round     int
	MaxRounds int
	History   []Message
}
