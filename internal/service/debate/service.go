// Package debate runs debate rounds: debaters speak in roster order, then the judge.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/storage"
)

var (
	ErrTopicRequired      = errors.New("debate topic is required")
	ErrRoundInProgress    = errors.New("a round is already running for this session")
	ErrDebateFinished     = errors.New("debate already finished")
	ErrSpeakerUnavailable = errors.New("no language model configured")
)

// Speaker produces one agent's contribution to a round.
type Speaker interface {
	Speak(ctx context.Context, turn debate.Turn, onDelta func(string)) (string, error)
}

// RoundHooks receive progress while a round runs. Every field is optional.
type RoundHooks struct {
	OnRoundStart func(round int)
	OnDelta      func(agent string, round int, text string)
	OnMessage    func(msg debate.Message)
}

// RoundResult is what a finished round produced.
type RoundResult struct {
	Session  debate.Session   `json:"session"`
	Messages []debate.Message `json:"messages"`
}

// Config bounds debate length and time per round.
type Config struct {
	MaxRounds    int
	RoundTimeout time.Duration
}

// Service coordinates sessions, transcripts and speakers.
type Service struct {
	repo    storage.Repository
	speaker Speaker
	cfg     Config

	mu      sync.Mutex
	running map[string]struct{}
}

// NewService wires the orchestrator. speaker may be nil, in which case sessions can
// be created and read but no round can run.
func NewService(repo storage.Repository, speaker Speaker, cfg Config) *Service {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	return &Service{
		repo:    repo,
		speaker: speaker,
		cfg:     cfg,
		running: make(map[string]struct{}),
	}
}

// CanSpeak reports whether rounds can run.
func (s *Service) CanSpeak() bool {
	return s.speaker != nil
}

// CreateSession validates the roster and stores the session with its opening message.
func (s *Service) CreateSession(ctx context.Context, topic string, agents []debate.Agent) (debate.Session, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return debate.Session{}, ErrTopicRequired
	}
	if len(agents) == 0 {
		agents = debate.Seed()
	}
	agents = debate.NormalizeAgents(agents)
	if err := debate.ValidateAgents(agents); err != nil {
		return debate.Session{}, err
	}

	now := time.Now().UTC()
	session := debate.Session{
		ID:        uuid.NewString(),
		Topic:     topic,
		Agents:    agents,
		Status:    debate.StatusIdle,
		Round:     1,
		MaxRounds: s.cfg.MaxRounds,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return debate.Session{}, fmt.Errorf("create session: %w", err)
	}

	opening := debate.Message{
		Agent:     debate.UserName,
		Content:   "Debate Topic: " + topic,
		Round:     1,
		Timestamp: now.UnixMilli(),
	}
	if err := s.repo.AppendMessages(ctx, session.ID, opening); err != nil {
		return debate.Session{}, fmt.Errorf("store opening message: %w", err)
	}

	log.Printf("[debate] session %s created with %d agents", session.ID, len(agents))
	return session, nil
}

// GetSession returns the stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (debate.Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// Transcript returns every stored message of a session.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]debate.Message, error) {
	return s.repo.LoadTranscript(ctx, sessionID)
}

// ListSessions returns sessions newest first.
func (s *Service) ListSessions(ctx context.Context) ([]debate.Session, error) {
	return s.repo.ListSessions(ctx)
}

// Ping checks the storage backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// RunRound lets each debater speak once and then the judge. It returns the
// messages added in this round and the updated session.
func (s *Service) RunRound(ctx context.Context, sessionID string, hooks RoundHooks) (RoundResult, error) {
	if s.speaker == nil {
		return RoundResult{}, ErrSpeakerUnavailable
	}

	// the session must be read under the guard, or a round that finished in
	// between would be run again on stale state
	if !s.acquire(sessionID) {
		return RoundResult{}, ErrRoundInProgress
	}
	defer s.release(sessionID)

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return RoundResult{}, err
	}
	if session.Finished() {
		return RoundResult{}, ErrDebateFinished
	}

	history, err := s.repo.LoadTranscript(ctx, sessionID)
	if err != nil {
		return RoundResult{}, err
	}

	if s.cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RoundTimeout)
		defer cancel()
	}

	round := session.Round
	if round < 1 {
		round = 1
	}
	session.Status = debate.StatusRunning
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return RoundResult{}, fmt.Errorf("mark session running: %w", err)
	}

	if hooks.OnRoundStart != nil {
		hooks.OnRoundStart(round)
	}

	debaters, judge := debate.SplitRoster(session.Agents)
	speakers := append(debaters, judge)
	produced := make([]debate.Message, 0, len(speakers))
	var judgeVerdict string

	for _, agent := range speakers {
		turn := debate.Turn{
			Agent:     agent,
			Topic:     session.Topic,
			Round:     round,
			MaxRounds: session.MaxRounds,
			History:   history,
		}

		var onDelta func(string)
		if hooks.OnDelta != nil {
			name := agent.Name
			onDelta = func(text string) { hooks.OnDelta(name, round, text) }
		}

		content, speakErr := s.speaker.Speak(ctx, turn, onDelta)
		if speakErr != nil {
			s.markFailed(session)
			return RoundResult{Session: session, Messages: produced}, fmt.Errorf("%s failed to speak in round %d: %w", agent.Name, round, speakErr)
		}

		content = strings.TrimSpace(content)
		if content == "" || debate.IsControlContent(content) {
			continue
		}

		msg := debate.Message{
			Agent:     agent.Name,
			Content:   content,
			Round:     round,
			Timestamp: time.Now().UTC().UnixMilli(),
		}
		if err := s.repo.AppendMessages(ctx, sessionID, msg); err != nil {
			s.markFailed(session)
			return RoundResult{Session: session, Messages: produced}, fmt.Errorf("store message: %w", err)
		}

		history = append(history, msg)
		produced = append(produced, msg)
		if debate.IsJudge(agent.Name) {
			judgeVerdict = content
		}
		if hooks.OnMessage != nil {
			hooks.OnMessage(msg)
		}
	}

	switch {
	case debate.DeclaresWinner(judgeVerdict):
		session.Status = debate.StatusFinished
		session.Winner = ExtractWinner(judgeVerdict, session.DebaterNames())
	case round >= session.MaxRounds:
		session.Status = debate.StatusFinished
	default:
		session.Status = debate.StatusPaused
		session.Round = round + 1
	}
	session.UpdatedAt = time.Now().UTC()

	// a cancelled request must not leave the session marked running
	if err := s.repo.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
		return RoundResult{}, fmt.Errorf("update session: %w", err)
	}

	log.Printf("[debate] session %s round %d done: %d messages, status=%s", sessionID, round, len(produced), session.Status)
	return RoundResult{Session: session, Messages: produced}, nil
}

// ExtractWinner picks the debater named in a verdict, preferring the first name
// after the word "winner".
func ExtractWinner(verdict string, debaters []string) string {
	lower := strings.ToLower(verdict)
	if idx := strings.Index(lower, "winner"); idx >= 0 {
		if name := firstMentioned(lower[idx:], debaters); name != "" {
			return name
		}
	}
	return firstMentioned(lower, debaters)
}

func firstMentioned(text string, names []string) string {
	best, bestIdx := "", -1
	for _, name := range names {
		idx := strings.Index(text, strings.ToLower(name))
		if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			best, bestIdx = name, idx
		}
	}
	return best
}

func (s *Service) markFailed(session debate.Session) {
	session.Status = debate.StatusError
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateSession(context.Background(), session); err != nil {
		log.Printf("[debate] failed to mark session %s as error: %v", session.ID, err)
	}
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[sessionID]; busy {
		return false
	}
	s.running[sessionID] = struct{}{}
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	delete(s.running, sessionID)
	s.mu.Unlock()
}
