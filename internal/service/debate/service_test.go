package debate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debate "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/storage"
)

type scriptedSpeaker struct {
	mu      sync.Mutex
	replies map[string][]string
	fail    string
	turns   []model.Turn
	block   chan struct{}
}

func (s *scriptedSpeaker) Speak(_ context.Context, turn model.Turn, onDelta func(string)) (string, error) {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	if turn.Agent.Name == s.fail {
		return "", errors.New("model unavailable")
	}

	queue := s.replies[turn.Agent.Name]
	reply := turn.Agent.Name + " speaks"
	if len(queue) > 0 {
		reply, s.replies[turn.Agent.Name] = queue[0], queue[1:]
	}
	if onDelta != nil {
		onDelta(reply)
	}
	return reply, nil
}

// pausingRepo blocks the first GetSession after arm until release is closed.
type pausingRepo struct {
	storage.Repository

	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (r *pausingRepo) arm() {
	r.mu.Lock()
	r.armed = true
	r.mu.Unlock()
}

func (r *pausingRepo) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	session, err := r.Repository.GetSession(ctx, sessionID)

	r.mu.Lock()
	pause := r.armed
	r.armed = false
	r.mu.Unlock()

	if pause {
		close(r.entered)
		<-r.release
	}
	return session, err
}

func newService(speaker debate.Speaker, maxRounds int) *debate.Service {
	return debate.NewService(storage.NewMemoryStore(), speaker, debate.Config{MaxRounds: maxRounds, RoundTimeout: time.Minute})
}

func TestCreateSessionStoresOpeningMessage(t *testing.T) {
	svc := newService(nil, 3)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "  Cats vs dogs  ", nil)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.Topic != "Cats vs dogs" || session.Round != 1 || session.Status != model.StatusIdle {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(session.Agents) != 3 {
		t.Fatalf("expected default roster, got %+v", session.Agents)
	}

	transcript, err := svc.Transcript(ctx, session.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 1 || transcript[0].Agent != model.UserName || transcript[0].Content != "Debate Topic: Cats vs dogs" {
		t.Fatalf("unexpected opening transcript %+v", transcript)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc := newService(nil, 3)

	if _, err := svc.CreateSession(context.Background(), " ", nil); !errors.Is(err, debate.ErrTopicRequired) {
		t.Fatalf("expected ErrTopicRequired, got %v", err)
	}

	agents := []model.Agent{{Name: "Debater_A"}}
	if _, err := svc.CreateSession(context.Background(), "topic", agents); !errors.Is(err, model.ErrJudgeRequired) {
		t.Fatalf("expected ErrJudgeRequired, got %v", err)
	}
}

func TestRunRoundOrderAndHooks(t *testing.T) {
	speaker := &scriptedSpeaker{}
	svc := newService(speaker, 3)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "topic", nil)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	var started []int
	var deltas, delivered []string
	hooks := debate.RoundHooks{
		OnRoundStart: func(round int) { started = append(started, round) },
		OnDelta:      func(agent string, _ int, _ string) { deltas = append(deltas, agent) },
		OnMessage:    func(msg model.Message) { delivered = append(delivered, msg.Agent) },
	}

	result, err := svc.RunRound(ctx, session.ID, hooks)
	if err != nil {
		t.Fatalf("RunRound err: %v", err)
	}

	want := []string{"Debater_A", "Debater_B", model.JudgeName}
	if len(result.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), result.Messages)
	}
	for i, msg := range result.Messages {
		if msg.Agent != want[i] || msg.Round != 1 {
			t.Fatalf("message %d = %+v, want agent %s round 1", i, msg, want[i])
		}
	}
	if len(started) != 1 || started[0] != 1 {
		t.Fatalf("unexpected round starts %v", started)
	}
	if len(deltas) != 3 || len(delivered) != 3 {
		t.Fatalf("hooks not called per agent: deltas=%v delivered=%v", deltas, delivered)
	}
	if result.Session.Status != model.StatusPaused || result.Session.Round != 2 {
		t.Fatalf("unexpected session after round: %+v", result.Session)
	}

	// debater B sees debater A's contribution from the same round
	if got := len(speaker.turns[1].History); got != 2 {
		t.Fatalf("expected Debater_B to see 2 history messages, got %d", got)
	}

	transcript, _ := svc.Transcript(ctx, session.ID)
	if len(transcript) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(transcript))
	}
}

func TestRunRoundFinishesOnWinner(t *testing.T) {
	speaker := &scriptedSpeaker{replies: map[string][]string{
		model.JudgeName: {"The winner is Debater_B, who answered Debater_A convincingly."},
	}}
	svc := newService(speaker, 5)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "topic", nil)
	result, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
	if err != nil {
		t.Fatalf("RunRound err: %v", err)
	}
	if result.Session.Status != model.StatusFinished || result.Session.Winner != "Debater_B" {
		t.Fatalf("unexpected session %+v", result.Session)
	}

	if _, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{}); !errors.Is(err, debate.ErrDebateFinished) {
		t.Fatalf("expected ErrDebateFinished, got %v", err)
	}
}

func TestRunRoundFinishesAtMaxRounds(t *testing.T) {
	svc := newService(&scriptedSpeaker{}, 2)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "topic", nil)
	if _, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{}); err != nil {
		t.Fatalf("round 1 err: %v", err)
	}
	result, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
	if err != nil {
		t.Fatalf("round 2 err: %v", err)
	}
	if result.Session.Status != model.StatusFinished || result.Session.Winner != "" {
		t.Fatalf("unexpected session %+v", result.Session)
	}
	if result.Messages[0].Round != 2 {
		t.Fatalf("expected round 2 messages, got %+v", result.Messages[0])
	}
}

func TestRunRoundSkipsControlContent(t *testing.T) {
	speaker := &scriptedSpeaker{replies: map[string][]string{
		"Debater_A": {"TERMINATE"},
		"Debater_B": {"   "},
	}}
	svc := newService(speaker, 3)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "topic", nil)
	result, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
	if err != nil {
		t.Fatalf("RunRound err: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Agent != model.JudgeName {
		t.Fatalf("expected only the judge message, got %+v", result.Messages)
	}
}

func TestRunRoundSpeakerFailureMarksError(t *testing.T) {
	svc := newService(&scriptedSpeaker{fail: "Debater_B"}, 3)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "topic", nil)
	result, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(result.Messages) != 1 || result.Messages[0].Agent != "Debater_A" {
		t.Fatalf("expected partial round to be returned, got %+v", result.Messages)
	}

	stored, _ := svc.GetSession(ctx, session.ID)
	if stored.Status != model.StatusError {
		t.Fatalf("expected error status, got %s", stored.Status)
	}
	transcript, _ := svc.Transcript(ctx, session.ID)
	if len(transcript) != 2 {
		t.Fatalf("expected opening + Debater_A kept, got %d", len(transcript))
	}
}

func TestRunRoundErrors(t *testing.T) {
	ctx := context.Background()

	noSpeaker := newService(nil, 3)
	session, _ := noSpeaker.CreateSession(ctx, "topic", nil)
	if _, err := noSpeaker.RunRound(ctx, session.ID, debate.RoundHooks{}); !errors.Is(err, debate.ErrSpeakerUnavailable) {
		t.Fatalf("expected ErrSpeakerUnavailable, got %v", err)
	}

	svc := newService(&scriptedSpeaker{}, 3)
	if _, err := svc.RunRound(ctx, "missing", debate.RoundHooks{}); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRunRoundRejectsConcurrentRounds(t *testing.T) {
	speaker := &scriptedSpeaker{block: make(chan struct{})}
	svc := newService(speaker, 3)
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, "topic", nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{
			OnRoundStart: func(int) { close(started) },
		})
		done <- err
	}()

	<-started
	if _, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{}); !errors.Is(err, debate.ErrRoundInProgress) {
		t.Fatalf("expected ErrRoundInProgress, got %v", err)
	}

	close(speaker.block)
	if err := <-done; err != nil {
		t.Fatalf("first round err: %v", err)
	}
}

func TestRunRoundReadsSessionUnderGuard(t *testing.T) {
	repo := &pausingRepo{
		Repository: storage.NewMemoryStore(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	speaker := &scriptedSpeaker{replies: map[string][]string{
		model.JudgeName: {"The winner is Debater_A"},
	}}
	svc := debate.NewService(repo, speaker, debate.Config{MaxRounds: 3, RoundTimeout: time.Minute})
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "topic", nil)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	repo.arm()
	done := make(chan error, 1)
	go func() {
		_, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
		done <- err
	}()

	// the first caller holds the session while reading it
	<-repo.entered
	if _, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{}); !errors.Is(err, debate.ErrRoundInProgress) {
		t.Fatalf("expected ErrRoundInProgress, got %v", err)
	}

	close(repo.release)
	if err := <-done; err != nil {
		t.Fatalf("first round err: %v", err)
	}

	if _, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{}); !errors.Is(err, debate.ErrDebateFinished) {
		t.Fatalf("expected ErrDebateFinished, got %v", err)
	}

	stored, _ := svc.GetSession(ctx, session.ID)
	if stored.Status != model.StatusFinished || stored.Winner != "Debater_A" {
		t.Fatalf("finished session was overwritten: %+v", stored)
	}
	transcript, _ := svc.Transcript(ctx, session.ID)
	if len(transcript) != 4 {
		t.Fatalf("expected opening + one round, got %d messages", len(transcript))
	}
}

func TestCreateSessionTrimsAgentNames(t *testing.T) {
	speaker := &scriptedSpeaker{}
	svc := newService(speaker, 3)
	ctx := context.Background()

	agents := []model.Agent{{Name: "Debater_A "}, {Name: "Debater_B"}, {Name: " Judge"}}
	session, err := svc.CreateSession(ctx, "topic", agents)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.Agents[0].Name != "Debater_A" || session.Agents[2].Name != model.JudgeName {
		t.Fatalf("agent names not trimmed: %+v", session.Agents)
	}

	result, err := svc.RunRound(ctx, session.ID, debate.RoundHooks{})
	if err != nil {
		t.Fatalf("RunRound err: %v", err)
	}
	if len(result.Messages) != 3 || result.Messages[2].Agent != model.JudgeName {
		t.Fatalf("expected the judge to close the round, got %+v", result.Messages)
	}
}

func TestExtractWinner(t *testing.T) {
	debaters := []string{"Debater_A", "Debater_B"}
	cases := map[string]string{
		"Debater_A argued well, but the winner is Debater_B.": "Debater_B",
		"Winner: debater_a":                          "Debater_A",
		"No clear winner today.":                     "",
		"Debater_B wins. Declaring the winner above.": "Debater_B",
	}
	for verdict, want := range cases {
		if got := debate.ExtractWinner(verdict, debaters); got != want {
			t.Errorf("ExtractWinner(%q) = %q, want %q", verdict, got, want)
		}
	}
}
