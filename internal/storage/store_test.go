package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

func newSession(id string, created time.Time) debate.Session {
	return debate.Session{
		ID:        id,
		Topic:     "AI will benefit society more than it will harm it.",
		Agents:    debate.Seed(),
		Status:    debate.StatusIdle,
		MaxRounds: 3,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqliteStore, err := NewSQLite(filepath.Join(t.TempDir(), "data", "debates.db"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Repository{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestRepositorySessionLifecycle(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Now().UTC().Truncate(time.Millisecond)

			if err := repo.CreateSession(ctx, newSession("s1", created)); err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			got, err := repo.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("GetSession err: %v", err)
			}
			if got.Topic == "" || len(got.Agents) != 3 || got.MaxRounds != 3 {
				t.Fatalf("unexpected session: %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Fatalf("created time mismatch: %v vs %v", got.CreatedAt, created)
			}

			got.Status = debate.StatusFinished
			got.Round = 2
			got.Winner = "Debater_B"
			got.UpdatedAt = created.Add(time.Second)
			if err := repo.UpdateSession(ctx, got); err != nil {
				t.Fatalf("UpdateSession err: %v", err)
			}

			updated, err := repo.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("GetSession err: %v", err)
			}
			if updated.Status != debate.StatusFinished || updated.Round != 2 || updated.Winner != "Debater_B" {
				t.Fatalf("update not applied: %+v", updated)
			}
		})
	}
}

func TestRepositoryTranscriptOrder(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.CreateSession(ctx, newSession("s1", time.Now().UTC())); err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			first := []debate.Message{
				{Agent: "user", Content: "Debate Topic: x", Round: 1},
				{Agent: "Debater_A", Content: "for", Round: 1},
			}
			second := debate.Message{Agent: "Judge", Content: "ok", Round: 1, Timestamp: 42}

			if err := repo.AppendMessages(ctx, "s1", first...); err != nil {
				t.Fatalf("AppendMessages err: %v", err)
			}
			if err := repo.AppendMessages(ctx, "s1", second); err != nil {
				t.Fatalf("AppendMessages err: %v", err)
			}

			transcript, err := repo.LoadTranscript(ctx, "s1")
			if err != nil {
				t.Fatalf("LoadTranscript err: %v", err)
			}
			if len(transcript) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(transcript))
			}
			if transcript[0].Agent != "user" || transcript[2].Agent != "Judge" || transcript[2].Timestamp != 42 {
				t.Fatalf("unexpected transcript: %+v", transcript)
			}

			transcript[0].Content = "mutated"
			again, _ := repo.LoadTranscript(ctx, "s1")
			if again[0].Content == "mutated" {
				t.Fatal("transcript must be returned as a copy")
			}
		})
	}
}

func TestRepositoryMissingSession(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := repo.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("GetSession: expected ErrSessionNotFound, got %v", err)
			}
			if _, err := repo.LoadTranscript(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("LoadTranscript: expected ErrSessionNotFound, got %v", err)
			}
			if err := repo.AppendMessages(ctx, "missing", debate.Message{Agent: "Debater_A"}); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("AppendMessages: expected ErrSessionNotFound, got %v", err)
			}
			if err := repo.UpdateSession(ctx, debate.Session{ID: "missing"}); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("UpdateSession: expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestRepositoryListSessionsNewestFirst(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			if err := repo.CreateSession(ctx, newSession("old", base)); err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}
			if err := repo.CreateSession(ctx, newSession("new", base.Add(time.Minute))); err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			list, err := repo.ListSessions(ctx)
			if err != nil {
				t.Fatalf("ListSessions err: %v", err)
			}
			if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
				t.Fatalf("unexpected order: %+v", list)
			}
			if err := repo.Ping(ctx); err != nil {
				t.Fatalf("Ping err: %v", err)
			}
		})
	}
}

func TestIsConflictError(t *testing.T) {
	if !IsConflictError(errors.New("exec: SQLITE_BUSY")) {
		t.Fatal("expected busy conflict")
	}
	if !IsConflictError(errors.New("database is locked (5)")) {
		t.Fatal("expected locked conflict")
	}
	if IsConflictError(nil) || IsConflictError(errors.New("no such table")) {
		t.Fatal("unexpected conflict")
	}
}
