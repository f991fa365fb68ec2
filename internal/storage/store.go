// Package storage persists debate sessions and their transcripts.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository defines debate persistence.
type Repository interface {
	// CreateSession stores a new session; the ID must be set by the caller.
	CreateSession(ctx context.Context, session debate.Session) error

	// GetSession returns ErrSessionNotFound for unknown IDs.
	GetSession(ctx context.Context, sessionID string) (debate.Session, error)

	// UpdateSession overwrites status, round, winner and updated time.
	UpdateSession(ctx context.Context, session debate.Session) error

	// AppendMessages appends to the session transcript in order.
	AppendMessages(ctx context.Context, sessionID string, messages ...debate.Message) error

	// LoadTranscript returns a copy of the full transcript.
	LoadTranscript(ctx context.Context, sessionID string) ([]debate.Message, error)

	// ListSessions returns sessions, newest first.
	ListSessions(ctx context.Context) ([]debate.Session, error)

	Ping(ctx context.Context) error
	Close() error
}

// IsConflictError reports SQLite busy/locked errors that are worth retrying.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
