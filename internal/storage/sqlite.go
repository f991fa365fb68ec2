package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	_ "modernc.org/sqlite"
)

const conflictRetries = 3

// SQLiteStore implements Repository on a local SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite opens (and migrates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS debate_sessions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		agents_json TEXT NOT NULL,
		status TEXT NOT NULL,
		round INTEGER NOT NULL DEFAULT 0,
		max_rounds INTEGER NOT NULL DEFAULT 0,
		winner TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debate_sessions_created ON debate_sessions(created_at);

	CREATE TABLE IF NOT EXISTS debate_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES debate_sessions(id) ON DELETE CASCADE,
		agent TEXT NOT NULL,
		content TEXT NOT NULL,
		round INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debate_messages_session ON debate_messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session debate.Session) error {
	agentsJSON, err := json.Marshal(session.Agents)
	if err != nil {
		return fmt.Errorf("encode agents: %w", err)
	}

	query := `
	INSERT INTO debate_sessions (id, topic, agents_json, status, round, max_rounds, winner, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.write(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.Topic, string(agentsJSON), string(session.Status),
			session.Round, session.MaxRounds, nullString(session.Winner),
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession loads a session row.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (debate.Session, error) {
	query := `
		SELECT id, topic, agents_json, status, round, max_rounds, winner, created_at, updated_at
		FROM debate_sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return debate.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return debate.Session{}, err
	}
	return session, nil
}

// UpdateSession persists progress fields of a session.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session debate.Session) error {
	query := `
	UPDATE debate_sessions
	SET status = ?, round = ?, winner = ?, updated_at = ?
	WHERE id = ?`

	return s.write(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query,
			string(session.Status), session.Round, nullString(session.Winner),
			session.UpdatedAt.UnixMilli(), session.ID,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if rows == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// AppendMessages inserts messages in one transaction.
func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, messages ...debate.Message) error {
	if len(messages) == 0 {
		return nil
	}

	return s.write(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM debate_sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return ErrSessionNotFound
		}

		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO debate_messages (session_id, agent, content, round, created_at)
		VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, msg := range messages {
			if _, err := stmt.ExecContext(ctx, sessionID, msg.Agent, msg.Content, msg.Round, msg.Timestamp); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
		return tx.Commit()
	})
}

// LoadTranscript returns messages in insertion order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]debate.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, content, round, created_at
		FROM debate_messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	messages := make([]debate.Message, 0, 16)
	for rows.Next() {
		var msg debate.Message
		if err := rows.Scan(&msg.Agent, &msg.Content, &msg.Round, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return messages, nil
}

// ListSessions returns sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]debate.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, agents_json, status, round, max_rounds, winner, created_at, updated_at
		FROM debate_sessions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]debate.Session, 0, 8)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// write runs fn under the writer lock, retrying on SQLite conflicts.
func (s *SQLiteStore) write(ctx context.Context, fn func(ctx context.Context) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = fn(ctx)
		if !IsConflictError(err) {
			return err
		}
		log.Printf("[storage] sqlite conflict, retrying (attempt %d): %v", attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (debate.Session, error) {
	var (
		session              debate.Session
		agentsJSON, status   string
		winner               sql.NullString
		createdAt, updatedAt int64
	)

	err := row.Scan(&session.ID, &session.Topic, &agentsJSON, &status,
		&session.Round, &session.MaxRounds, &winner, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return debate.Session{}, err
		}
		return debate.Session{}, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(agentsJSON), &session.Agents); err != nil {
		return debate.Session{}, fmt.Errorf("decode agents: %w", err)
	}
	session.Status = debate.Status(status)
	session.Winner = winner.String
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return session, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
