// Package sqlite persists the office's activity history: per-agent
// observations, spawn events, and session transcripts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent_office/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	status TEXT NOT NULL,
	task TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	observed_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_agent ON observations(agent_id, created_at);

CREATE TABLE IF NOT EXISTS spawn_events (
	id TEXT PRIMARY KEY,
	parent_agent TEXT NOT NULL,
	child_agent TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spawn_events_parent ON spawn_events(parent_agent, created_at);

CREATE TABLE IF NOT EXISTS transcript (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	author TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_agent ON transcript(agent_id, created_at);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) RecordObservation(ctx context.Context, item domain.ActivityItem, now time.Time) error {
	if item.Timestamp.IsZero() {
		item.Timestamp = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO observations(agent_id, status, task, message_count, observed_at, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		item.AgentID, string(item.Status), item.Task, item.MessageCount,
		item.Timestamp.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

// ListObservations returns up to limit observations for one agent, newest
// first.
func (s *Store) ListObservations(ctx context.Context, agentID string, limit int) ([]domain.ActivityItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT agent_id, status, task, message_count, observed_at
		FROM observations WHERE agent_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ActivityItem, 0)
	for rows.Next() {
		var item domain.ActivityItem
		var status string
		var observed int64
		if err := rows.Scan(&item.AgentID, &status, &item.Task, &item.MessageCount, &observed); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		item.Status = domain.AgentStatus(status)
		item.Timestamp = time.Unix(observed, 0).UTC()
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}

// PruneObservations keeps the newest keep rows per agent and deletes the
// rest.
func (s *Store) PruneObservations(ctx context.Context, agentID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM observations WHERE agent_id = ? AND id NOT IN (
			SELECT id FROM observations WHERE agent_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`,
		agentID, agentID, keep,
	)
	if err != nil {
		return fmt.Errorf("prune observations: %w", err)
	}
	return nil
}

func (s *Store) RecordSpawn(ctx context.Context, rec domain.SpawnAnimationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO spawn_events(id, parent_agent, child_agent, created_at) VALUES(?, ?, ?, ?)`,
		rec.ID, rec.ParentID, rec.ChildID, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record spawn: %w", err)
	}
	return nil
}

func (s *Store) ListSpawns(ctx context.Context, limit int) ([]domain.SpawnAnimationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, parent_agent, child_agent, created_at
		FROM spawn_events ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list spawns: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SpawnAnimationRecord, 0)
	for rows.Next() {
		var rec domain.SpawnAnimationRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.ChildID, &created); err != nil {
			return nil, fmt.Errorf("scan spawn: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spawns: %w", err)
	}
	return result, nil
}

func (s *Store) AppendTranscript(ctx context.Context, msg domain.TranscriptMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcript(id, agent_id, author, body, created_at) VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.AgentID, msg.Author, msg.Body, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// ListTranscript returns the newest limit messages for one agent in
// chronological order.
func (s *Store) ListTranscript(ctx context.Context, agentID string, limit int) ([]domain.TranscriptMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, agent_id, author, body, created_at
		FROM transcript WHERE agent_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	defer rows.Close()

	var result []domain.TranscriptMessage
	for rows.Next() {
		var msg domain.TranscriptMessage
		var created int64
		if err := rows.Scan(&msg.ID, &msg.AgentID, &msg.Author, &msg.Body, &created); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		msg.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}
