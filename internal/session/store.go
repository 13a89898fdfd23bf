package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"recap/internal/config"
	"recap/internal/pipeline"
)

// Store persists pipeline run history backed by SQLite. The filesystem stays
// the source of truth for resume decisions; the store exists so run history
// survives the process and can be inspected afterwards.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordEvent persists one stage status transition. The owning session row is
// created on first sight of an episode id.
func (s *Store) RecordEvent(ctx context.Context, event pipeline.Event) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.ensureSession(ctx, event.EpisodeID, now); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO progress_events (
            episode_id, stage, stage_index, total_stages, label, status, message, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EpisodeID,
		event.Stage,
		event.Index,
		event.TotalStages,
		event.Label,
		string(event.Status),
		nullableString(event.Message),
		now,
	)
	if err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}
	return nil
}

// RecordRun persists the terminal state of a run: the session row plus one
// stage record per requested stage, replacing any earlier rows for the same
// episode.
func (s *Store) RecordRun(ctx context.Context, manifest *pipeline.Manifest) error {
	if manifest == nil {
		return errors.New("manifest is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO sessions (episode_id, root, source, requested_stages, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(episode_id) DO UPDATE SET
             root = excluded.root,
             source = excluded.source,
             requested_stages = excluded.requested_stages,
             status = excluded.status,
             updated_at = excluded.updated_at`,
		manifest.EpisodeID,
		manifest.Root,
		manifest.Source,
		encodeStages(manifest.Requested),
		string(manifest.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_stages WHERE episode_id = ?`, manifest.EpisodeID); err != nil {
		return fmt.Errorf("clear stage records: %w", err)
	}

	for _, record := range manifest.Records {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO session_stages (episode_id, stage, label, status, started_at, finished_at, message)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			manifest.EpisodeID,
			record.Stage,
			record.Label,
			string(record.Status),
			nullableTimestamp(record.StartedAt),
			nullableTimestamp(record.FinishedAt),
			nullableString(record.Message),
		)
		if err != nil {
			return fmt.Errorf("insert stage record %d: %w", record.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *Store) ensureSession(ctx context.Context, episodeID, timestamp string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (episode_id, status, created_at, updated_at)
         VALUES (?, 'running', ?, ?)
         ON CONFLICT(episode_id) DO UPDATE SET updated_at = excluded.updated_at`,
		episodeID,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("ensure session row: %w", err)
	}
	return nil
}

// ByEpisode fetches a session by episode identifier, or nil when unknown.
func (s *Store) ByEpisode(ctx context.Context, episodeID string) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT episode_id, root, source, requested_stages, status, created_at, updated_at
         FROM sessions WHERE episode_id = ?`,
		episodeID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Recent returns the most recently updated sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT episode_id, root, source, requested_stages, status, created_at, updated_at
         FROM sessions ORDER BY updated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// StageRecords returns the persisted stage outcomes for an episode in stage order.
func (s *Store) StageRecords(ctx context.Context, episodeID string) ([]*StageExecutionRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT episode_id, stage, label, status, started_at, finished_at, message
         FROM session_stages WHERE episode_id = ? ORDER BY stage`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage records: %w", err)
	}
	defer rows.Close()

	var records []*StageExecutionRecord
	for rows.Next() {
		var (
			record      StageExecutionRecord
			startedRaw  sql.NullString
			finishedRaw sql.NullString
			message     sql.NullString
		)
		if err := rows.Scan(
			&record.EpisodeID,
			&record.Stage,
			&record.Label,
			&record.Status,
			&startedRaw,
			&finishedRaw,
			&message,
		); err != nil {
			return nil, err
		}
		record.Message = message.String
		if startedRaw.Valid {
			if ts, err := parseTimeString(startedRaw.String); err == nil {
				record.StartedAt = &ts
			}
		}
		if finishedRaw.Valid {
			if ts, err := parseTimeString(finishedRaw.String); err == nil {
				record.FinishedAt = &ts
			}
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Events returns the persisted progress events for an episode in insertion order.
func (s *Store) Events(ctx context.Context, episodeID string) ([]*ProgressEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, episode_id, stage, stage_index, total_stages, label, status, message, created_at
         FROM progress_events WHERE episode_id = ? ORDER BY id`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress events: %w", err)
	}
	defer rows.Close()

	var events []*ProgressEvent
	for rows.Next() {
		var (
			event      ProgressEvent
			message    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(
			&event.ID,
			&event.EpisodeID,
			&event.Stage,
			&event.Index,
			&event.TotalStages,
			&event.Label,
			&event.Status,
			&message,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		event.Message = message.String
		if ts, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = ts
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

// Prune removes sessions whose last update precedes the cutoff, along with
// their stage records and events.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	boundary := cutoff.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM progress_events WHERE episode_id IN (SELECT episode_id FROM sessions WHERE updated_at < ?)`,
		boundary,
	); err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, boundary)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return affected, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		sess       Session
		root       sql.NullString
		source     sql.NullString
		stagesRaw  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&sess.EpisodeID,
		&root,
		&source,
		&stagesRaw,
		&sess.Status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	sess.Root = root.String
	sess.Source = source.String
	sess.RequestedStages = decodeStages(stagesRaw.String)
	if created, err := parseTimeString(createdRaw); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sess.UpdatedAt = updated
	}
	return &sess, nil
}

func encodeStages(stages []int) string {
	if len(stages) == 0 {
		return ""
	}
	sorted := append([]int(nil), stages...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, stage := range sorted {
		parts[i] = strconv.Itoa(stage)
	}
	return strings.Join(parts, ",")
}

func decodeStages(value string) []int {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	stages := make([]int, 0, len(parts))
	for _, part := range parts {
		stage, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		stages = append(stages, stage)
	}
	return stages
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTimestamp(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
