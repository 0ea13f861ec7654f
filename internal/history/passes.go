package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// Status is the lifecycle state of a pass.
type Status string

const (
	StatusRunning      Status = "running"
	StatusBroadcasting Status = "broadcasting"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
)

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Pass is one recorded pipeline pass.
type Pass struct {
	ID           string     `json:"id"`
	Date         string     `json:"date"`
	SearchTerm   string     `json:"search_term,omitempty"`
	OutputDir    string     `json:"output_dir,omitempty"`
	Status       Status     `json:"status"`
	Stage        string     `json:"stage,omitempty"`
	TrackCount   int        `json:"track_count"`
	SkippedCount int        `json:"skipped_count"`
	ManifestPath string     `json:"manifest_path,omitempty"`
	AssetPath    string     `json:"asset_path,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Duration returns how long the pass ran, or has been running.
func (p Pass) Duration(now time.Time) time.Duration {
	end := now
	if p.FinishedAt != nil {
		end = *p.FinishedAt
	}
	if end.Before(p.StartedAt) {
		return 0
	}
	return end.Sub(p.StartedAt)
}

// ErrPassNotFound is returned when an update targets an unknown pass.
var ErrPassNotFound = errors.New("pass not found")

const passColumns = "id, pass_date, search_term, output_dir, status, stage, track_count, skipped_count, manifest_path, asset_path, error_kind, error_message, started_at, finished_at, updated_at"

// Begin inserts a running pass and returns it.
func (s *Store) Begin(ctx context.Context, date, searchTerm, outputDir string) (*Pass, error) {
	now := s.now()
	pass := &Pass{
		ID:         uuid.NewString(),
		Date:       date,
		SearchTerm: searchTerm,
		OutputDir:  outputDir,
		Status:     StatusRunning,
		StartedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO passes (id, pass_date, search_term, output_dir, status, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pass.ID, pass.Date, nullableString(searchTerm), nullableString(outputDir), string(pass.Status),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pass: %w", err)
	}
	return pass, nil
}

// RecordSkipped inserts a pass that never ran because another was in flight.
func (s *Store) RecordSkipped(ctx context.Context, date, reason string) (*Pass, error) {
	now := s.now()
	finished := now.UTC()
	pass := &Pass{
		ID:           uuid.NewString(),
		Date:         date,
		Status:       StatusSkipped,
		ErrorMessage: reason,
		StartedAt:    now.UTC(),
		FinishedAt:   &finished,
		UpdatedAt:    now.UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO passes (id, pass_date, status, error_message, started_at, finished_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pass.ID, pass.Date, string(pass.Status), nullableString(reason),
		formatTime(now), formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert skipped pass: %w", err)
	}
	return pass, nil
}

// UpdateStage records the stage a running pass has entered.
func (s *Store) UpdateStage(ctx context.Context, id, stage string) error {
	return s.update(ctx, id, "stage = ?", stage)
}

// UpdateCounts records how many tracks were acquired and skipped.
func (s *Store) UpdateCounts(ctx context.Context, id string, tracks, skipped int) error {
	return s.update(ctx, id, "track_count = ?, skipped_count = ?", tracks, skipped)
}

// SetArtifacts records the manifest and combined asset paths.
func (s *Store) SetArtifacts(ctx context.Context, id, manifest, asset string) error {
	return s.update(ctx, id, "manifest_path = COALESCE(?, manifest_path), asset_path = COALESCE(?, asset_path)",
		nullableString(manifest), nullableString(asset))
}

// MarkBroadcasting records that the pass's asset is being streamed.
func (s *Store) MarkBroadcasting(ctx context.Context, id string) error {
	return s.update(ctx, id, "status = ?, stage = ?", string(StatusBroadcasting), "broadcast")
}

// Complete marks a pass as finished successfully.
func (s *Store) Complete(ctx context.Context, id string) error {
	return s.update(ctx, id, "status = ?, finished_at = ?", string(StatusCompleted), formatTime(s.now()))
}

// Fail marks a pass as failed at stage, storing the error classification.
func (s *Store) Fail(ctx context.Context, id, stage string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.update(ctx, id,
		"status = ?, stage = COALESCE(?, stage), error_kind = ?, error_message = ?, finished_at = ?",
		string(StatusFailed), nullableString(stage), nullableString(services.FailureKind(cause)),
		nullableString(message), formatTime(s.now()))
}

func (s *Store) update(ctx context.Context, id, assignments string, args ...any) error {
	args = append(args, formatTime(s.now()), id)
	res, err := s.execWithRetry(ctx,
		"UPDATE passes SET "+assignments+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update pass %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrPassNotFound, id)
	}
	return nil
}

// Get returns the pass with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Pass, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+passColumns+" FROM passes WHERE id = ?", id)
	pass, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pass: %w", err)
	}
	return pass, nil
}

// List returns up to limit passes, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Pass, error) {
	query := "SELECT " + passColumns + " FROM passes ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		passes = append(passes, *pass)
	}
	return passes, rows.Err()
}

// Latest returns the most recently started pass, or nil when history is empty.
func (s *Store) Latest(ctx context.Context) (*Pass, error) {
	passes, err := s.List(ctx, 1)
	if err != nil || len(passes) == 0 {
		return nil, err
	}
	return &passes[0], nil
}

// Stats returns a count of passes grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM passes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("pass stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ResetInterrupted fails passes left running or broadcasting by a previous
// process that did not shut down cleanly.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE passes SET status = ?, error_kind = ?, error_message = ?, finished_at = ?, updated_at = ?
		 WHERE status IN (?, ?)`,
		string(StatusFailed), "interrupted", "daemon stopped before the pass finished", now, now,
		string(StatusRunning), string(StatusBroadcasting),
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted passes: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes finished passes that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM passes WHERE started_at < ? AND status IN (?, ?, ?)`,
		formatTime(cutoff), string(StatusCompleted), string(StatusFailed), string(StatusSkipped),
	)
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}
	return res.RowsAffected()
}

func scanPass(scanner interface{ Scan(dest ...any) error }) (*Pass, error) {
	var (
		id           string
		date         string
		searchTerm   sql.NullString
		outputDir    sql.NullString
		status       string
		stage        sql.NullString
		trackCount   int
		skippedCount int
		manifest     sql.NullString
		asset        sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		startedRaw   string
		finishedRaw  sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id, &date, &searchTerm, &outputDir, &status, &stage, &trackCount, &skippedCount,
		&manifest, &asset, &errorKind, &errorMessage, &startedRaw, &finishedRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	pass := &Pass{
		ID:           id,
		Date:         date,
		SearchTerm:   searchTerm.String,
		OutputDir:    outputDir.String,
		Status:       Status(strings.TrimSpace(status)),
		Stage:        stage.String,
		TrackCount:   trackCount,
		SkippedCount: skippedCount,
		ManifestPath: manifest.String,
		AssetPath:    asset.String,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		pass.StartedAt = started
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		pass.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			pass.FinishedAt = &finished
		}
	}
	return pass, nil
}
