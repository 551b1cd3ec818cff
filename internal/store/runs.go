package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/idpforge/internal/domain"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// runTimeFormat keeps sub-second precision so runs sort by start time.
const runTimeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(runTimeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(runTimeFormat, s)
	return t
}

// CreateRun inserts a run row. Stages and artifacts are recorded separately.
func (db *DB) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.Status == "" {
		run.Status = domain.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, task, output_dir, provider, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Task, run.OutputDir, run.Provider,
		string(run.Status), run.Error, formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (db *DB) FinishRun(ctx context.Context, run *domain.Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := db.sql.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Error, formatTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// RecordStage appends a stage result to a run. Artifacts on the stage are not
// stored here; use RecordArtifact as they are written.
func (db *DB) RecordStage(ctx context.Context, runID string, position int, st domain.StageResult) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO stages (run_id, position, agent, status, output, error, tool_calls, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, position, st.Agent, string(st.Status), st.Output, st.Error, st.ToolCalls,
		formatTime(st.StartedAt), st.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording stage %s of run %s: %w", st.Agent, runID, err)
	}
	return nil
}

// ListRuns returns the most recent runs without stage details.
// A limit of 0 defaults to 20.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, session_id, task, output_dir, provider, status, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun loads a run with its stages and their artifacts.
func (db *DB) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := db.sql.QueryRowContext(ctx,
		`SELECT id, session_id, task, output_dir, provider, status, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	stages, err := db.loadStages(ctx, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := db.ListArtifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		for i := range stages {
			if stages[i].Agent == a.Agent {
				stages[i].Artifacts = append(stages[i].Artifacts, a)
				break
			}
		}
	}
	run.Stages = stages
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var status, startedAt, finishedAt string
	if err := row.Scan(
		&run.ID, &run.SessionID, &run.Task, &run.OutputDir, &run.Provider,
		&status, &run.Error, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return &run, nil
}

func (db *DB) loadStages(ctx context.Context, runID string) ([]domain.StageResult, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT agent, status, output, error, tool_calls, started_at, duration_ms
		 FROM stages WHERE run_id = ? ORDER BY position, id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading stages: %w", err)
	}
	defer rows.Close()

	var stages []domain.StageResult
	for rows.Next() {
		var st domain.StageResult
		var status, startedAt string
		var durationMs int64
		if err := rows.Scan(&st.Agent, &status, &st.Output, &st.Error, &st.ToolCalls, &startedAt, &durationMs); err != nil {
			return nil, err
		}
		st.Status = domain.StageStatus(status)
		st.StartedAt = parseTime(startedAt)
		st.Duration = time.Duration(durationMs) * time.Millisecond
		stages = append(stages, st)
	}
	return stages, rows.Err()
}
