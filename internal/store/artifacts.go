package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soyeahso/idpforge/internal/domain"
)

// maxIndexedContent caps how much of an artifact is kept for search.
const maxIndexedContent = 64 << 10

// ArtifactHit is a search result over generated artifacts.
type ArtifactHit struct {
	domain.Artifact
	RunID   string  `json:"runId"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// RecordArtifact stores an artifact row for a run and indexes its content
// for full-text search.
func (db *DB) RecordArtifact(ctx context.Context, runID string, a domain.Artifact, content []byte) error {
	if len(content) > maxIndexedContent {
		content = content[:maxIndexedContent]
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, path, kind, agent, size, content, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, a.Path, string(a.Kind), a.Agent, a.Size, string(content), formatTime(a.WrittenAt),
	)
	if err != nil {
		return fmt.Errorf("recording artifact %s: %w", a.Path, err)
	}
	return nil
}

// ListArtifacts returns the artifacts of a run in write order.
func (db *DB) ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT path, kind, agent, size, written_at FROM artifacts WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var kind, writtenAt string
		if err := rows.Scan(&a.Path, &kind, &a.Agent, &a.Size, &writtenAt); err != nil {
			return nil, err
		}
		a.Kind = domain.ArtifactKind(kind)
		a.WrittenAt = parseTime(writtenAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SearchArtifacts finds artifacts whose path or content matches the FTS5
// query, ranked by relevance. Limit of 0 defaults to 20.
func (db *DB) SearchArtifacts(ctx context.Context, query string, limit int) ([]ArtifactHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.sql.QueryContext(ctx,
		`SELECT a.run_id, a.path, a.kind, a.agent, a.size, a.written_at,
		        snippet(artifacts_fts, 1, '[', ']', '...', 12), rank
		 FROM artifacts_fts
		 JOIN artifacts a ON a.id = artifacts_fts.rowid
		 WHERE artifacts_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching artifacts: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// DeleteRun removes a run with its stages and artifacts.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.sql.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanHits(rows *sql.Rows) ([]ArtifactHit, error) {
	var hits []ArtifactHit
	for rows.Next() {
		var h ArtifactHit
		var kind, writtenAt string
		if err := rows.Scan(
			&h.RunID, &h.Path, &kind, &h.Agent, &h.Size, &writtenAt,
			&h.Snippet, &h.Rank,
		); err != nil {
			continue
		}
		h.Kind = domain.ArtifactKind(kind)
		h.WrittenAt = parseTime(writtenAt)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
