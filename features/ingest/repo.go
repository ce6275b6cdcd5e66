package ingest

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// ContentHash returns the stored hash for a source url, or "" when the url
// has never been ingested.
func (r *PostgresRepo) ContentHash(ctx context.Context, sourceURL string) (string, error) {
	var hash string
	query := `SELECT content_hash FROM documents WHERE source_url = $1 AND status = 'ingested'`
	err := r.db.QueryRowContext(ctx, query, sourceURL).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (r *PostgresRepo) RecordIngested(ctx context.Context, sourceURL, contentHash string, chunkCount int) error {
	query := `INSERT INTO documents (source_url, content_hash, chunk_count, status, error, last_ingested_at)
	          VALUES ($1, $2, $3, 'ingested', '', NOW())
	          ON CONFLICT (source_url) DO UPDATE
	          SET content_hash = $2, chunk_count = $3, status = 'ingested', error = '', last_ingested_at = NOW(), updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, sourceURL, contentHash, chunkCount)
	return err
}

func (r *PostgresRepo) RecordFailed(ctx context.Context, sourceURL, reason string) error {
	query := `INSERT INTO documents (source_url, content_hash, chunk_count, status, error)
	          VALUES ($1, '', 0, 'failed', $2)
	          ON CONFLICT (source_url) DO UPDATE
	          SET status = 'failed', error = $2, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, sourceURL, reason)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	query := `SELECT id, source_url, content_hash, chunk_count, status, error, last_ingested_at
	          FROM documents ORDER BY source_url`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		var lastIngested sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.SourceURL, &rec.ContentHash, &rec.ChunkCount, &rec.Status, &rec.Error, &lastIngested); err != nil {
			return nil, err
		}
		if lastIngested.Valid {
			rec.LastIngestedAt = lastIngested.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}
