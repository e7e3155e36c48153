package memory

import (
	"context"
	"errors"
	"fmt"

	"toh-translator/internal/worker"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS translation_memory (
	hash       TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	translated TEXT NOT NULL,
	status     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO translation_memory (hash, source, translated, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hash) DO UPDATE
SET translated = EXCLUDED.translated, status = EXCLUDED.status, updated_at = now()`

// upsertBatchSize bounds the statements queued in one pgx batch.
const upsertBatchSize = 500

// PGBackend stores records in PostgreSQL.
type PGBackend struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and makes sure the table exists.
func Connect(ctx context.Context, url string) (*PGBackend, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create translation_memory: %w", err)
	}
	return &PGBackend{pool: pool}, nil
}

// Close releases the pool.
func (b *PGBackend) Close() { b.pool.Close() }

func (b *PGBackend) Get(ctx context.Context, hash string) (Record, error) {
	var r Record
	err := b.pool.QueryRow(ctx,
		`SELECT source, translated, status FROM translation_memory WHERE hash = $1`, hash,
	).Scan(&r.Source, &r.Translated, &r.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query translation: %w", err)
	}
	return r, nil
}

func (b *PGBackend) Upsert(ctx context.Context, hashes []string, records []Record) error {
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	for _, chunk := range worker.Batch(idx, upsertBatchSize) {
		batch := &pgx.Batch{}
		for _, i := range chunk {
			r := records[i]
			batch.Queue(upsertSQL, hashes[i], r.Source, r.Translated, r.Status)
		}
		if err := b.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert translations: %w", err)
		}
	}
	return nil
}

func (b *PGBackend) List(ctx context.Context) (map[string]Record, error) {
	rows, err := b.pool.Query(ctx, `SELECT hash, source, translated, status FROM translation_memory`)
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var h string
		var r Record
		if err := rows.Scan(&h, &r.Source, &r.Translated, &r.Status); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		out[h] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	return out, nil
}
