package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// PgVectorStore persists records in Postgres with the pgvector
// extension. Cosine ordering uses the <=> operator; score is reported
// as 1 - distance so both backends rank by similarity.
type PgVectorStore struct {
	db       *sql.DB
	registry *FileRegistry
	logger   *zap.Logger
}

func NewPgVectorStore(ctx context.Context, databaseURL string, embedDim int, registry *FileRegistry, logger *zap.Logger) (*PgVectorStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedDim <= 0 {
		embedDim = 384
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureBootstrapped(pingCtx, db, embedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PgVectorStore{
		db:       db,
		registry: registry,
		logger:   logger.With(zap.String("component", "pgvector_store")),
	}, nil
}

func ensureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(string(sqlBytes), embedDim)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	return tx.Commit()
}

func (s *PgVectorStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return &core.StoreError{Op: "add", Err: err}
	}

	const q = `
		INSERT INTO thinkbook_chunks (record_id, source, chunk_index, body, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_id) DO UPDATE
		SET source = EXCLUDED.source,
		    chunk_index = EXCLUDED.chunk_index,
		    body = EXCLUDED.body,
		    embedding = EXCLUDED.embedding
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return &core.StoreError{Op: "add", Err: err}
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Source, rec.ChunkIndex, rec.Text, pgvector.NewVector(rec.Embedding),
		); err != nil {
			_ = tx.Rollback()
			return &core.StoreError{Op: "add", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.StoreError{Op: "add", Err: err}
	}

	if s.registry != nil {
		s.registry.Set(records[0].Source, len(records))
	}

	s.logger.Info("added records to pgvector",
		zap.Int("count", len(records)),
		zap.String("source", records[0].Source))
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	const q = `
		SELECT body, source, chunk_index, 1 - (embedding <=> $1) AS score
		FROM thinkbook_chunks
		ORDER BY embedding <=> $1, record_id
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, &core.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Text, &r.Source, &r.ChunkIndex, &r.Score); err != nil {
			return nil, &core.StoreError{Op: "query", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StoreError{Op: "query", Err: err}
	}
	if out == nil {
		out = []SearchResult{}
	}
	return out, nil
}

func (s *PgVectorStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM thinkbook_chunks WHERE source = $1`, source)
	if err != nil {
		return 0, &core.StoreError{Op: "delete", Err: err}
	}
	n, _ := res.RowsAffected()

	if s.registry != nil {
		s.registry.Remove(source)
	}
	if n > 0 {
		s.logger.Info("deleted records from pgvector",
			zap.Int64("count", n),
			zap.String("source", source))
	}
	return int(n), nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM thinkbook_chunks`).Scan(&n); err != nil {
		return 0, &core.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *PgVectorStore) ListSources(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, count(*) FROM thinkbook_chunks GROUP BY source`)
	if err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, &core.StoreError{Op: "list", Err: err}
		}
		counts[src] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}

	if s.registry != nil {
		s.registry.Replace(counts)
	}
	return counts, nil
}

func (s *PgVectorStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ VectorStore = (*PgVectorStore)(nil)
