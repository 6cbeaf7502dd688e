package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/tracing"
)

const candidatesTable = "candidates"

// PostgresRepository stores candidates in PostgreSQL. The schema lives in
// migrations/000001_create_candidates.up.sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open lib/pq connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes the batch in one transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, dataset string, cands []candidate.Candidate) (err error) {
	if err := validateBatch(dataset, cands); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, candidatesTable, tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (dataset, candidate_id, source, name, smiles, descriptors, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (dataset, candidate_id) DO UPDATE SET
			source = EXCLUDED.source,
			name = EXCLUDED.name,
			smiles = EXCLUDED.smiles,
			descriptors = EXCLUDED.descriptors,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range cands {
		c := &cands[i]
		desc, err := encodeDescriptors(c.Descriptors)
		if err != nil {
			return fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		var emb pq.Float64Array
		if c.Embedding != nil {
			emb = pq.Float64Array(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, dataset, c.ID, c.Source, c.Name, c.SMILES, desc, emb); err != nil {
			return fmt.Errorf("upsert candidate %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// List returns candidates ordered by ID.
func (r *PostgresRepository) List(ctx context.Context, dataset string, limit int) (out []candidate.Candidate, err error) {
	if err := ValidateDataset(dataset); err != nil {
		return nil, err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, candidatesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	// LIMIT NULL returns every row.
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT candidate_id, source, name, smiles, descriptors, embedding
		FROM candidates
		WHERE dataset = $1
		ORDER BY candidate_id
		LIMIT $2
	`, dataset, lim)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    candidate.Candidate
			desc []byte
			emb  pq.Float64Array
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Name, &c.SMILES, &desc, &emb); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if c.Descriptors, err = decodeDescriptors(desc); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		if len(emb) > 0 {
			c.Embedding = []float64(emb)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// Datasets returns the distinct dataset names in sorted order.
func (r *PostgresRepository) Datasets(ctx context.Context) (out []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, candidatesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT dataset FROM candidates ORDER BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
