package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/tracing"
)

// SQLiteRepository stores candidates in a local SQLite file. The schema is
// created on Init.
type SQLiteRepository struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteRepository returns a repository for path. Use ":memory:" for a
// throwaway database.
func NewSQLiteRepository(path string) *SQLiteRepository {
	return &SQLiteRepository{path: path}
}

// Init opens the database and creates the schema.
func (s *SQLiteRepository) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createSQLiteTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteRepository) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite repository is not initialized")
	}
	return s.db, nil
}

func createSQLiteTables(ctx context.Context, db *sql.DB) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemSQLite, candidatesTable, tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS candidates (
			dataset TEXT NOT NULL,
			candidate_id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			smiles TEXT NOT NULL DEFAULT '',
			descriptors TEXT NOT NULL DEFAULT '{}',
			embedding TEXT,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (dataset, candidate_id)
		)
	`)
	return err
}

// Upsert writes the batch in one transaction.
func (s *SQLiteRepository) Upsert(ctx context.Context, dataset string, cands []candidate.Candidate) (err error) {
	if err := validateBatch(dataset, cands); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemSQLite, candidatesTable, tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range cands {
		c := &cands[i]
		desc, err := encodeDescriptors(c.Descriptors)
		if err != nil {
			return fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		var emb sql.NullString
		if c.Embedding != nil {
			raw, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("candidate %s: encode embedding: %w", c.ID, err)
			}
			emb = sql.NullString{String: string(raw), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO candidates (dataset, candidate_id, source, name, smiles, descriptors, embedding, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(dataset, candidate_id) DO UPDATE SET
				source = excluded.source,
				name = excluded.name,
				smiles = excluded.smiles,
				descriptors = excluded.descriptors,
				embedding = excluded.embedding,
				updated_at = CURRENT_TIMESTAMP
		`, dataset, c.ID, c.Source, c.Name, c.SMILES, string(desc), emb)
		if err != nil {
			return fmt.Errorf("upsert candidate %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// List returns candidates ordered by ID.
func (s *SQLiteRepository) List(ctx context.Context, dataset string, limit int) (out []candidate.Candidate, err error) {
	if err := ValidateDataset(dataset); err != nil {
		return nil, err
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemSQLite, candidatesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	// LIMIT -1 returns every row.
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT candidate_id, source, name, smiles, descriptors, embedding
		FROM candidates
		WHERE dataset = ?
		ORDER BY candidate_id
		LIMIT ?
	`, dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    candidate.Candidate
			desc string
			emb  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Name, &c.SMILES, &desc, &emb); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if c.Descriptors, err = decodeDescriptors([]byte(desc)); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		if emb.Valid && emb.String != "" {
			if err := json.Unmarshal([]byte(emb.String), &c.Embedding); err != nil {
				return nil, fmt.Errorf("candidate %s: decode embedding: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// Datasets returns the distinct dataset names in sorted order.
func (s *SQLiteRepository) Datasets(ctx context.Context) (out []string, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemSQLite, candidatesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT dataset FROM candidates ORDER BY dataset`)
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
