package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/dataset"
	"github.com/onnwee/molrank/internal/store"
)

// source selects where a command reads candidates from.
type source struct {
	input      string
	sqlitePath string
	dataset    string
}

// load reads candidates from --input or from a SQLite dataset. An input
// file holds either the prepare JSON export or a candidate array.
func (s source) load(ctx context.Context) ([]candidate.Candidate, error) {
	switch {
	case s.input != "" && s.sqlitePath != "":
		return nil, errors.New("--input and --sqlite are mutually exclusive")
	case s.input != "":
		data, err := os.ReadFile(s.input)
		if err != nil {
			return nil, err
		}
		return decodeCandidates(data)
	case s.sqlitePath != "":
		if err := store.ValidateDataset(s.dataset); err != nil {
			return nil, err
		}
		repo := store.NewSQLiteRepository(s.sqlitePath)
		if err := repo.Init(ctx); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		defer repo.Close()
		cands, err := repo.List(ctx, s.dataset, 0)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			return nil, fmt.Errorf("dataset %q is empty", s.dataset)
		}
		return cands, nil
	default:
		return nil, errors.New("one of --input or --sqlite is required")
	}
}

func decodeCandidates(data []byte) ([]candidate.Candidate, error) {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("input must be a JSON array: %w", err)
	}
	if len(probe) > 0 {
		if _, ok := probe[0]["candidate_id"]; ok {
			var rows []dataset.Row
			if err := json.Unmarshal(data, &rows); err != nil {
				return nil, err
			}
			return dataset.Candidates(rows), nil
		}
	}
	var cands []candidate.Candidate
	if err := json.Unmarshal(data, &cands); err != nil {
		return nil, err
	}
	return cands, nil
}
