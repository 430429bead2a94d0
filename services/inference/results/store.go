// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results persists the query histograms of finished runs.
//
// Each run is stored under "run:<uuid>" as a CRC32-prefixed JSON record, so
// a truncated or corrupted value is detected on load rather than decoded
// into a wrong posterior.
package results

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"slices"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/openworld/services/inference/evidence"
	"github.com/AleutianAI/openworld/services/inference/model"
	"github.com/AleutianAI/openworld/services/inference/storage/badger"
)

// Errors
var (
	// ErrNotFound is returned by Load for unknown run ids.
	ErrNotFound = errors.New("run not found")

	// ErrCorrupted is returned when a stored record fails its checksum.
	ErrCorrupted = errors.New("run record corrupted")
)

const runPrefix = "run:"

// ValueWeight is one histogram entry in display form.
type ValueWeight struct {
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
	Prob   float64 `json:"prob"`
}

// QueryResult is the posterior of one query.
type QueryResult struct {
	Query  string        `json:"query"`
	Total  float64       `json:"total"`
	Values []ValueWeight `json:"values"`
}

// NewQueryResult snapshots the histogram of q.
func NewQueryResult(q evidence.Query) QueryResult {
	h := q.Histogram()
	r := QueryResult{Query: q.String(), Total: h.Total()}
	for _, e := range h.Entries() {
		r.Values = append(r.Values, ValueWeight{
			Value:  model.ValueString(e.Value),
			Weight: e.Weight,
			Prob:   h.Prob(e.Value),
		})
	}
	return r
}

// Prob returns the stored probability of the value with display form v.
func (r QueryResult) Prob(v string) float64 {
	for _, vw := range r.Values {
		if vw.Value == v {
			return vw.Prob
		}
	}
	return 0
}

// Run is the persisted outcome of one engine run.
type Run struct {
	ID         uuid.UUID     `json:"id"`
	Model      string        `json:"model"`
	Sampler    string        `json:"sampler"`
	Seed       uint64        `json:"seed"`
	Chains     int           `json:"chains"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Samples    int           `json:"samples"`
	Consistent int           `json:"consistent"`
	Queries    []QueryResult `json:"queries"`
}

// Store saves and loads runs.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// NewStore wraps an open database. The caller keeps ownership of db.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens the database described by cfg and returns a store that owns
// it; Close releases it.
func Open(cfg badger.Config) (*Store, error) {
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(id uuid.UUID) []byte {
	return []byte(runPrefix + id.String())
}

func encode(r *Run) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(data))
	copy(out[4:], data)
	return out, nil
}

func decode(raw []byte) (*Run, error) {
	if len(raw) < 5 {
		return nil, fmt.Errorf("%w: record too short", ErrCorrupted)
	}
	stored := binary.BigEndian.Uint32(raw[:4])
	if computed := crc32.ChecksumIEEE(raw[4:]); stored != computed {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}
	var r Run
	if err := json.Unmarshal(raw[4:], &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &r, nil
}

// Save stores r, replacing any run with the same id. A nil id is replaced
// by a fresh one.
func (s *Store) Save(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(runKey(r.ID), data)
	})
}

// Load returns the run with id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run *Run
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err := decode(val)
			run = r
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns every stored run, oldest first.
func (s *Store) List(ctx context.Context) ([]*Run, error) {
	var runs []*Run
	prefix := []byte(runPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r *Run
			err := it.Item().Value(func(val []byte) error {
				var err error
				r, err = decode(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("%s: %w", it.Item().Key(), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(runs, func(a, b *Run) int { return a.StartedAt.Compare(b.StartedAt) })
	return runs, nil
}

// Delete removes the run with id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete(runKey(id))
	})
}
