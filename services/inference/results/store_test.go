// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/storage/badger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewQueryResult(t *testing.T) {
	inst, err := catalog.Build("bayesnet")
	require.NoError(t, err)
	q := inst.Queries[0]
	h := q.Histogram()
	h.Add(true, 3)
	h.Add(false, 1)

	r := NewQueryResult(q)
	assert.Equal(t, q.String(), r.Query)
	assert.Equal(t, 4.0, r.Total)
	assert.InDelta(t, 0.75, r.Prob("true"), 1e-12)
	assert.InDelta(t, 0.25, r.Prob("false"), 1e-12)
	assert.Zero(t, r.Prob("maybe"))
}

func TestStore_SaveLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := &Run{
		Model:      "urn",
		Sampler:    "lwimportance",
		Seed:       7,
		Chains:     2,
		StartedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:   1500 * time.Millisecond,
		Samples:    1000,
		Consistent: 640,
		Queries: []QueryResult{{
			Query: "#{Ball b}",
			Total: 640,
			Values: []ValueWeight{
				{Value: "2", Weight: 256, Prob: 0.4},
				{Value: "3", Weight: 384, Prob: 0.6},
			},
		}},
	}
	require.NoError(t, s.Save(ctx, run))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := s.Load(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("loaded run mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 3; i > 0; i-- {
		r := &Run{Model: "coin", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.Save(ctx, r))
		ids = append(ids, r.ID)
	}

	runs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.Before(runs[1].StartedAt))
	assert.True(t, runs[1].StartedAt.Before(runs[2].StartedAt))

	require.NoError(t, s.Delete(ctx, ids[0]))
	require.NoError(t, s.Delete(ctx, uuid.New()))
	runs, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_DetectsCorruption(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	s := NewStore(db)
	ctx := context.Background()

	r := &Run{Model: "coin"}
	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(runKey(r.ID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		val[len(val)-2] ^= 0xff
		return txn.Set(runKey(r.ID), val)
	}))

	_, err = s.Load(ctx, r.ID)
	assert.ErrorIs(t, err, ErrCorrupted)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrCorrupted)
}
