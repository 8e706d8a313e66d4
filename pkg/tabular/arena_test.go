// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tabular

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

// memStore is an in-memory ObjectStore counting fetches.
type memStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	fetches atomic.Int64
	block   chan struct{} // when non-nil, FetchBytes waits on it
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (s *memStore) put(ref, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[ref] = []byte(data)
}

func (s *memStore) FetchBytes(_ context.Context, ref string) ([]byte, error) {
	s.fetches.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[ref]
	if !ok {
		return nil, &types.NotFoundError{Kind: "file", Ref: ref}
	}
	return data, nil
}

func newTestArena(t *testing.T, store *memStore, cfg ArenaConfig) *Arena {
	t.Helper()
	cfg.Store = store
	a, err := NewArena(cfg)
	require.NoError(t, err)
	return a
}

func TestArena_AcquireAndQuery(t *testing.T) {
	store := newMemStore()
	store.put("people.csv", "name,salary\nalice,50000\nbob,60000\n")
	a := newTestArena(t, store, ArenaConfig{})

	h, err := a.Acquire(context.Background(), "u1", "people.csv")
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, 2, h.RowCount())

	table, err := h.Table(context.Background())
	require.NoError(t, err)
	_, rows, err := table.Query(context.Background(), "SELECT AVG(salary) FROM data")
	require.NoError(t, err)
	assert.InDelta(t, 55000.0, rows[0][0], 0.001)
}

func TestArena_MissingFile(t *testing.T) {
	a := newTestArena(t, newMemStore(), ArenaConfig{})

	_, err := a.Acquire(context.Background(), "u1", "nope.csv")
	require.Error(t, err)
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, 0, a.Len(), "failed acquisition leaves no residue")
}

func TestArena_MaterializationIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.put("a.csv", "x\n1\n")
	a := newTestArena(t, store, ArenaConfig{})

	h1, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h1.Release()
	h2, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h2.Release()

	assert.Same(t, h1.entry, h2.entry, "same entry shared across handles")
	assert.Same(t, h1.Frame(), h2.Frame())

	t1, err := h1.Table(context.Background())
	require.NoError(t, err)
	t2, err := h2.Table(context.Background())
	require.NoError(t, err)
	assert.Same(t, t1, t2, "one sqlite table per materialized file")

	assert.EqualValues(t, 1, store.fetches.Load(), "file fetched once")
}

func TestArena_OwnersAreIsolated(t *testing.T) {
	store := newMemStore()
	store.put("a.csv", "x\n1\n")
	a := newTestArena(t, store, ArenaConfig{})

	h1, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h1.Release()
	h2, err := a.Acquire(context.Background(), "u2", "a.csv")
	require.NoError(t, err)
	defer h2.Release()

	assert.NotSame(t, h1.entry, h2.entry, "entries are keyed per owner")
	assert.Equal(t, 2, a.Len())
}

func TestArena_ConcurrentAcquireCollapses(t *testing.T) {
	store := newMemStore()
	store.put("a.csv", "x\n1\n2\n3\n")
	store.block = make(chan struct{})
	a := newTestArena(t, store, ArenaConfig{})

	const n = 8
	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = a.Acquire(context.Background(), "u1", "a.csv")
		}(i)
	}
	close(store.block)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0].entry, handles[i].entry)
		handles[i].Release()
	}
	assert.LessOrEqual(t, store.fetches.Load(), int64(2),
		"concurrent misses collapse into at most the raced-in flights")
}

func TestArena_PerFileCeiling(t *testing.T) {
	store := newMemStore()
	store.put("big.csv", "a,b,c\n"+strings.Repeat("1,2,3\n", 1000))
	a := newTestArena(t, store, ArenaConfig{PerFileCeiling: 100})

	_, err := a.Acquire(context.Background(), "u1", "big.csv")
	require.Error(t, err)
	var ce *types.CapacityError
	require.True(t, errors.As(err, &ce))
	assert.False(t, ce.Aggregate)
	assert.Equal(t, 0, a.Len(), "rejected file leaves no residue")
	assert.Zero(t, a.Footprint())
}

func TestArena_AggregateCeilingEvictsUnleased(t *testing.T) {
	store := newMemStore()
	row := strings.Repeat("1,2,3\n", 200)
	store.put("a.csv", "a,b,c\n"+row)
	store.put("b.csv", "a,b,c\n"+row)
	store.put("c.csv", "a,b,c\n"+row)

	// Fit roughly two files at once.
	parsed, err := Parse("probe", []byte("a,b,c\n"+row), ParseOptions{})
	require.NoError(t, err)
	a := newTestArena(t, store, ArenaConfig{
		PerFileCeiling: parsed.Footprint + 1,
		TotalCeiling:   2*parsed.Footprint + 1,
	})

	h1, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	h1.Release() // unleased: evictable

	h2, err := a.Acquire(context.Background(), "u1", "b.csv")
	require.NoError(t, err)
	defer h2.Release()

	// The third file forces eviction of a.csv, the oldest unleased entry.
	h3, err := a.Acquire(context.Background(), "u1", "c.csv")
	require.NoError(t, err)
	defer h3.Release()

	assert.Equal(t, 2, a.Len())
	_, aLive := a.entries[arenaKey("u1", "a.csv")]
	assert.False(t, aLive, "oldest unleased entry evicted")
}

func TestArena_LeaseBlocksEviction(t *testing.T) {
	store := newMemStore()
	row := strings.Repeat("1,2,3\n", 200)
	store.put("a.csv", "a,b,c\n"+row)
	store.put("b.csv", "a,b,c\n"+row)

	parsed, err := Parse("probe", []byte("a,b,c\n"+row), ParseOptions{})
	require.NoError(t, err)
	a := newTestArena(t, store, ArenaConfig{
		PerFileCeiling: parsed.Footprint + 1,
		TotalCeiling:   parsed.Footprint + 1, // room for exactly one file
	})

	h1, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h1.Release()

	// a.csv is leased, so it cannot be evicted to make room.
	_, err = a.Acquire(context.Background(), "u1", "b.csv")
	require.Error(t, err)
	var ce *types.CapacityError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Aggregate)

	// The leased materialization still works.
	table, err := h1.Table(context.Background())
	require.NoError(t, err)
	_, rows, err := table.Query(context.Background(), "SELECT COUNT(*) FROM data")
	require.NoError(t, err)
	assert.EqualValues(t, int64(200), rows[0][0])
}

func TestArena_InfeasibleAdmissionEvictsNothing(t *testing.T) {
	store := newMemStore()
	small := strings.Repeat("1,2,3\n", 200)
	big := strings.Repeat("1,2,3\n", 300)
	store.put("a.csv", "a,b,c\n"+small)
	store.put("b.csv", "a,b,c\n"+small)
	store.put("c.csv", "a,b,c\n"+big)

	parsedSmall, err := Parse("probe", []byte("a,b,c\n"+small), ParseOptions{})
	require.NoError(t, err)
	parsedBig, err := Parse("probe", []byte("a,b,c\n"+big), ParseOptions{})
	require.NoError(t, err)

	// c.csv fits alone but not beside the leased a.csv, even if every
	// unleased entry were evicted.
	a := newTestArena(t, store, ArenaConfig{
		PerFileCeiling: parsedBig.Footprint + 1,
		TotalCeiling:   2*parsedSmall.Footprint + 1,
	})
	require.Greater(t, parsedSmall.Footprint+parsedBig.Footprint, 2*parsedSmall.Footprint+1)

	h1, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h1.Release()

	h2, err := a.Acquire(context.Background(), "u1", "b.csv")
	require.NoError(t, err)
	h2.Release() // unleased: the eviction candidate

	before := a.Footprint()
	_, err = a.Acquire(context.Background(), "u1", "c.csv")
	require.Error(t, err)
	var ce *types.CapacityError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Aggregate)

	// The doomed admission must not have evicted b.csv on its way out.
	assert.Equal(t, 2, a.Len())
	_, bLive := a.entries[arenaKey("u1", "b.csv")]
	assert.True(t, bLive, "unleased entry survives a failed admission")
	assert.Equal(t, before, a.Footprint())
}

func TestArena_DropIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.put("a.csv", "x\n1\n")
	a := newTestArena(t, store, ArenaConfig{})

	h, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)

	a.Drop("u1", "a.csv")
	a.Drop("u1", "a.csv")
	a.Drop("u1", "never-loaded.csv")
	assert.Equal(t, 0, a.Len())
	assert.Zero(t, a.Footprint())

	// The in-flight handle keeps working until released.
	assert.Equal(t, 1, h.RowCount())
	h.Release()
	h.Release() // Release is idempotent too

	// Re-acquiring after a drop re-materializes.
	h2, err := a.Acquire(context.Background(), "u1", "a.csv")
	require.NoError(t, err)
	defer h2.Release()
	assert.EqualValues(t, 2, store.fetches.Load())
}
