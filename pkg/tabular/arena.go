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
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/storage"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Default memory ceilings for materialized tables.
const (
	DefaultPerFileCeiling = 64 << 20  // 64 MiB per materialized file
	DefaultTotalCeiling   = 256 << 20 // 256 MiB across all files
)

// ArenaConfig holds configuration for the materialization cache.
type ArenaConfig struct {
	// Store resolves file references to raw bytes. Required.
	Store storage.ObjectStore

	// PerFileCeiling caps one file's estimated footprint.
	// Default: DefaultPerFileCeiling.
	PerFileCeiling int64

	// TotalCeiling caps the aggregate footprint of all live
	// materializations. Default: DefaultTotalCeiling.
	TotalCeiling int64

	// MaxColumns rejects over-wide files at parse time.
	// Default: DefaultMaxColumns.
	MaxColumns int

	// Logger for arena operations.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Arena is the shared cache of CSV materializations, keyed by
// (owner, file reference). It is the only shared mutable state in the
// request path.
//
// Concurrency: concurrent first-accesses of a key collapse into one
// materialization via singleflight; handles are leases that block eviction
// of an entry while it is in use; eviction between acquisition attempts is
// handled by transparent re-materialization.
type Arena struct {
	store      storage.ObjectStore
	perFile    int64
	total      int64
	maxColumns int
	logger     *zap.Logger
	tracer     observability.Tracer

	group singleflightGroup

	mu        sync.Mutex
	entries   map[string]*entry
	footprint int64
}

// singleflightGroup is the subset of singleflight.Group the arena uses.
type singleflightGroup interface {
	Do(key string, fn func() (interface{}, error)) (interface{}, error, bool)
}

// entry is one cached materialization. The parsed table, frame, and sqlite
// table are shared by all handles on the entry; refs counts live leases.
type entry struct {
	key    string
	parsed *ParsedTable

	mu    sync.Mutex
	frame *Frame
	table *SQLTable

	refs     int
	lastUsed time.Time
	evicted  bool
}

// NewArena creates a materialization cache.
func NewArena(cfg ArenaConfig) (*Arena, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}
	if cfg.PerFileCeiling == 0 {
		cfg.PerFileCeiling = DefaultPerFileCeiling
	}
	if cfg.TotalCeiling == 0 {
		cfg.TotalCeiling = DefaultTotalCeiling
	}
	if cfg.MaxColumns == 0 {
		cfg.MaxColumns = DefaultMaxColumns
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Arena{
		store:      cfg.Store,
		perFile:    cfg.PerFileCeiling,
		total:      cfg.TotalCeiling,
		maxColumns: cfg.MaxColumns,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		group:      &singleflight.Group{},
		entries:    make(map[string]*entry),
	}, nil
}

func arenaKey(owner, fileRef string) string {
	return owner + "\x1f" + fileRef
}

// Acquire returns a leased handle on the materialization of
// (owner, fileRef), loading and parsing the file on first access. The
// caller must Release the handle when done.
//
// Fails with NotFoundError (missing file), ParseError (bad content), or
// CapacityError (memory ceiling). A CapacityError leaves nothing behind in
// the cache.
func (a *Arena) Acquire(ctx context.Context, owner, fileRef string) (*Handle, error) {
	ctx, span := a.tracer.StartSpan(ctx, "tabular.acquire",
		observability.WithAttribute("file_ref", fileRef))
	defer a.tracer.EndSpan(span)

	key := arenaKey(owner, fileRef)

	// The loop covers the window where another goroutine evicts the entry
	// between materialization and lease: re-materialize transparently.
	for attempt := 0; attempt < 3; attempt++ {
		e, err := a.lookupOrMaterialize(ctx, key, fileRef)
		if err != nil {
			span.Status = observability.Status{Code: observability.StatusError, Message: err.Error()}
			return nil, err
		}

		a.mu.Lock()
		if !e.evicted {
			e.refs++
			e.lastUsed = time.Now()
			a.mu.Unlock()
			span.SetAttribute("rows", len(e.parsed.Records))
			return &Handle{arena: a, entry: e}, nil
		}
		a.mu.Unlock()
		// Entry was evicted before we could lease it; try again.
	}
	return nil, fmt.Errorf("could not acquire %s: evicted repeatedly under memory pressure", fileRef)
}

// lookupOrMaterialize returns the live entry for key, collapsing
// concurrent misses into one materialization.
func (a *Arena) lookupOrMaterialize(ctx context.Context, key, fileRef string) (*entry, error) {
	a.mu.Lock()
	if e, ok := a.entries[key]; ok {
		a.mu.Unlock()
		return e, nil
	}
	a.mu.Unlock()

	v, err, shared := a.group.Do(key, func() (interface{}, error) {
		// Double-check under the flight: a concurrent caller may have
		// finished materializing while we queued.
		a.mu.Lock()
		if e, ok := a.entries[key]; ok {
			a.mu.Unlock()
			return e, nil
		}
		a.mu.Unlock()
		return a.materialize(ctx, key, fileRef)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		a.tracer.RecordMetric("tabular.singleflight_shared", 1.0, nil)
	}
	return v.(*entry), nil
}

// materialize fetches, parses, admits, and caches one file.
func (a *Arena) materialize(ctx context.Context, key, fileRef string) (*entry, error) {
	data, err := a.store.FetchBytes(ctx, fileRef)
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(fileRef, data, ParseOptions{
		MaxColumns: a.maxColumns,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	if parsed.Footprint > a.perFile {
		return nil, &types.CapacityError{
			FileRef: fileRef,
			Needed:  parsed.Footprint,
			Ceiling: a.perFile,
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Admission is decided before anything is evicted: leased entries
	// cannot be freed, so a file that would not fit even with every
	// unleased entry gone fails with no side effects on the cache.
	var leased int64
	for _, e := range a.entries {
		if e.refs > 0 {
			leased += e.parsed.Footprint
		}
	}
	if leased+parsed.Footprint > a.total {
		return nil, &types.CapacityError{
			FileRef:   fileRef,
			Needed:    parsed.Footprint,
			Ceiling:   a.total,
			Aggregate: true,
		}
	}

	// Make room under the aggregate ceiling, oldest unleased first.
	if a.footprint+parsed.Footprint > a.total {
		a.evictLocked(a.footprint + parsed.Footprint - a.total)
	}

	e := &entry{
		key:      key,
		parsed:   parsed,
		lastUsed: time.Now(),
	}
	a.entries[key] = e
	a.footprint += parsed.Footprint

	a.logger.Info("materialized file",
		zap.String("file", fileRef),
		zap.Int("rows", len(parsed.Records)),
		zap.Int64("footprint", parsed.Footprint),
		zap.Int64("aggregate", a.footprint))
	a.tracer.RecordMetric("tabular.materialized_bytes", float64(parsed.Footprint), nil)

	return e, nil
}

// evictLocked frees at least need bytes by dropping unleased entries,
// least recently used first. Leased entries are never touched: a reader
// holding a handle must not lose its tables mid-query.
func (a *Arena) evictLocked(need int64) {
	var victims []*entry
	for _, e := range a.entries {
		if e.refs == 0 {
			victims = append(victims, e)
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].lastUsed.Before(victims[j].lastUsed)
	})

	var freed int64
	for _, e := range victims {
		if freed >= need {
			break
		}
		a.removeLocked(e)
		freed += e.parsed.Footprint
		a.logger.Debug("evicted materialization",
			zap.String("key", e.key),
			zap.Int64("freed", e.parsed.Footprint))
	}
}

// removeLocked drops an entry from the cache and, when unleased, closes
// its resources. Leased entries close on their last Release instead.
func (a *Arena) removeLocked(e *entry) {
	if _, ok := a.entries[e.key]; !ok {
		return
	}
	delete(a.entries, e.key)
	a.footprint -= e.parsed.Footprint
	e.evicted = true
	if e.refs == 0 {
		e.closeResources()
	}
}

// Drop releases the materializations of (owner, fileRef). Idempotent: a
// no-op when nothing is loaded. In-flight handles keep working; resources
// are closed when the last one releases.
func (a *Arena) Drop(owner, fileRef string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[arenaKey(owner, fileRef)]; ok {
		a.removeLocked(e)
		a.logger.Info("dropped materialization",
			zap.String("file", fileRef))
	}
}

// release returns a lease. Called by Handle.Release.
func (a *Arena) release(e *entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.refs > 0 {
		e.refs--
	}
	if e.evicted && e.refs == 0 {
		e.closeResources()
	}
}

// Footprint returns the current aggregate footprint estimate.
func (a *Arena) Footprint() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.footprint
}

// Len returns the number of live materializations.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (e *entry) closeResources() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table != nil {
		_ = e.table.Close()
		e.table = nil
	}
	e.frame = nil
}

// Handle is a lease on one cached materialization. Frame and Table are
// idempotent per entry: concurrent handles on the same file share one
// frame and one sqlite table.
type Handle struct {
	arena *Arena
	entry *entry

	releaseOnce sync.Once
}

// FileRef names the underlying file.
func (h *Handle) FileRef() string {
	return h.entry.parsed.FileRef
}

// Footprint returns the entry's estimated in-memory size.
func (h *Handle) Footprint() int64 {
	return h.entry.parsed.Footprint
}

// RowCount returns the number of data rows (header excluded).
func (h *Handle) RowCount() int {
	return len(h.entry.parsed.Records)
}

// Frame returns the programmatic-analysis materialization, building it on
// first use.
func (h *Handle) Frame() *Frame {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	if h.entry.frame == nil {
		h.entry.frame = NewFrame(h.entry.parsed)
	}
	return h.entry.frame
}

// Table returns the relational materialization, building it on first use.
// A second call for the same file returns the existing table.
func (h *Handle) Table(ctx context.Context) (*SQLTable, error) {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	if h.entry.table == nil {
		table, err := newSQLTable(ctx, h.entry.parsed, h.arena.logger)
		if err != nil {
			return nil, err
		}
		h.entry.table = table
	}
	return h.entry.table, nil
}

// SchemaDescription renders the table schema for prompts.
func (h *Handle) SchemaDescription() string {
	return h.entry.parsed.SchemaDescription()
}

// Release returns the lease. Idempotent.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.arena.release(h.entry)
	})
}
