package registry

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/percodb/percodb/internal/match"
	"github.com/percodb/percodb/pkg"
)

// ErrNotFound is returned for a delete or read of an id the registry does
// not hold.
var ErrNotFound = errors.New("query not found")

// RawQuery is an uncompiled query definition as supplied by a source.
type RawQuery struct {
	Id       string            `json:"query_id"`
	Name     string            `json:"query_name"`
	Raw      string            `json:"query"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryRecord is one registered query. Records are immutable once
// inserted: updates and refreshes replace the whole record, so a snapshot
// holding the old pointer can never observe a half-applied change.
type QueryRecord struct {
	Id       string
	Name     string
	Raw      string
	Metadata map[string]string
	compiled *match.Query
}

func (r *QueryRecord) Compiled() *match.Query { return r.compiled }

// Compiler turns raw query text plus metadata into an executable query.
// Injectable so the matching engine stays an external capability.
type Compiler func(raw string, metadata map[string]string) (*match.Query, error)

// DefaultCompiler resolves relative-time terms against the wall clock at
// compile time.
func DefaultCompiler(raw string, metadata map[string]string) (*match.Query, error) {
	return match.Compile(raw, metadata, time.Now())
}

// Source is the slice of the query-source contract the registry needs for
// a full reload.
type Source interface {
	ReadAll(ctx context.Context) ([]RawQuery, error)
}

// Registry is the single source of truth for the live query corpus.
//
// Concurrency discipline: all mutations (AddOrUpdate, Delete, ReloadAll,
// RefreshAll) serialize on an exclusive mutation mutex, so two mutations
// never interleave. Reads take the RW locker only long enough to copy the
// id map; match runs then evaluate against their copy without touching the
// registry again.
type Registry struct {
	locker sync.RWMutex
	mu     sync.Mutex // mutation serialization domain

	records  pkg.Map[string, *QueryRecord]
	compile  Compiler
	metadata map[string]string // merged under each record's own metadata
}

func New(compile Compiler, metadata map[string]string) *Registry {
	if compile == nil {
		compile = DefaultCompiler
	}
	return &Registry{
		records:  pkg.Map[string, *QueryRecord]{},
		compile:  compile,
		metadata: metadata,
	}
}

func (r *Registry) GetLocker() *sync.RWMutex { return &r.locker }

func (r *Registry) mergedMetadata(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(r.metadata)+len(extra))
	for k, v := range r.metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (r *Registry) build(raw RawQuery) (*QueryRecord, error) {
	if raw.Id == "" {
		return nil, errors.New("query id is empty")
	}
	metadata := r.mergedMetadata(raw.Metadata)
	compiled, err := r.compile(raw.Raw, metadata)
	if err != nil {
		return nil, err
	}
	return &QueryRecord{
		Id:       raw.Id,
		Name:     raw.Name,
		Raw:      raw.Raw,
		Metadata: metadata,
		compiled: compiled,
	}, nil
}

// AddOrUpdate compiles and inserts or replaces the record with raw's id.
// All-or-nothing: on compile failure any previous record for the id stays
// live untouched.
func (r *Registry) AddOrUpdate(raw RawQuery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.build(raw)
	if err != nil {
		return err
	}

	pkg.LockWrap(r, func() {
		r.records.Set(rec.Id, rec)
	})
	pkg.InfoLog("query", rec.Id, "updated")
	return nil
}

// Delete removes the record. Returns ErrNotFound when the id is absent so
// callers can tell there was nothing to delete; the id set is unchanged in
// that case.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found bool
	pkg.LockWrap(r, func() {
		if found = r.records.Has(id); found {
			r.records.Delete(id)
		}
	})

	if !found {
		return errors.Wrap(ErrNotFound, id)
	}
	pkg.InfoLog("query", id, "deleted")
	return nil
}

// ReloadAll reads the full corpus from the source and replaces the
// in-memory corpus with it. A single record's compile failure is logged
// and skipped, never aborts the reload; a source read failure leaves the
// previous corpus live. Returns how many records loaded and how many were
// skipped.
func (r *Registry) ReloadAll(ctx context.Context, source Source) (loaded, skipped int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	raws, err := source.ReadAll(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read queries from source")
	}

	fresh := make(pkg.Map[string, *QueryRecord], len(raws))
	for _, raw := range raws {
		rec, err := r.build(raw)
		if err != nil {
			pkg.ErrorLog("skipping query", raw.Id, "during reload:", err)
			skipped++
			continue
		}
		fresh.Set(rec.Id, rec)
		loaded++
	}

	pkg.LockWrap(r, func() {
		r.records = fresh
	})

	pkg.InfoLog("reloaded", loaded, "queries (", skipped, "skipped) in", time.Since(start))
	return loaded, skipped, nil
}

// RefreshAll recompiles every held record's raw text in place, picking up
// relative-time terms. A record that fails to recompile keeps its previous
// compiled form live. Returns how many records refreshed and how many
// failed.
func (r *Registry) RefreshAll() (refreshed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	snapshot := r.Snapshot()

	for id, rec := range snapshot {
		next, err := r.build(RawQuery{Id: rec.Id, Name: rec.Name, Raw: rec.Raw, Metadata: rec.Metadata})
		if err != nil {
			pkg.ErrorLog("query", id, "failed to refresh, keeping previous compiled form:", err)
			failed++
			continue
		}
		pkg.LockWrap(r, func() {
			r.records.Set(id, next)
		})
		refreshed++
	}

	pkg.InfoLog("refreshed", refreshed, "queries (", failed, "failed) in", time.Since(start))
	return refreshed, failed
}

// Snapshot returns a consistent view of the corpus for one match run. The
// copy is detached: concurrent mutations never corrupt a handed-out view.
func (r *Registry) Snapshot() pkg.Map[string, *QueryRecord] {
	var view pkg.Map[string, *QueryRecord]
	pkg.RLockWrap(r, func() {
		view = r.records.Copy()
	})
	return view
}

// CompiledSnapshot projects a snapshot down to what the matcher consumes.
func (r *Registry) CompiledSnapshot() map[string]*match.Query {
	snapshot := r.Snapshot()
	queries := make(map[string]*match.Query, len(snapshot))
	for id, rec := range snapshot {
		queries[id] = rec.compiled
	}
	return queries
}

func (r *Registry) Get(id string) (*QueryRecord, bool) {
	var rec *QueryRecord
	var ok bool
	pkg.RLockWrap(r, func() {
		rec, ok = r.records[id]
	})
	return rec, ok
}

func (r *Registry) Len() int {
	var n int
	pkg.RLockWrap(r, func() {
		n = len(r.records)
	})
	return n
}
