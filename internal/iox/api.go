// Package iox holds the query-source and result-sink contracts plus the
// built-in implementations. Sources supply raw query definitions, sinks
// consume dispatched percolation results; both are resolved from
// configuration through a typed kind registry.
package iox

import (
	"context"
	"strings"

	"github.com/percodb/percodb/internal/registry"
)

// RawQuery is the uncompiled record shape shared with the registry.
type RawQuery = registry.RawQuery

// ProjectedDoc is a result document narrowed to one sink's field
// projection plus the injected match-metadata fields (query_id, query,
// doc_id and, under the highlighting strategy, hits).
type ProjectedDoc map[string]any

// GroupedResults is one batch worth of results for one sink, keyed by
// query id. Every match for a query in the batch is preserved.
type GroupedResults map[string][]ProjectedDoc

// QuerySource supplies raw query definitions from some backing store.
type QuerySource interface {
	// ReadAll returns the full current corpus.
	ReadAll(ctx context.Context) ([]RawQuery, error)
	// ReadOne returns the record with the given id. It fails with
	// registry.ErrNotFound when zero or more than one record share the id.
	ReadOne(ctx context.Context, id, name string) (RawQuery, error)
	Close() error
}

// ResultSink consumes grouped percolation results. Write is invoked once
// per batch with the sink's projection already applied.
type ResultSink interface {
	Write(ctx context.Context, results GroupedResults) error
	Fields() FieldProjection
	Close() error
}

// FieldProjection is a sink's requested field subset, resolved once at
// sink initialization and immutable afterwards. "*" requests all fields.
type FieldProjection struct {
	All    bool
	Fields map[string]struct{}
}

// ParseProjection parses a comma-separated field list, or "*" for all.
func ParseProjection(s string) FieldProjection {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return FieldProjection{All: true}
	}

	fields := map[string]struct{}{}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields[f] = struct{}{}
		}
	}
	return FieldProjection{Fields: fields}
}

func (p FieldProjection) Wants(field string) bool {
	if p.All {
		return true
	}
	_, ok := p.Fields[field]
	return ok
}

func (p FieldProjection) String() string {
	if p.All {
		return "*"
	}
	fields := make([]string, 0, len(p.Fields))
	for f := range p.Fields {
		fields = append(fields, f)
	}
	return strings.Join(fields, ",")
}
