// Package dispatch turns raw match results into sink-specific result
// documents and delivers them. Each sink gets its own projection of the
// original document fields plus the match metadata, grouped by query id.
package dispatch

import (
	"context"

	"github.com/percodb/percodb/internal/iox"
	"github.com/percodb/percodb/internal/match"
	"github.com/percodb/percodb/internal/registry"
	"github.com/percodb/percodb/pkg"
)

// Metadata fields injected into every projected result document.
const (
	FieldQueryId = "query_id"
	FieldQuery   = "query"
	FieldDocId   = "doc_id"
	FieldHits    = "hits"
)

type Dispatcher struct {
	sinks []iox.ResultSink
}

func New(sinks []iox.ResultSink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Project narrows doc to the sink's requested fields and injects the match
// metadata. A "*" projection carries every field except the internal
// version field; an explicit field list is honored verbatim.
func Project(doc match.Document, res match.MatchResult, rawQuery string, projection iox.FieldProjection) iox.ProjectedDoc {
	out := iox.ProjectedDoc{}

	for name, value := range doc.Fields {
		if projection.All && name == match.VersionField {
			continue
		}
		if projection.Wants(name) {
			out[name] = value
		}
	}

	out[FieldQueryId] = res.QueryId
	out[FieldQuery] = rawQuery
	out[FieldDocId] = res.DocId
	if len(res.Hits) > 0 {
		out[FieldHits] = res.Hits
	}

	return out
}

// Dispatch delivers one batch's matches to every configured sink: one
// Write call per sink, carrying all of the batch's matches grouped by
// query id. Every match for a query is preserved, keyed per (query, doc).
// A sink write failure is logged and isolated: the remaining sinks still
// receive their results and the batch does not fail for the caller.
//
// docs is the engine's per-batch field cache keyed by document id;
// snapshot is the registry view the match run evaluated against, used to
// recover each query's raw text for traceability.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	matches map[string][]match.MatchResult,
	docs map[string]match.Document,
	snapshot pkg.Map[string, *registry.QueryRecord],
) (delivered, failed int) {
	if len(matches) == 0 {
		return 0, 0
	}

	for _, sink := range d.sinks {
		projection := sink.Fields()
		grouped := iox.GroupedResults{}

		for docId, docMatches := range matches {
			doc, ok := docs[docId]
			if !ok {
				pkg.ErrorLog("no cached fields for matched doc", docId, "- skipping")
				continue
			}

			for _, res := range docMatches {
				var rawQuery string
				if rec, ok := snapshot[res.QueryId]; ok {
					rawQuery = rec.Raw
				}
				grouped[res.QueryId] = append(grouped[res.QueryId], Project(doc, res, rawQuery, projection))
			}
		}

		if len(grouped) == 0 {
			continue
		}

		if err := sink.Write(ctx, grouped); err != nil {
			pkg.ErrorLog("sink write failed:", err)
			failed++
			continue
		}
		delivered++
	}

	return delivered, failed
}
