package match

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/percodb/percodb/pkg"
)

// Strategy selects how much detail a match run reports. It is chosen once
// at startup.
type Strategy int

const (
	// StrategySimple reports only which documents matched each query.
	StrategySimple Strategy = iota
	// StrategyHighlighting additionally reports the matching field spans.
	StrategyHighlighting
)

// StrategyFromString resolves a strategy name case-insensitively.
func StrategyFromString(s string) (Strategy, error) {
	switch {
	case strings.EqualFold(s, "simple"):
		return StrategySimple, nil
	case strings.EqualFold(s, "highlighting"):
		return StrategyHighlighting, nil
	}
	return StrategySimple, fmt.Errorf("unknown matching strategy %q, supported: simple, highlighting", s)
}

// MatchResult is one (query, document) match. Transient: produced by the
// matcher and consumed immediately by dispatch.
type MatchResult struct {
	QueryId string `json:"query_id"`
	DocId   string `json:"doc_id"`
	Hits    []Hit  `json:"hits,omitempty"`
}

// Matcher evaluates a full query corpus against one batch at a time.
// Evaluation is presearch-free: every query is tested against every row.
type Matcher struct {
	strategy Strategy
	workers  int
}

func NewMatcher(strategy Strategy, workers int) *Matcher {
	if workers < 1 {
		workers = 1
	}
	return &Matcher{strategy: strategy, workers: workers}
}

func (m *Matcher) Strategy() Strategy { return m.strategy }

// Match runs every query in the snapshot against every document in the
// batch, parallelized per query over the worker pool. A query that fails
// or panics during evaluation is logged and skipped; the rest of the
// corpus still runs. An empty corpus or a degenerate single-document batch
// just produces an empty or small result, never an error.
//
// The result maps document id to the matches for that document.
func (m *Matcher) Match(ctx context.Context, batch *DocumentBatch, queries map[string]*Query) (map[string][]MatchResult, error) {
	results := make(map[string][]MatchResult)
	if batch.Size() == 0 || len(queries) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for id, q := range queries {
		id, q := id, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			defer func() {
				if r := recover(); r != nil {
					pkg.ErrorLog("query", id, "panicked during evaluation:", r, string(debug.Stack()))
				}
			}()

			matched := m.evalQuery(id, q, batch)
			if len(matched) == 0 {
				return nil
			}

			mu.Lock()
			for _, res := range matched {
				results[res.DocId] = append(results[res.DocId], res)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Matcher) evalQuery(id string, q *Query, batch *DocumentBatch) []MatchResult {
	var matched []MatchResult
	highlight := m.strategy == StrategyHighlighting

	for _, doc := range batch.docs {
		ok, hits := q.eval(doc, highlight)
		if !ok {
			continue
		}
		matched = append(matched, MatchResult{QueryId: id, DocId: doc.id, Hits: hits})
	}

	return matched
}
