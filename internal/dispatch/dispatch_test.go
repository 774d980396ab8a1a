package dispatch_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"gotest.tools/assert"

	. "github.com/percodb/percodb/internal/dispatch"
	"github.com/percodb/percodb/internal/iox"
	"github.com/percodb/percodb/internal/match"
	"github.com/percodb/percodb/internal/registry"
	"github.com/percodb/percodb/pkg"
)

type captureSink struct {
	fields   iox.FieldProjection
	captured []iox.GroupedResults
	err      error
}

func (s *captureSink) Write(ctx context.Context, results iox.GroupedResults) error {
	if s.err != nil {
		return s.err
	}
	s.captured = append(s.captured, results)
	return nil
}

func (s *captureSink) Fields() iox.FieldProjection { return s.fields }
func (s *captureSink) Close() error                { return nil }

func snapshotWith(t *testing.T, raws ...registry.RawQuery) pkg.Map[string, *registry.QueryRecord] {
	t.Helper()
	r := registry.New(nil, nil)
	for _, raw := range raws {
		assert.NilError(t, r.AddOrUpdate(raw))
	}
	return r.Snapshot()
}

func TestProject(t *testing.T) {
	doc := match.Document{Id: "d1", Fields: map[string]any{
		"item_id": "d1", "price": 150, "kind": "book", match.VersionField: 7,
	}}
	res := match.MatchResult{QueryId: "q1", DocId: "d1"}

	t.Run("star keeps everything but the version field", func(t *testing.T) {
		out := Project(doc, res, "price:[100 TO 200]", iox.ParseProjection("*"))
		assert.Equal(t, out["item_id"], "d1")
		assert.Equal(t, out["price"], 150)
		assert.Equal(t, out["kind"], "book")
		_, hasVersion := out[match.VersionField]
		assert.Assert(t, !hasVersion)
		assert.Equal(t, out[FieldQueryId], "q1")
		assert.Equal(t, out[FieldQuery], "price:[100 TO 200]")
		assert.Equal(t, out[FieldDocId], "d1")
	})

	t.Run("explicit projection narrows to the listed fields", func(t *testing.T) {
		out := Project(doc, res, "", iox.ParseProjection("item_id"))
		assert.Equal(t, out["item_id"], "d1")
		_, hasPrice := out["price"]
		assert.Assert(t, !hasPrice)
	})

	t.Run("hits are carried when present", func(t *testing.T) {
		with_hits := match.MatchResult{QueryId: "q1", DocId: "d1", Hits: []match.Hit{{Field: "kind"}}}
		out := Project(doc, with_hits, "", iox.ParseProjection("*"))
		assert.Equal(t, len(out[FieldHits].([]match.Hit)), 1)
	})
}

func TestProjectionNeverLeaksFields(t *testing.T) {
	// a sink with projection {"item_id"} must never see any other document
	// field, across randomized documents with 10+ fields each
	projection := iox.ParseProjection("item_id")
	meta := map[string]bool{FieldQueryId: true, FieldQuery: true, FieldDocId: true, FieldHits: true}

	for i := 0; i < 50; i++ {
		fields := map[string]any{"item_id": fmt.Sprintf("d%d", i)}
		for f := 0; f < 10+rand.Intn(5); f++ {
			fields[fmt.Sprintf("field_%d", f)] = rand.Intn(1000)
		}

		doc := match.Document{Id: fmt.Sprintf("d%d", i), Fields: fields}
		out := Project(doc, match.MatchResult{QueryId: "q", DocId: doc.Id}, "raw", projection)

		for name := range out {
			if name == "item_id" || meta[name] {
				continue
			}
			t.Fatalf("projection leaked field %q", name)
		}
	}
}

func TestDispatch(t *testing.T) {
	docs := map[string]match.Document{
		"d1": {Id: "d1", Fields: map[string]any{"item_id": "d1", "price": 150}},
		"d2": {Id: "d2", Fields: map[string]any{"item_id": "d2", "price": 160}},
	}
	matches := map[string][]match.MatchResult{
		"d1": {{QueryId: "q1", DocId: "d1"}},
		"d2": {{QueryId: "q1", DocId: "d2"}},
	}
	snapshot := snapshotWith(t, registry.RawQuery{Id: "q1", Name: "prices", Raw: "price:[100 TO 200]"})

	t.Run("multiple docs matching one query are all preserved", func(t *testing.T) {
		sink := &captureSink{fields: iox.ParseProjection("*")}
		d := New([]iox.ResultSink{sink})

		delivered, failed := d.Dispatch(context.Background(), matches, docs, snapshot)
		assert.Equal(t, delivered, 1)
		assert.Equal(t, failed, 0)
		assert.Equal(t, len(sink.captured), 1)
		assert.Equal(t, len(sink.captured[0]["q1"]), 2)
	})

	t.Run("one failing sink does not starve the others", func(t *testing.T) {
		bad := &captureSink{fields: iox.ParseProjection("*"), err: fmt.Errorf("broken pipe")}
		good := &captureSink{fields: iox.ParseProjection("item_id")}
		d := New([]iox.ResultSink{bad, good})

		delivered, failed := d.Dispatch(context.Background(), matches, docs, snapshot)
		assert.Equal(t, delivered, 1)
		assert.Equal(t, failed, 1)
		assert.Equal(t, len(good.captured), 1)
	})

	t.Run("no matches means no writes", func(t *testing.T) {
		sink := &captureSink{fields: iox.ParseProjection("*")}
		d := New([]iox.ResultSink{sink})

		delivered, failed := d.Dispatch(context.Background(), nil, docs, snapshot)
		assert.Equal(t, delivered, 0)
		assert.Equal(t, failed, 0)
		assert.Equal(t, len(sink.captured), 0)
	})
}
