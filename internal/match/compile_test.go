package match_test

import (
	"context"
	"testing"
	"time"

	. "github.com/percodb/percodb/internal/match"
	"gotest.tools/assert"
)

var test_now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestCompile(t *testing.T) {
	t.Run("range with spaces stays one clause", func(t *testing.T) {
		q, err := Compile("price:[100 TO 200] kind:book", nil, test_now)
		assert.NilError(t, err)
		assert.Equal(t, q.ClauseCount(), 2)
	})

	t.Run("query file prefix is tolerated", func(t *testing.T) {
		q, err := Compile("q=price:[100 TO 200]", nil, test_now)
		assert.NilError(t, err)
		assert.Equal(t, q.ClauseCount(), 1)
	})

	t.Run("bare term uses df metadata", func(t *testing.T) {
		_, err := Compile("laptop", map[string]string{"df": "title"}, test_now)
		assert.NilError(t, err)
	})

	t.Run("bare term without df fails", func(t *testing.T) {
		_, err := Compile("laptop", nil, test_now)
		compile_err, ok := err.(*CompileError)
		assert.Assert(t, ok)
		assert.Equal(t, compile_err.Clause, "laptop")
	})

	t.Run("empty query fails", func(t *testing.T) {
		_, err := Compile("   ", nil, test_now)
		_, ok := err.(*CompileError)
		assert.Assert(t, ok)
	})

	t.Run("unbalanced range fails", func(t *testing.T) {
		_, err := Compile("price:[100 TO 200", nil, test_now)
		_, ok := err.(*CompileError)
		assert.Assert(t, ok)
	})

	t.Run("bad range bounds fail", func(t *testing.T) {
		_, err := Compile("price:[abc TO def]", nil, test_now)
		_, ok := err.(*CompileError)
		assert.Assert(t, ok)
	})
}

func TestCompileRelativeTime(t *testing.T) {
	batch := func(ts string) *DocumentBatch {
		b, err := NewBatch([]Document{
			{Id: "d1", Fields: map[string]any{"created": ts}},
			{Id: "d2", Fields: map[string]any{"created": "2020-01-01"}},
		})
		assert.NilError(t, err)
		return b
	}

	t.Run("NOW-7d resolves against compile time", func(t *testing.T) {
		q, err := Compile("created:[NOW-7d TO NOW]", nil, test_now)
		assert.NilError(t, err)

		b := batch(test_now.Add(-48 * time.Hour).Format(time.RFC3339))
		defer b.Close()

		m := NewMatcher(StrategySimple, 2)
		res, err := m.Match(context.Background(), b, map[string]*Query{"1": q})
		assert.NilError(t, err)
		assert.Equal(t, len(res["d1"]), 1)
		assert.Equal(t, len(res["d2"]), 0)
	})

	t.Run("recompile with a later now shifts the window", func(t *testing.T) {
		later := test_now.Add(30 * 24 * time.Hour)
		q, err := Compile("created:[NOW-7d TO NOW]", nil, later)
		assert.NilError(t, err)

		b := batch(test_now.Add(-48 * time.Hour).Format(time.RFC3339))
		defer b.Close()

		m := NewMatcher(StrategySimple, 2)
		res, err := m.Match(context.Background(), b, map[string]*Query{"1": q})
		assert.NilError(t, err)
		assert.Equal(t, len(res["d1"]), 0)
	})

	t.Run("open bounds", func(t *testing.T) {
		q, err := Compile("created:[* TO NOW]", nil, test_now)
		assert.NilError(t, err)

		b := batch("1999-05-02")
		defer b.Close()

		m := NewMatcher(StrategySimple, 2)
		res, err := m.Match(context.Background(), b, map[string]*Query{"1": q})
		assert.NilError(t, err)
		assert.Equal(t, len(res["d1"]), 1)
		assert.Equal(t, len(res["d2"]), 1)
	})
}
