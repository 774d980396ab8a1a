package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gotest.tools/assert"

	"github.com/percodb/percodb/internal/config"
	"github.com/percodb/percodb/internal/percolator"
	"github.com/percodb/percodb/internal/registry"
	. "github.com/percodb/percodb/internal/server"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	queryPath := filepath.Join(dir, "queries.json")
	raw, err := json.Marshal([]registry.RawQuery{
		{Id: "q1", Name: "alerts", Raw: "kind:alert"},
	})
	assert.NilError(t, err)
	assert.NilError(t, os.WriteFile(queryPath, raw, 0o644))

	outPath := filepath.Join(dir, "out.jsonl")
	cfg, err := config.Parse([]byte(`
batch:
  flush_interval_ms: 100
source:
  kind: file
  options:
    path: ` + queryPath + `
sinks:
  - kind: file
    options:
      path: ` + outPath + `
`))
	assert.NilError(t, err)

	engine, err := percolator.New(cfg)
	assert.NilError(t, err)
	t.Cleanup(func() { engine.Close() })

	return New(engine), outPath
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func waitForSink(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if raw, err := os.ReadFile(path); err == nil && len(raw) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("sink %s never received results", path)
}

func TestDocumentsEndpoint(t *testing.T) {
	t.Run("accepts a batch and matches it", func(t *testing.T) {
		s, outPath := newTestServer(t)

		w := postJSON(t, s.Handler(), "/documents",
			`{"documents": [{"id": "d1", "fields": {"kind": "alert"}}]}`)
		assert.Equal(t, w.Code, http.StatusAccepted)

		var resp map[string]any
		assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, resp["accepted"], float64(1))

		waitForSink(t, outPath)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/documents", `{"documents": []}`)
		assert.Equal(t, w.Code, http.StatusBadRequest)
	})

	t.Run("rejects a document without an id", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/documents",
			`{"documents": [{"fields": {"kind": "alert"}}]}`)
		assert.Equal(t, w.Code, http.StatusBadRequest)
		assert.Assert(t, strings.Contains(w.Body.String(), "missing an id"))
	})
}

func TestAdminEndpoint(t *testing.T) {
	t.Run("unknown command lists the vocabulary", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "EXPLODE"}`)
		assert.Equal(t, w.Code, http.StatusBadRequest)
		assert.Assert(t, strings.Contains(w.Body.String(), "UPDATE, DELETE, REFRESH, REREAD"))
	})

	t.Run("commands are case-insensitive", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "refresh"}`)
		assert.Equal(t, w.Code, http.StatusOK)
	})

	t.Run("update requires id and name", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "UPDATE", "query_id": "q1"}`)
		assert.Equal(t, w.Code, http.StatusBadRequest)
		assert.Assert(t, strings.Contains(w.Body.String(), "query_name"))
	})

	t.Run("update pulls the definition from the source", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries",
			`{"command": "update", "query_id": "q1", "query_name": "alerts"}`)
		assert.Equal(t, w.Code, http.StatusOK)
		assert.Assert(t, strings.Contains(w.Body.String(), "q1 updated"))
	})

	t.Run("delete of an unknown query is a 404", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "DELETE", "query_id": "ghost"}`)
		assert.Equal(t, w.Code, http.StatusNotFound)
	})

	t.Run("delete then list", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "DELETE", "query_id": "q1"}`)
		assert.Equal(t, w.Code, http.StatusOK)

		req := httptest.NewRequest(http.MethodGet, "/queries", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, rec.Code, http.StatusOK)

		var resp struct {
			Size    int              `json:"size"`
			Queries []map[string]any `json:"queries"`
		}
		assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, resp.Size, 0)
	})

	t.Run("reread reports the corpus size", func(t *testing.T) {
		s, _ := newTestServer(t)
		w := postJSON(t, s.Handler(), "/queries", `{"command": "REREAD"}`)
		assert.Equal(t, w.Code, http.StatusOK)

		var resp map[string]any
		assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, resp["size"], float64(1))
	})
}

func TestListQueries(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/queries", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, w.Code, http.StatusOK)

	var resp struct {
		Size    int              `json:"size"`
		Queries []map[string]any `json:"queries"`
	}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, resp.Size, 1)
	assert.Equal(t, resp.Queries[0]["query_id"], "q1")
	assert.Equal(t, resp.Queries[0]["query"], "kind:alert")
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Body.String(), "ok")
}

func TestWsIngestion(t *testing.T) {
	s, outPath := newTestServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)
	defer conn.Close()

	t.Run("documents stream in and get acknowledged", func(t *testing.T) {
		err := conn.WriteJSON(map[string]any{
			"documents": []map[string]any{
				{"id": "w1", "fields": map[string]any{"kind": "alert"}},
			},
		})
		assert.NilError(t, err)

		var reply struct {
			Status   int `json:"status"`
			Accepted int `json:"accepted"`
		}
		assert.NilError(t, conn.ReadJSON(&reply))
		assert.Equal(t, reply.Status, http.StatusAccepted)
		assert.Equal(t, reply.Accepted, 1)

		waitForSink(t, outPath)
	})

	t.Run("malformed message gets an error reply, connection survives", func(t *testing.T) {
		assert.NilError(t, conn.WriteMessage(websocket.TextMessage, []byte("{{{")))

		var reply struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		}
		assert.NilError(t, conn.ReadJSON(&reply))
		assert.Equal(t, reply.Status, http.StatusBadRequest)

		// connection still usable afterwards
		assert.NilError(t, conn.WriteJSON(map[string]any{
			"documents": []map[string]any{
				{"id": "w2", "fields": map[string]any{"kind": "info"}},
			},
		}))
		assert.NilError(t, conn.ReadJSON(&reply))
		assert.Equal(t, reply.Status, http.StatusAccepted)
	})
}
