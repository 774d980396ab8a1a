// Package percolator wires the registry, the matching pipeline and the
// dispatcher into one engine: documents go in, matched results fan out to
// the configured sinks, while queries can be mutated at any time.
package percolator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	sorted "github.com/tobshub/go-sortedmap"

	"github.com/percodb/percodb/internal/config"
	"github.com/percodb/percodb/internal/dispatch"
	"github.com/percodb/percodb/internal/iox"
	"github.com/percodb/percodb/internal/match"
	"github.com/percodb/percodb/internal/metrics"
	"github.com/percodb/percodb/internal/registry"
	"github.com/percodb/percodb/internal/schedule"
	"github.com/percodb/percodb/pkg"
)

// ErrClosed is returned for documents or commands arriving after Close.
var ErrClosed = errors.New("engine is closed")

// shutdownGrace bounds how long Close waits for in-flight match runs and
// the scheduler's in-flight refresh.
const shutdownGrace = 30 * time.Second

type bufferedDoc struct {
	seq uint64
	doc match.Document
}

type Engine struct {
	registry   *registry.Registry
	matcher    *match.Matcher
	dispatcher *dispatch.Dispatcher
	source     iox.QuerySource
	sinks      []iox.ResultSink
	scheduler  *schedule.DailyScheduler
	watcher    *iox.Watcher

	maxDocs       int
	flushInterval time.Duration

	mu       sync.Mutex
	buffer   *sorted.SortedMap[uint64, bufferedDoc]
	buffered int
	seq      uint64
	closed   bool

	runs     sync.WaitGroup
	stopTick chan struct{}
}

func newBuffer() *sorted.SortedMap[uint64, bufferedDoc] {
	return sorted.New[uint64, bufferedDoc](0, func(a, b bufferedDoc) bool {
		return a.seq < b.seq
	})
}

// New assembles an engine from configuration: source and sinks are built
// through the iox kind registry, the corpus is loaded, the daily refresh
// is scheduled and the flush ticker starts. The returned engine owns the
// source and sinks and closes them exactly once.
func New(cfg config.Config) (*Engine, error) {
	strategy, err := match.StrategyFromString(cfg.Match.Strategy)
	if err != nil {
		return nil, err
	}

	source, err := iox.NewSource(cfg.Source.Kind, iox.Options(cfg.Source.Options))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query source")
	}

	sinks := make([]iox.ResultSink, 0, len(cfg.Sinks))
	closeAll := func() {
		source.Close()
		for _, s := range sinks {
			s.Close()
		}
	}
	for _, sc := range cfg.Sinks {
		sink, err := iox.NewSink(sc.Kind, iox.Options(sc.Options))
		if err != nil {
			closeAll()
			return nil, errors.Wrapf(err, "failed to build %s sink", sc.Kind)
		}
		sinks = append(sinks, sink)
	}

	e := &Engine{
		registry:      registry.New(nil, cfg.Metadata),
		matcher:       match.NewMatcher(strategy, cfg.Match.Workers),
		source:        source,
		sinks:         sinks,
		maxDocs:       cfg.Batch.MaxDocs,
		flushInterval: cfg.Batch.FlushInterval(),
		buffer:        newBuffer(),
		stopTick:      make(chan struct{}),
	}
	e.dispatcher = dispatch.New(sinks)

	if _, _, err := e.registry.ReloadAll(context.Background(), e.source); err != nil {
		closeAll()
		return nil, errors.Wrap(err, "initial query load failed")
	}
	metrics.RegistrySize.Set(float64(e.registry.Len()))

	if cfg.Source.Watch {
		fileSource, ok := source.(*iox.FileSource)
		if !ok {
			closeAll()
			return nil, errors.New("source watch requires the file source")
		}
		e.watcher, err = iox.WatchFile(fileSource.Path(), 0, func() {
			if err := e.Reread(context.Background()); err != nil {
				pkg.ErrorLog("watcher-triggered reread failed:", err)
			}
		})
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	e.scheduler = schedule.New(func() { e.Refresh() },
		cfg.Refresh.Hour, cfg.Refresh.Min, cfg.Refresh.Sec, shutdownGrace)
	e.scheduler.Start()

	go e.tickLoop()

	return e, nil
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

// Ingest buffers documents for the next batch and returns immediately;
// matching happens asynchronously. The flush threshold may cut a batch
// right here, on the caller's goroutine, but the match run itself never
// blocks the caller.
func (e *Engine) Ingest(docs []match.Document) error {
	if len(docs) == 0 {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	for _, doc := range docs {
		e.seq++
		e.buffer.Insert(e.seq, bufferedDoc{seq: e.seq, doc: doc})
		e.buffered++
	}
	metrics.DocsIngested.Add(float64(len(docs)))

	var flushed []match.Document
	if e.buffered >= e.maxDocs {
		flushed = e.drainLocked()
	}
	e.mu.Unlock()

	e.launch(flushed)
	return nil
}

// drainLocked empties the buffer in arrival order. Caller holds e.mu.
func (e *Engine) drainLocked() []match.Document {
	if e.buffered == 0 {
		return nil
	}

	docs := make([]match.Document, 0, e.buffered)
	if iter, err := e.buffer.IterCh(); err == nil {
		for rec := range iter.Records() {
			docs = append(docs, rec.Val.doc)
		}
	}

	e.buffer = newBuffer()
	e.buffered = 0
	return docs
}

func (e *Engine) tickLoop() {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.mu.Lock()
			flushed := e.drainLocked()
			e.mu.Unlock()
			e.launch(flushed)
		case <-e.stopTick:
			return
		}
	}
}

// launch dispatches one asynchronous match run for the flushed documents.
func (e *Engine) launch(docs []match.Document) {
	if len(docs) == 0 {
		return
	}

	e.runs.Add(1)
	go func() {
		defer e.runs.Done()
		e.runBatch(docs)
	}()
}

func (e *Engine) runBatch(docs []match.Document) {
	runId := uuid.NewString()[:8]
	start := time.Now()
	pkg.DebugLog("batch", runId, "started with", len(docs), "docs")

	batch, err := match.NewBatch(docs)
	if err != nil {
		pkg.ErrorLog("batch", runId, "build failed:", err)
		metrics.BatchesFailed.Inc()
		return
	}
	defer batch.Close()

	// field cache for projection after matching completes
	fields := make(map[string]match.Document, len(docs))
	for _, doc := range docs {
		fields[doc.Id] = doc
	}

	snapshot := e.registry.Snapshot()
	queries := make(map[string]*match.Query, len(snapshot))
	for id, rec := range snapshot {
		queries[id] = rec.Compiled()
	}

	results, err := e.matcher.Match(context.Background(), batch, queries)
	if err != nil {
		pkg.ErrorLog("batch", runId, "match failed:", err)
		metrics.BatchesFailed.Inc()
		return
	}

	total := 0
	for _, docMatches := range results {
		total += len(docMatches)
	}

	_, failed := e.dispatcher.Dispatch(context.Background(), results, fields, snapshot)

	metrics.BatchesMatched.Inc()
	metrics.MatchesFound.Add(float64(total))
	metrics.SinkErrors.Add(float64(failed))
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	pkg.InfoLog("batch", runId, "matched", batch.Size(), "docs against",
		len(queries), "queries:", total, "matches in", time.Since(start))
}

// Update fetches the query definition by id and name from the source,
// compiles it and inserts or replaces it in the registry.
func (e *Engine) Update(ctx context.Context, id, name string) error {
	raw, err := e.source.ReadOne(ctx, id, name)
	if err != nil {
		return err
	}
	if err := e.registry.AddOrUpdate(raw); err != nil {
		return err
	}
	metrics.RegistrySize.Set(float64(e.registry.Len()))
	return nil
}

// Delete removes the query. Returns registry.ErrNotFound when absent.
func (e *Engine) Delete(id string) error {
	if err := e.registry.Delete(id); err != nil {
		return err
	}
	metrics.RegistrySize.Set(float64(e.registry.Len()))
	return nil
}

// Refresh recompiles the whole corpus in place, re-resolving
// relative-time terms.
func (e *Engine) Refresh() (refreshed, failed int) {
	return e.registry.RefreshAll()
}

// Reread reloads the full corpus from the source.
func (e *Engine) Reread(ctx context.Context) error {
	if _, _, err := e.registry.ReloadAll(ctx, e.source); err != nil {
		return err
	}
	metrics.RegistrySize.Set(float64(e.registry.Len()))
	return nil
}

// Close shuts the engine down: stop accepting documents, stop the
// scheduler and watcher, flush what is buffered, wait out in-flight match
// runs up to a bounded grace period, then release sinks and source
// exactly once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	remainder := e.drainLocked()
	e.mu.Unlock()

	close(e.stopTick)
	if e.watcher != nil {
		e.watcher.Close()
	}
	e.scheduler.Stop()

	e.launch(remainder)

	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		pkg.ErrorLog("match runs still in flight after", shutdownGrace, "- abandoning them")
	}

	var firstErr error
	if err := e.source.Close(); err != nil {
		firstErr = err
	}
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	pkg.InfoLog("engine closed")
	return firstErr
}
