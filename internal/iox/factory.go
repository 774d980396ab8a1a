package iox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/percodb/percodb/pkg"
)

// Options is the flat key/value configuration block for one source or
// sink, as it appears in the config file.
type Options map[string]string

func (o Options) Get(key string) string { return o[key] }

func (o Options) Require(key string) (string, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing required option %q", key)
	}
	return v, nil
}

// Sources and sinks are constructed through a typed kind registry instead
// of dynamic class loading: every supported kind maps to a factory
// function, resolved once at configuration time.

type SourceFactory func(opts Options) (QuerySource, error)
type SinkFactory func(opts Options) (ResultSink, error)

var source_factories = pkg.Map[string, SourceFactory]{
	"file":   NewFileSource,
	"sqlite": NewSqliteSource,
}

var sink_factories = pkg.Map[string, SinkFactory]{
	"file":   NewFileSink,
	"http":   NewHttpSink,
	"badger": NewBadgerSink,
}

func legalKinds[V any](m pkg.Map[string, V]) string {
	kinds := m.Keys()
	sort.Strings(kinds)
	return strings.Join(kinds, ", ")
}

// NewSource resolves a source kind case-insensitively and builds it.
func NewSource(kind string, opts Options) (QuerySource, error) {
	factory, ok := source_factories[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q, legal kinds: %s", kind, legalKinds(source_factories))
	}
	return factory(opts)
}

// NewSink resolves a sink kind case-insensitively and builds it.
func NewSink(kind string, opts Options) (ResultSink, error) {
	factory, ok := sink_factories[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown sink kind %q, legal kinds: %s", kind, legalKinds(sink_factories))
	}
	return factory(opts)
}
