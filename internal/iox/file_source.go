package iox

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/percodb/percodb/internal/registry"
	"github.com/percodb/percodb/pkg"
)

// FileSource reads query definitions from a JSON file holding an array of
// objects:
//
//	[{"query_id": "1", "query_name": "test", "query": "price:[100 TO 200]"}]
//
// The file is re-read on every call, so an edit followed by a REREAD
// command (or a watcher-triggered reread) picks up changes without a
// restart.
type FileSource struct {
	path string
}

func NewFileSource(opts Options) (QuerySource, error) {
	path, err := opts.Require("path")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "query file %s is not readable", path)
	}
	return &FileSource{path: path}, nil
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) ReadAll(ctx context.Context) ([]RawQuery, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read query file %s", s.path)
	}

	var queries []RawQuery
	if err := json.Unmarshal(raw, &queries); err != nil {
		return nil, errors.Wrapf(err, "query file %s is not a JSON query array", s.path)
	}
	return queries, nil
}

func (s *FileSource) ReadOne(ctx context.Context, id, name string) (RawQuery, error) {
	queries, err := s.ReadAll(ctx)
	if err != nil {
		return RawQuery{}, err
	}

	found := pkg.Filter(queries, func(q RawQuery) bool { return q.Id == id })
	if len(found) != 1 {
		return RawQuery{}, errors.Wrapf(registry.ErrNotFound,
			"%d records share query id %s in %s", len(found), id, s.path)
	}

	q := found[0]
	if name != "" {
		q.Name = name
	}
	return q, nil
}

func (s *FileSource) Close() error { return nil }
