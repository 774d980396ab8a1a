package iox

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileSink appends one JSON line per batch to a file, keyed by query id.
// Meant for testing and integration setups. Options: "path", "fields".
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	fields FieldProjection
}

func NewFileSink(opts Options) (ResultSink, error) {
	path, err := opts.Require("path")
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open results file %s", path)
	}

	return &FileSink{
		f:      f,
		w:      bufio.NewWriter(f),
		fields: ParseProjection(opts.Get("fields")),
	}, nil
}

func (s *FileSink) Write(ctx context.Context, results GroupedResults) error {
	line, err := json.Marshal(results)
	if err != nil {
		return errors.Wrap(err, "failed to encode results")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "failed to write results")
	}
	return s.w.Flush()
}

func (s *FileSink) Fields() FieldProjection { return s.fields }

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
