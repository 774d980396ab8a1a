package iox

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerSink persists results into an embedded badger store, keyed
// "<query_id>/<doc_id>". This fills the role of writing matches into a
// secondary store that other processes can query back. Options: "dir",
// "fields".
type BadgerSink struct {
	db     *badger.DB
	fields FieldProjection
}

func NewBadgerSink(opts Options) (ResultSink, error) {
	dir, err := opts.Require("dir")
	if err != nil {
		return nil, err
	}

	db_opts := badger.DefaultOptions(dir)
	db_opts.Logger = nil

	db, err := badger.Open(db_opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger store at %s", dir)
	}

	return &BadgerSink{db: db, fields: ParseProjection(opts.Get("fields"))}, nil
}

func (s *BadgerSink) Write(ctx context.Context, results GroupedResults) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for queryId, docs := range results {
			for i, doc := range docs {
				docId, _ := doc["doc_id"].(string)
				if docId == "" {
					docId = fmt.Sprintf("row-%d", i)
				}

				value, err := json.Marshal(doc)
				if err != nil {
					return errors.Wrapf(err, "failed to encode result for query %s", queryId)
				}
				key := []byte(queryId + "/" + docId)
				if err := txn.Set(key, value); err != nil {
					return errors.Wrapf(err, "failed to store result %s", key)
				}
			}
		}
		return nil
	})
}

func (s *BadgerSink) Fields() FieldProjection { return s.fields }

func (s *BadgerSink) Close() error { return s.db.Close() }
