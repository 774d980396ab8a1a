package match

import (
	"fmt"
	"strconv"
	"time"

	"github.com/percodb/percodb/pkg"
)

// BatchBuildError reports a batch that could not be turned into a
// searchable form. It aborts that batch only.
type BatchBuildError struct {
	DocId string
	Err   error
}

func (e *BatchBuildError) Error() string {
	return fmt.Sprintf("failed to build batch at doc %q: %v", e.DocId, e.Err)
}

func (e *BatchBuildError) Unwrap() error { return e.Err }

// fieldValue is one document field value normalized once at batch build
// time, so every query evaluated against the batch reuses the parse work.
type fieldValue struct {
	str     string
	num     float64
	hasNum  bool
	t       time.Time
	hasTime bool
}

type batchDoc struct {
	id     string
	fields pkg.Map[string, []fieldValue]
}

// DocumentBatch is the ephemeral searchable form of one group of incoming
// documents. It lives for exactly one match run and must be closed on
// every exit path.
type DocumentBatch struct {
	docs   []*batchDoc
	closed bool
}

// NewBatch normalizes the documents into a batch. Construction is
// all-or-nothing: on failure anything built so far is released and the
// error wraps the offending document id.
func NewBatch(docs []Document) (*DocumentBatch, error) {
	b := &DocumentBatch{docs: make([]*batchDoc, 0, len(docs))}

	for _, doc := range docs {
		bd, err := buildDoc(doc)
		if err != nil {
			b.Close()
			return nil, &BatchBuildError{DocId: doc.Id, Err: err}
		}
		b.docs = append(b.docs, bd)
	}

	return b, nil
}

func buildDoc(doc Document) (*batchDoc, error) {
	if doc.Id == "" {
		return nil, fmt.Errorf("document has no id")
	}

	bd := &batchDoc{id: doc.Id, fields: pkg.Map[string, []fieldValue]{}}
	for name, value := range doc.Fields {
		values, err := normalizeValues(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		bd.fields.Set(name, values)
	}

	return bd, nil
}

func normalizeValues(value any) ([]fieldValue, error) {
	switch value := value.(type) {
	case []any:
		values := make([]fieldValue, 0, len(value))
		for _, v := range value {
			fv, err := normalizeScalar(v)
			if err != nil {
				return nil, err
			}
			values = append(values, fv)
		}
		return values, nil
	default:
		fv, err := normalizeScalar(value)
		if err != nil {
			return nil, err
		}
		return []fieldValue{fv}, nil
	}
}

func normalizeScalar(v any) (fieldValue, error) {
	var fv fieldValue

	switch v := v.(type) {
	case string:
		fv.str = v
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			fv.num = n
			fv.hasNum = true
		}
		if t, ok := parseDocTime(v); ok {
			fv.t = t
			fv.hasTime = true
		}
	case bool:
		fv.str = strconv.FormatBool(v)
	case time.Time:
		fv.str = v.Format(time.RFC3339)
		fv.t = v
		fv.hasTime = true
	case nil:
		return fv, fmt.Errorf("null value")
	default:
		n, ok := pkg.NumToFloat(v)
		if !ok {
			return fv, fmt.Errorf("unsupported value type %T", v)
		}
		fv.num = n
		fv.hasNum = true
		fv.str = strconv.FormatFloat(n, 'f', -1, 64)
	}

	return fv, nil
}

func parseDocTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (b *DocumentBatch) Size() int { return len(b.docs) }

// ResolveId maps an internal row number back to the document id.
func (b *DocumentBatch) ResolveId(row int) (string, bool) {
	if row < 0 || row >= len(b.docs) {
		return "", false
	}
	return b.docs[row].id, true
}

// Close releases the batch. Safe to call more than once.
func (b *DocumentBatch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.docs = nil
}
