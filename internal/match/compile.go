package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CompileError reports a query that the compiler rejected. It is always
// localized to one record: callers skip the record and keep going.
type CompileError struct {
	Raw    string
	Clause string
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %q at clause %q: %s", e.Raw, e.Clause, e.Reason)
}

// MetadataDefaultField names the metadata key whose value is used as the
// field for bare terms written without an explicit "field:" prefix.
const MetadataDefaultField = "df"

type clauseKind int

const (
	clauseEquals clauseKind = iota
	clauseNumRange
	clauseTimeRange
	clauseContains
	clauseStartsWith
	clauseEndsWith
	clauseExists
)

type clause struct {
	field string
	kind  clauseKind

	term   string
	num    float64
	hasNum bool

	lo, hi   float64
	tlo, thi time.Time
}

// Query is the compiled, immutable form of a raw query string. A Query is
// a conjunction: every clause has to hold for a document to match.
type Query struct {
	clauses []clause
}

func (q *Query) ClauseCount() int { return len(q.clauses) }

// Compile parses raw query text into an executable Query. Relative-time
// terms (NOW, NOW-7d, ...) are resolved against now at compile time, which
// is why compiled queries go stale and need a periodic refresh.
//
// Supported clause syntax, whitespace-separated, AND-combined:
//
//	field:term            exact match (numeric when both sides are numbers)
//	field:[a TO b]        inclusive range; numeric, date or NOW-relative; * = open
//	field:*sub*           contains
//	field:pre*            starts with
//	field:*suf            ends with
//	field:*               field presence
//
// A leading "q=" prefix is tolerated for compatibility with query files
// written for the upstream search engine. Metadata key "df" supplies the
// field for bare terms without a "field:" prefix.
func Compile(raw string, metadata map[string]string, now time.Time) (*Query, error) {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "q="))
	if text == "" {
		return nil, &CompileError{Raw: raw, Reason: "empty query"}
	}

	tokens, err := tokenize(text)
	if err != nil {
		return nil, &CompileError{Raw: raw, Reason: err.Error()}
	}

	q := &Query{clauses: make([]clause, 0, len(tokens))}
	for _, tok := range tokens {
		c, err := parseClause(tok, metadata)
		if err != nil {
			return nil, &CompileError{Raw: raw, Clause: tok, Reason: err.Error()}
		}
		if c.kind == clauseNumRange || c.kind == clauseTimeRange {
			if err := resolveRange(&c, tok, now); err != nil {
				return nil, &CompileError{Raw: raw, Clause: tok, Reason: err.Error()}
			}
		}
		q.clauses = append(q.clauses, c)
	}

	return q, nil
}

// tokenize splits on whitespace but keeps bracketed ranges together, so
// "price:[100 TO 200]" stays one token.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	depth := 0

	for _, r := range text {
		switch {
		case r == '[':
			depth++
			cur.WriteRune(r)
		case r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ']'")
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && depth == 0:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '['")
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no clauses")
	}
	return tokens, nil
}

func parseClause(tok string, metadata map[string]string) (clause, error) {
	field, term := splitFieldTerm(tok, metadata)
	if field == "" {
		return clause{}, fmt.Errorf("no field and no %q metadata for bare term", MetadataDefaultField)
	}
	if term == "" {
		return clause{}, fmt.Errorf("empty term")
	}

	c := clause{field: field}

	switch {
	case strings.HasPrefix(term, "[") && strings.HasSuffix(term, "]"):
		// range; bounds resolved by resolveRange
		c.kind = clauseNumRange
		c.term = term
	case term == "*":
		c.kind = clauseExists
	case strings.HasPrefix(term, "*") && strings.HasSuffix(term, "*") && len(term) > 2:
		c.kind = clauseContains
		c.term = term[1 : len(term)-1]
	case strings.HasSuffix(term, "*") && len(term) > 1:
		c.kind = clauseStartsWith
		c.term = term[:len(term)-1]
	case strings.HasPrefix(term, "*") && len(term) > 1:
		c.kind = clauseEndsWith
		c.term = term[1:]
	default:
		c.kind = clauseEquals
		c.term = term
		if n, err := strconv.ParseFloat(term, 64); err == nil {
			c.num = n
			c.hasNum = true
		}
	}

	return c, nil
}

func splitFieldTerm(tok string, metadata map[string]string) (string, string) {
	i := strings.Index(tok, ":")
	// a colon inside a range bound ("[2024-01-01T00:00:00Z TO *]") must not
	// be mistaken for the field separator
	if i < 0 || strings.Index(tok, "[") >= 0 && strings.Index(tok, "[") < i {
		return metadata[MetadataDefaultField], tok
	}
	return tok[:i], tok[i+1:]
}

func resolveRange(c *clause, tok string, now time.Time) error {
	body := strings.TrimSuffix(strings.TrimPrefix(c.term, "["), "]")
	parts := strings.Split(body, " TO ")
	if len(parts) != 2 {
		return fmt.Errorf("range must be [lo TO hi]")
	}
	lo := strings.TrimSpace(parts[0])
	hi := strings.TrimSpace(parts[1])

	loNum, loNumOk := parseNumBound(lo, math.Inf(-1))
	hiNum, hiNumOk := parseNumBound(hi, math.Inf(1))
	if loNumOk && hiNumOk {
		c.kind = clauseNumRange
		c.lo, c.hi = loNum, hiNum
		c.term = ""
		return nil
	}

	loT, loTimeOk := parseTimeBound(lo, now, time.Time{})
	hiT, hiTimeOk := parseTimeBound(hi, now, farFuture)
	if loTimeOk && hiTimeOk {
		c.kind = clauseTimeRange
		c.tlo, c.thi = loT, hiT
		c.term = ""
		return nil
	}

	return fmt.Errorf("range bounds are neither numeric nor temporal")
}

var farFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func parseNumBound(s string, open float64) (float64, bool) {
	if s == "*" {
		return open, true
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

func parseTimeBound(s string, now time.Time, open time.Time) (time.Time, bool) {
	if s == "*" {
		return open, true
	}
	if strings.HasPrefix(s, "NOW") {
		return resolveNow(s, now)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// resolveNow handles NOW, NOW-7d, NOW+36h and friends. Units: d, h, m, s.
func resolveNow(s string, now time.Time) (time.Time, bool) {
	rest := strings.TrimPrefix(s, "NOW")
	if rest == "" {
		return now, true
	}
	if len(rest) < 3 {
		return time.Time{}, false
	}

	sign := 1
	switch rest[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return time.Time{}, false
	}

	unit := rest[len(rest)-1]
	n, err := strconv.Atoi(rest[1 : len(rest)-1])
	if err != nil {
		return time.Time{}, false
	}

	var d time.Duration
	switch unit {
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'm':
		d = time.Duration(n) * time.Minute
	case 's':
		d = time.Duration(n) * time.Second
	default:
		return time.Time{}, false
	}

	return now.Add(time.Duration(sign) * d), true
}
