package match

import "strings"

// Hit records the field value span responsible for a match, reported under
// the highlighting strategy.
type Hit struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// eval tests the query against one normalized document. With highlight set
// it also collects the spans that satisfied each clause. A multi-valued
// field matches a clause when any one of its values does.
func (q *Query) eval(doc *batchDoc, highlight bool) (bool, []Hit) {
	var hits []Hit

	for i := range q.clauses {
		c := &q.clauses[i]
		values, ok := doc.fields[c.field]
		if !ok || len(values) == 0 {
			return false, nil
		}

		matched := false
		for vi := range values {
			hit, ok := c.evalValue(&values[vi])
			if !ok {
				continue
			}
			matched = true
			if highlight {
				hit.Field = c.field
				hits = append(hits, hit)
			}
			break
		}
		if !matched {
			return false, nil
		}
	}

	return true, hits
}

func (c *clause) evalValue(v *fieldValue) (Hit, bool) {
	switch c.kind {
	case clauseExists:
		return Hit{Value: v.str, End: len(v.str)}, true

	case clauseEquals:
		if c.hasNum && v.hasNum {
			if c.num == v.num {
				return Hit{Value: v.str, End: len(v.str)}, true
			}
			return Hit{}, false
		}
		if c.term == v.str {
			return Hit{Value: v.str, End: len(v.str)}, true
		}
		return Hit{}, false

	case clauseNumRange:
		if v.hasNum && v.num >= c.lo && v.num <= c.hi {
			return Hit{Value: v.str, End: len(v.str)}, true
		}
		return Hit{}, false

	case clauseTimeRange:
		if v.hasTime && !v.t.Before(c.tlo) && !v.t.After(c.thi) {
			return Hit{Value: v.str, End: len(v.str)}, true
		}
		return Hit{}, false

	case clauseContains:
		if i := strings.Index(v.str, c.term); i >= 0 {
			return Hit{Value: v.str, Start: i, End: i + len(c.term)}, true
		}
		return Hit{}, false

	case clauseStartsWith:
		if strings.HasPrefix(v.str, c.term) {
			return Hit{Value: v.str, End: len(c.term)}, true
		}
		return Hit{}, false

	case clauseEndsWith:
		if strings.HasSuffix(v.str, c.term) {
			return Hit{Value: v.str, Start: len(v.str) - len(c.term), End: len(v.str)}, true
		}
		return Hit{}, false
	}

	return Hit{}, false
}
