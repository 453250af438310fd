package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// matches evaluates a filter against a document. All predicates must hold
// (the filter tree is conjunctive throughout).
func matches(f *query.Filter, doc *Document) bool {
	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		if !matchCondition(doc, field, cond) {
			return false
		}
	}
	for _, fc := range f.Conjunction() {
		if !matchCondition(doc, fc.Field, fc.Cond) {
			return false
		}
	}
	return true
}

func matchCondition(doc *Document, field string, cond query.Condition) bool {
	val, ok := resolveField(doc, field)
	if !ok {
		return false
	}

	switch c := cond.(type) {
	case *query.Literal:
		return equalValues(val, c.Value)
	case *query.Compare:
		return matchOp(val, query.OpEntry{Op: c.Op, Value: c.Value})
	case *query.Membership:
		for _, want := range c.Values {
			if equalValues(val, want) {
				return true
			}
		}
		return false
	case *query.Regex:
		return matchRegex(val, c.Pattern)
	case *query.Range, *query.Operators:
		for _, e := range query.EntriesOf(cond) {
			if !matchOp(val, e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func matchOp(actual interface{}, e query.OpEntry) bool {
	switch e.Op {
	case query.OpGt:
		return compareValues(actual, e.Value) > 0
	case query.OpGte:
		return compareValues(actual, e.Value) >= 0
	case query.OpLt:
		return compareValues(actual, e.Value) < 0
	case query.OpLte:
		return compareValues(actual, e.Value) <= 0
	case query.OpIn:
		values, ok := e.Value.([]interface{})
		if !ok {
			return false
		}
		for _, want := range values {
			if equalValues(actual, want) {
				return true
			}
		}
		return false
	case query.OpRegex:
		pat, ok := e.Value.(string)
		return ok && matchRegex(actual, pat)
	}
	return false
}

func matchRegex(actual interface{}, pattern string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprintf("%v", actual))
}

// resolveField walks a dot-path into the document. Bare names address the
// payload; "data."-prefixed paths do the same; _id and the timestamp fields
// address the envelope.
func resolveField(doc *Document, field string) (interface{}, bool) {
	switch field {
	case "_id", "id":
		return doc.ID, true
	case "created_at":
		return doc.CreatedAt, true
	case "updated_at":
		return doc.UpdatedAt, true
	}

	path := strings.TrimPrefix(field, "data.")
	var cur interface{} = doc.Data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// equalValues is loose equality: numbers compare numerically regardless of
// Go type (JSON decoding yields float64, coercion yields int), everything
// else falls back to string form.
func equalValues(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues returns -1, 0 or 1 ordering a relative to b. Times compare
// as instants, numbers numerically, anything else lexically.
func compareValues(a, b interface{}) int {
	ta, okA := toTime(a)
	tb, okB := toTime(b)
	if okA && okB {
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}

	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
