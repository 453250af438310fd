package query

import (
	"bytes"
	"fmt"
)

// ConjunctionKey is the reserved filter key holding predicates that could not
// be merged in place because the same field appeared with conflicting
// literal values.
const ConjunctionKey = "$and"

// FieldCondition pairs a field path with a condition, used inside the
// conjunction list.
type FieldCondition struct {
	Field string
	Cond  Condition
}

// Filter is a conjunctive predicate tree: an ordered mapping of field path to
// condition, plus an optional conjunction list under the reserved $and key.
//
// Invariant: once the filter is elevated to conjunction form, all field
// predicates live inside the list and the top-level mapping stays empty.
type Filter struct {
	keys  []string
	conds map[string]Condition
	and   []FieldCondition
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{conds: make(map[string]Condition)}
}

// IsEmpty reports whether the filter holds no predicates at all.
func (f *Filter) IsEmpty() bool {
	return len(f.keys) == 0 && len(f.and) == 0
}

// Fields returns the top-level field paths in insertion order.
func (f *Filter) Fields() []string {
	return f.keys
}

// Get returns the condition for a top-level field.
func (f *Filter) Get(field string) (Condition, bool) {
	c, ok := f.conds[field]
	return c, ok
}

// Conjunction returns the elevated predicate list, nil when the filter is
// still in plain form.
func (f *Filter) Conjunction() []FieldCondition {
	return f.and
}

// Set inserts or replaces a top-level predicate without conflict handling.
// Used when building filters from already-structured input.
func (f *Filter) Set(field string, cond Condition) {
	if _, ok := f.conds[field]; !ok {
		f.keys = append(f.keys, field)
	}
	f.conds[field] = cond
}

// Merge folds one field predicate into the filter.
//
// Rules:
//   - new field: insert directly
//   - both sides operator maps: key-union, incoming wins per operator
//   - either side a plain literal: elevate every accumulated predicate into
//     the conjunction list alongside the incoming one, so nothing is dropped
//
// Once elevated, further predicates append to the list.
func (f *Filter) Merge(field string, cond Condition) {
	if f.and != nil {
		f.and = append(f.and, FieldCondition{field, cond})
		return
	}

	existing, ok := f.conds[field]
	if !ok {
		f.Set(field, cond)
		return
	}

	if operatorShaped(existing) && operatorShaped(cond) {
		f.conds[field] = &Operators{Entries: mergeEntries(existing.entries(), cond.entries())}
		return
	}

	// Literal conflict: elevate, preserving insertion order.
	elevated := make([]FieldCondition, 0, len(f.keys)+1)
	for _, k := range f.keys {
		elevated = append(elevated, FieldCondition{k, f.conds[k]})
	}
	elevated = append(elevated, FieldCondition{field, cond})
	f.keys = nil
	f.conds = make(map[string]Condition)
	f.and = elevated
}

// MarshalJSON renders the Mongo-style map form, preserving insertion order so
// identical inputs yield byte-identical output.
func (f *Filter) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, k := range f.keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%q:", k)
		if err := marshalCondition(&buf, f.conds[k]); err != nil {
			return nil, err
		}
	}
	if f.and != nil {
		if !first {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:[", ConjunctionKey)
		for i, fc := range f.and {
			if i > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(&buf, "{%q:", fc.Field)
			if err := marshalCondition(&buf, fc.Cond); err != nil {
				return nil, err
			}
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
