// Package query defines the structured query descriptor produced by the NLQ
// translator and consumed by the storage adapters.
//
// A filter is a tree of typed conditions keyed by field path. Conditions use
// the MongoDB operator vocabulary ($gt, $gte, $lt, $lte, $in, $regex, $and)
// when serialized, which is also the wire form accepted by the /data list
// endpoint and echoed back by /nlq/query.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Op represents a comparison operator (e.g., $gt, $in).
type Op string

const (
	OpGt    Op = "$gt"
	OpGte   Op = "$gte"
	OpLt    Op = "$lt"
	OpLte   Op = "$lte"
	OpIn    Op = "$in"
	OpRegex Op = "$regex"
)

// Condition is the common interface for all predicate nodes.
type Condition interface {
	// Marker method to ensure type safety.
	isCondition()

	// entries returns the condition in operator-entry form, used by the
	// merge algorithm and by JSON serialization. Literal has no entries.
	entries() []OpEntry
}

// OpEntry is a single operator/value pair inside an operator-shaped condition.
type OpEntry struct {
	Op    Op
	Value interface{}
}

// Literal is a plain equality predicate ({field: value}).
type Literal struct {
	Value interface{}
}

func (c *Literal) isCondition()       {}
func (c *Literal) entries() []OpEntry { return nil }

// Compare is a single comparison predicate ({field: {$gt: value}}).
type Compare struct {
	Op    Op // one of OpGt, OpGte, OpLt, OpLte
	Value interface{}
}

func (c *Compare) isCondition()       {}
func (c *Compare) entries() []OpEntry { return []OpEntry{{c.Op, c.Value}} }

// Membership is an IN predicate ({field: {$in: [...]}}).
type Membership struct {
	Values []interface{}
}

func (c *Membership) isCondition() {}
func (c *Membership) entries() []OpEntry {
	return []OpEntry{{OpIn, c.Values}}
}

// Regex is a case-insensitive substring predicate. Pattern is stored with
// special characters already escaped so the text matches literally.
type Regex struct {
	Pattern string
}

func (c *Regex) isCondition() {}
func (c *Regex) entries() []OpEntry {
	return []OpEntry{{OpRegex, c.Pattern}}
}

// Range is a bounded predicate, produced by the date-range recognizer
// ({created_at: {$gte: ..., $lt: ...}}). Unset bounds are nil.
type Range struct {
	Gte interface{}
	Gt  interface{}
	Lt  interface{}
	Lte interface{}
}

func (c *Range) isCondition() {}
func (c *Range) entries() []OpEntry {
	out := make([]OpEntry, 0, 4)
	if c.Gte != nil {
		out = append(out, OpEntry{OpGte, c.Gte})
	}
	if c.Gt != nil {
		out = append(out, OpEntry{OpGt, c.Gt})
	}
	if c.Lt != nil {
		out = append(out, OpEntry{OpLt, c.Lt})
	}
	if c.Lte != nil {
		out = append(out, OpEntry{OpLte, c.Lte})
	}
	return out
}

// Operators is an operator map that does not reduce to a single kind. It is
// produced by the merge algorithm when two operator-shaped conditions collide
// on the same field (e.g. a date range plus a comparison).
type Operators struct {
	Entries []OpEntry
}

func (c *Operators) isCondition()       {}
func (c *Operators) entries() []OpEntry { return c.Entries }

// EntriesOf returns the operator-entry view of a condition, in serialization
// order. Literals have none. Storage adapters use this to translate
// conditions without switching on every concrete kind.
func EntriesOf(c Condition) []OpEntry {
	return c.entries()
}

// operatorShaped reports whether a condition is an operator map for merge
// purposes. Literals are not; everything else is.
func operatorShaped(c Condition) bool {
	_, ok := c.(*Literal)
	return !ok
}

// mergeEntries key-unions two operator maps. Existing entries keep their
// position, incoming values overwrite on operator collision, new operators
// append in incoming order.
func mergeEntries(existing, incoming []OpEntry) []OpEntry {
	out := make([]OpEntry, len(existing))
	copy(out, existing)
	for _, in := range incoming {
		replaced := false
		for i := range out {
			if out[i].Op == in.Op {
				out[i].Value = in.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, in)
		}
	}
	return out
}

// marshalCondition writes the Mongo-style JSON form of a condition.
// Operator entries are written in insertion order so the output is stable.
func marshalCondition(buf *bytes.Buffer, c Condition) error {
	if lit, ok := c.(*Literal); ok {
		b, err := json.Marshal(lit.Value)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	entries := c.entries()
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, "%q:", string(e.Op))
		b, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		buf.Write(b)
		if e.Op == OpRegex {
			buf.WriteString(`,"$options":"i"`)
		}
	}
	buf.WriteByte('}')
	return nil
}
