package query

import (
	"fmt"
	"sort"
)

// FromMap converts an unstructured map query (decoded JSON, e.g.
// {"age": {"$gt": 25}, "status": "active"}) into a Filter.
//
// Map iteration order is not stable in Go, so top-level keys are sorted to
// keep the resulting filter deterministic.
func FromMap(m map[string]interface{}) (*Filter, error) {
	f := NewFilter()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := m[key]
		if key == ConjunctionKey {
			list, ok := val.([]interface{})
			if !ok {
				return nil, fmt.Errorf("value for %s must be a list", key)
			}
			for _, item := range list {
				subMap, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("element of %s must be an object", key)
				}
				sub, err := FromMap(subMap)
				if err != nil {
					return nil, err
				}
				for _, sk := range sub.Fields() {
					c, _ := sub.Get(sk)
					f.and = append(f.and, FieldCondition{sk, c})
				}
				f.and = append(f.and, sub.and...)
			}
			continue
		}

		cond, err := condFromValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, cond)
	}

	return f, nil
}

func condFromValue(val interface{}) (Condition, error) {
	valMap, ok := val.(map[string]interface{})
	if !ok {
		// Implicit equality.
		return &Literal{Value: val}, nil
	}

	ops := make([]string, 0, len(valMap))
	for op := range valMap {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	entries := make([]OpEntry, 0, len(ops))
	for _, op := range ops {
		opVal := valMap[op]
		switch Op(op) {
		case OpGt, OpGte, OpLt, OpLte:
			entries = append(entries, OpEntry{Op(op), opVal})
		case OpIn:
			list, ok := opVal.([]interface{})
			if !ok {
				return nil, fmt.Errorf("value for %s must be a list", op)
			}
			entries = append(entries, OpEntry{OpIn, list})
		case OpRegex:
			pat, ok := opVal.(string)
			if !ok {
				return nil, fmt.Errorf("value for %s must be a string", op)
			}
			entries = append(entries, OpEntry{OpRegex, pat})
		case "$options":
			// Accepted alongside $regex; matching is case-insensitive
			// either way.
		default:
			return nil, fmt.Errorf("unknown operator: %s", op)
		}
	}

	switch len(entries) {
	case 0:
		return nil, fmt.Errorf("empty operator object")
	case 1:
		return singleEntryCondition(entries[0]), nil
	default:
		return &Operators{Entries: entries}, nil
	}
}

func singleEntryCondition(e OpEntry) Condition {
	switch e.Op {
	case OpIn:
		return &Membership{Values: e.Value.([]interface{})}
	case OpRegex:
		return &Regex{Pattern: e.Value.(string)}
	default:
		return &Compare{Op: e.Op, Value: e.Value}
	}
}
