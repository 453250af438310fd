// Package nlq implements the rule-based natural language query translator.
//
// Short English phrases (e.g. "status equals active last 7 days sort by
// created_at desc top 5") are scanned by an ordered set of independent
// pattern rules and deterministically converted into a query.Descriptor:
// a conjunctive filter tree plus optional projection, sort, limit and offset.
//
// There is no language understanding here on purpose: the rules are plain
// regular expressions, parsing is a single pass, and the same phrase with the
// same reference time always yields an identical descriptor. Unrecognized
// text is silently ignored, so a partially understood phrase degrades to a
// more permissive filter instead of failing.
package nlq

import (
	"strings"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// IdentityField is the primary-key field always included in projections.
const IdentityField = "_id"

// CreatedAtField is the timestamp field targeted by the date-range rule.
const CreatedAtField = "created_at"

// Parse converts a natural language phrase into a query descriptor.
//
// The reference instant now anchors relative date expressions ("today",
// "last 7 days") and is injected so results are reproducible in tests. Parse
// is pure and safe for concurrent use.
func Parse(phrase string, now time.Time) *query.Descriptor {
	p := strings.TrimSpace(phrase)
	d := query.NewDescriptor()

	// Field predicates, folded in fixed rule order. The order decides which
	// predicates the merger sees first, and therefore which stay top-level
	// when a literal collision forces conjunction elevation.
	for _, frag := range extractPredicates(p, now) {
		d.Filter.Merge(frag.field, frag.cond)
	}

	if s, ok := matchSort(p); ok {
		d.Sort = s
	}
	if n, ok := matchLimit(p); ok {
		d.Limit = &n
	}
	if n, ok := matchOffset(p); ok {
		d.Offset = &n
	}
	if fields, ok := matchFields(p); ok {
		d.Projection = withIdentity(fields)
	}

	return d
}

// withIdentity appends the identity field to a projection unless the user
// already named it. Order and duplicates of the user's fields are preserved.
func withIdentity(fields []string) []string {
	for _, f := range fields {
		if f == IdentityField {
			return fields
		}
	}
	return append(fields, IdentityField)
}
