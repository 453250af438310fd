package nlq

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// The rules are mutually non-exclusive: each one scans the whole phrase on
// its own, and most use only their first match.
var (
	reToday     = regexp.MustCompile(`(?i)\btoday\b`)
	reYesterday = regexp.MustCompile(`(?i)\byesterday\b`)
	reLastN     = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+(day|week|month)s?\b`)

	reCompare    = regexp.MustCompile(`\b([A-Za-z0-9_][A-Za-z0-9_.]*)\s*(>=|<=|>|<)\s*(\S+)`)
	reEquality   = regexp.MustCompile(`(?i)\b([A-Za-z0-9_][A-Za-z0-9_.]*)\s+(?:equals|is)\s+("[^"]*"|'[^']*'|\S+)`)
	reColon      = regexp.MustCompile(`\b([A-Za-z0-9_][A-Za-z0-9_.]*)\s*:\s*(\S+)`)
	reMembership = regexp.MustCompile(`(?i)\b([A-Za-z0-9_][A-Za-z0-9_.]*)\s+in\s+(\S+(?:\s*,\s*\S+)*)`)
	reContains   = regexp.MustCompile(`(?i)\b([A-Za-z0-9_][A-Za-z0-9_.]*)\s+contains\s+("[^"]+"|\S+)`)

	reSort   = regexp.MustCompile(`(?i)\bsort\s+by\s+([A-Za-z0-9_][A-Za-z0-9_.]*)(?:\s+(asc|desc))?`)
	reTop    = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
	reLimit  = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)
	reOffset = regexp.MustCompile(`(?i)\boffset\s+(\d+)\b`)
	reFields = regexp.MustCompile(`(?i)\b(?:fields|select)\s+([A-Za-z0-9_.]+(?:\s*,\s*[A-Za-z0-9_.]+)*)`)
)

// fragment is one extracted field predicate, prior to merging.
type fragment struct {
	field string
	cond  query.Condition
}

// extractPredicates runs the field-predicate rules in their fixed order:
// date range, comparison, equality, category/membership, contains.
func extractPredicates(p string, now time.Time) []fragment {
	var out []fragment

	if cond, ok := matchDateRange(p, now); ok {
		out = append(out, fragment{CreatedAtField, cond})
	}
	if f, cond, ok := matchComparison(p); ok {
		out = append(out, fragment{f, cond})
	}
	out = append(out, matchEqualities(p)...)
	if f, cond, ok := matchCategory(p); ok {
		out = append(out, fragment{f, cond})
	}
	if f, cond, ok := matchContains(p); ok {
		out = append(out, fragment{f, cond})
	}

	return out
}

// matchDateRange recognizes three mutually exclusive temporal shapes on the
// created_at field. "today" and "yesterday" are half-open day intervals;
// "last N days|weeks|months" is a lower bound only, with a month counted as
// exactly 30 days. The 30-day month is a deliberate simplification, not
// calendar arithmetic.
func matchDateRange(p string, now time.Time) (query.Condition, bool) {
	midnight := midnightUTC(now)

	if reToday.MatchString(p) {
		return &query.Range{Gte: midnight, Lt: midnight.Add(24 * time.Hour)}, true
	}
	if reYesterday.MatchString(p) {
		return &query.Range{Gte: midnight.Add(-24 * time.Hour), Lt: midnight}, true
	}
	if m := reLastN.FindStringSubmatch(p); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, false
		}
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		case "month":
			unit = 30 * 24 * time.Hour
		}
		return &query.Range{Gte: now.UTC().Add(-time.Duration(n) * unit)}, true
	}

	return nil, false
}

func midnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// matchComparison recognizes "<field> <op> <value>" with op one of
// > >= < <=. Only the first match in the phrase is used.
func matchComparison(p string) (string, query.Condition, bool) {
	m := reCompare.FindStringSubmatch(p)
	if m == nil {
		return "", nil, false
	}
	var op query.Op
	switch m[2] {
	case ">":
		op = query.OpGt
	case ">=":
		op = query.OpGte
	case "<":
		op = query.OpLt
	case "<=":
		op = query.OpLte
	}
	return m[1], &query.Compare{Op: op, Value: coerce(m[3])}, true
}

// matchEqualities recognizes "<field> equals <value>" and "<field> is
// <value>". Surrounding quotes are stripped before numeric coercion. All
// matches are extracted: a field repeated with conflicting values must reach
// the merger so it can elevate to a conjunction instead of dropping one.
func matchEqualities(p string) []fragment {
	ms := reEquality.FindAllStringSubmatch(p, -1)
	if ms == nil {
		return nil
	}
	out := make([]fragment, 0, len(ms))
	for _, m := range ms {
		out = append(out, fragment{m[1], &query.Literal{Value: coerce(stripQuotes(m[2]))}})
	}
	return out
}

// matchCategory recognizes two alternative forms, first match wins:
// "<field>: <value>" (equality, value kept verbatim) and
// "<field> in <csv>" (membership, each element coerced).
func matchCategory(p string) (string, query.Condition, bool) {
	if m := reColon.FindStringSubmatch(p); m != nil {
		return m[1], &query.Literal{Value: m[2]}, true
	}
	if m := reMembership.FindStringSubmatch(p); m != nil {
		parts := strings.Split(m[2], ",")
		values := make([]interface{}, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			values = append(values, coerce(part))
		}
		if len(values) == 0 {
			return "", nil, false
		}
		return m[1], &query.Membership{Values: values}, true
	}
	return "", nil, false
}

// matchContains recognizes "<field> contains <text>" and produces a
// case-insensitive substring predicate. The text is escaped so regex special
// characters match literally. Multi-word text can be double-quoted.
func matchContains(p string) (string, query.Condition, bool) {
	m := reContains.FindStringSubmatch(p)
	if m == nil {
		return "", nil, false
	}
	return m[1], &query.Regex{Pattern: regexp.QuoteMeta(stripQuotes(m[2]))}, true
}

// matchSort recognizes "sort by <field> [asc|desc]", ascending by default.
func matchSort(p string) (*query.Sort, bool) {
	m := reSort.FindStringSubmatch(p)
	if m == nil {
		return nil, false
	}
	return &query.Sort{Field: m[1], Desc: strings.EqualFold(m[2], "desc")}, true
}

// matchLimit recognizes "top <N>" or "limit <N>", in that precedence order.
func matchLimit(p string) (int, bool) {
	if m := reTop.FindStringSubmatch(p); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := reLimit.FindStringSubmatch(p); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// matchOffset recognizes "offset <N>".
func matchOffset(p string) (int, bool) {
	if m := reOffset.FindStringSubmatch(p); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// matchFields recognizes "fields <csv>" or "select <csv>", returning the
// field names in the order given, duplicates included.
func matchFields(p string) ([]string, bool) {
	m := reFields.FindStringSubmatch(p)
	if m == nil {
		return nil, false
	}
	parts := strings.Split(m[1], ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			fields = append(fields, part)
		}
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

// coerce applies the numeric coercion policy: a value containing "." is
// parsed as a float, anything else as an int, and on failure the raw string
// is kept. The order matters so "1.0" and "10" coerce differently from
// "abc".
func coerce(s string) interface{} {
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
