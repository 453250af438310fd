package store

import (
	"net/url"
	"testing"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

func TestPgWhereLiteralAndComparison(t *testing.T) {
	f := query.NewFilter()
	f.Set("status", &query.Literal{Value: "active"})
	f.Set("price", &query.Compare{Op: query.OpGt, Value: 20})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND data #>> '{status}' = $1 AND (data #>> '{price}')::numeric > $2`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 || args[0] != "active" || args[1] != 20 {
		t.Errorf("args = %v", args)
	}
}

func TestPgWhereColumns(t *testing.T) {
	ts := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	f := query.NewFilter()
	f.Set("created_at", &query.Range{Gte: ts})
	f.Set("_id", &query.Literal{Value: "abc"})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND created_at >= $1 AND id::text = $2`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if !args[0].(time.Time).Equal(ts) {
		t.Errorf("args[0] = %v, want the time value itself", args[0])
	}
}

func TestPgWhereMembership(t *testing.T) {
	f := query.NewFilter()
	f.Set("color", &query.Membership{Values: []interface{}{"red", "blue"}})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND data #>> '{color}' IN ($1,$2)`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestPgWhereEmptyMembershipMatchesNothing(t *testing.T) {
	f := query.NewFilter()
	f.Set("color", &query.Membership{Values: nil})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	if where != " AND 1=0" || len(args) != 0 {
		t.Errorf("where = %q, args = %v", where, args)
	}
}

func TestPgWhereRegexAndNestedPath(t *testing.T) {
	f := query.NewFilter()
	f.Set("tags.color", &query.Regex{Pattern: "red"})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND data #>> '{tags,color}' ~* $1`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if args[0] != "red" {
		t.Errorf("args = %v", args)
	}
}

func TestPgWhereConjunction(t *testing.T) {
	f := query.NewFilter()
	f.Merge("status", &query.Literal{Value: "active"})
	f.Merge("status", &query.Literal{Value: "closed"})

	where, args, err := pgWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND data #>> '{status}' = $1 AND data #>> '{status}' = $2`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestPgWhereRejectsBadFieldPath(t *testing.T) {
	f := query.NewFilter()
	f.Set("bad'field", &query.Literal{Value: 1})

	if _, _, err := pgWhere(f); err == nil {
		t.Error("expected error for unquotable field path")
	}
}

func TestPgWhereEmptyFilter(t *testing.T) {
	where, args, err := pgWhere(nil)
	if err != nil || where != "" || args != nil {
		t.Errorf("nil filter: %q %v %v", where, args, err)
	}
	where, args, err = pgWhere(query.NewFilter())
	if err != nil || where != "" || args != nil {
		t.Errorf("empty filter: %q %v %v", where, args, err)
	}
}

func TestSQLiteWhereLiteralAndComparison(t *testing.T) {
	f := query.NewFilter()
	f.Set("status", &query.Literal{Value: "active"})
	f.Set("price", &query.Compare{Op: query.OpLte, Value: 9.5})

	where, args, err := sqliteWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND json_extract(data, '$.status') = ? AND CAST(json_extract(data, '$.price') AS NUMERIC) <= ?`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 || args[0] != "active" || args[1] != 9.5 {
		t.Errorf("args = %v", args)
	}
}

func TestSQLiteWhereTimeFormatting(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	f := query.NewFilter()
	f.Set("created_at", &query.Range{Gte: ts})

	where, args, err := sqliteWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND created_at >= ?`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if args[0] != "2024-03-15T10:00:00Z" {
		t.Errorf("args[0] = %v, want RFC3339 text", args[0])
	}
}

func TestSQLiteWhereRegexBecomesSubstring(t *testing.T) {
	f := query.NewFilter()
	f.Set("name", &query.Regex{Pattern: `blue\.shirt`})

	where, args, err := sqliteWhere(f)
	if err != nil {
		t.Fatal(err)
	}
	want := ` AND instr(lower(json_extract(data, '$.name')), lower(?)) > 0`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if args[0] != "blue.shirt" {
		t.Errorf("args[0] = %v, want the unescaped text", args[0])
	}
}

func TestUnescapeRegex(t *testing.T) {
	cases := map[string]string{
		`plain`:      "plain",
		`a\.b`:       "a.b",
		`\(x\)\+`:    "(x)+",
		`blue shirt`: "blue shirt",
	}
	for in, want := range cases {
		if got := unescapeRegex(in); got != want {
			t.Errorf("unescapeRegex(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddRESTFilter(t *testing.T) {
	f := query.NewFilter()
	f.Set("status", &query.Literal{Value: "active"})
	f.Set("price", &query.Compare{Op: query.OpGte, Value: 10})
	f.Set("color", &query.Membership{Values: []interface{}{"red", "blue"}})
	f.Set("name", &query.Regex{Pattern: "shirt"})
	f.Set("tags.color", &query.Literal{Value: "red"})

	params := url.Values{}
	if err := addRESTFilter(params, f); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"data->>status":      "eq.active",
		"data->>price":       "gte.10",
		"data->>color":       "in.(red,blue)",
		"data->>name":        "ilike.*shirt*",
		"data->tags->>color": "eq.red",
	}
	for key, want := range checks {
		if got := params.Get(key); got != want {
			t.Errorf("param %s = %q, want %q", key, got, want)
		}
	}
}

func TestAddRESTFilterConjunctionRepeatsParam(t *testing.T) {
	f := query.NewFilter()
	f.Merge("status", &query.Literal{Value: "active"})
	f.Merge("status", &query.Literal{Value: "closed"})

	params := url.Values{}
	if err := addRESTFilter(params, f); err != nil {
		t.Fatal(err)
	}
	got := params["data->>status"]
	if len(got) != 2 || got[0] != "eq.active" || got[1] != "eq.closed" {
		t.Errorf("params = %v", got)
	}
}
