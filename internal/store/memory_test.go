package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

func seedMemory(t *testing.T) (*Memory, []string) {
	t.Helper()
	m := NewMemory()
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 24 * time.Hour)
	}

	payloads := []map[string]interface{}{
		{"name": "alpha", "status": "active", "price": 10, "tags": map[string]interface{}{"color": "red"}},
		{"name": "bravo", "status": "closed", "price": 25.5},
		{"name": "charlie", "status": "active", "price": 40},
		{"name": "delta shirt", "status": "pending", "price": 5},
	}

	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		doc, err := m.Insert(context.Background(), p)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	return m, ids
}

func TestMemoryCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	doc, err := m.Insert(ctx, map[string]interface{}{"name": "widget"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if doc.ID == "" {
		t.Error("expected generated id")
	}
	if doc.CreatedAt.IsZero() || !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", doc.CreatedAt, doc.UpdatedAt)
	}

	got, err := m.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["name"] != "widget" {
		t.Errorf("data = %v", got.Data)
	}

	updated, err := m.Replace(ctx, doc.ID, map[string]interface{}{"name": "gadget"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.Data["name"] != "gadget" {
		t.Errorf("data after replace = %v", updated.Data)
	}
	if !updated.CreatedAt.Equal(doc.CreatedAt) {
		t.Error("replace must not touch created_at")
	}

	if err := m.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryFindLiteral(t *testing.T) {
	m, _ := seedMemory(t)
	f := query.NewFilter()
	f.Set("status", &query.Literal{Value: "active"})

	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("total = %d, items = %d, want 2", page.Total, len(page.Items))
	}
	for _, doc := range page.Items {
		if doc.Data["status"] != "active" {
			t.Errorf("unexpected hit: %v", doc.Data)
		}
	}
}

func TestMemoryFindComparisonNumericAcrossTypes(t *testing.T) {
	m, _ := seedMemory(t)
	// price values mix int and float; the comparison is numeric either way.
	f := query.NewFilter()
	f.Set("price", &query.Compare{Op: query.OpGt, Value: 20})

	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2 (25.5 and 40)", page.Total)
	}
}

func TestMemoryFindMembershipAndRegex(t *testing.T) {
	m, _ := seedMemory(t)

	f := query.NewFilter()
	f.Set("status", &query.Membership{Values: []interface{}{"closed", "pending"}})
	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Errorf("membership total = %d, want 2", page.Total)
	}

	f = query.NewFilter()
	f.Set("name", &query.Regex{Pattern: "SHIRT"})
	page, err = m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Errorf("regex total = %d, want 1 (match is case-insensitive)", page.Total)
	}
}

func TestMemoryFindDateRange(t *testing.T) {
	m, _ := seedMemory(t)
	// Docs were created on 2024-03-11 through 2024-03-14, one per day.
	f := query.NewFilter()
	f.Set("created_at", &query.Range{
		Gte: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Lt:  time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
	})

	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
}

func TestMemoryFindNestedPath(t *testing.T) {
	m, _ := seedMemory(t)
	for _, field := range []string{"tags.color", "data.tags.color"} {
		f := query.NewFilter()
		f.Set(field, &query.Literal{Value: "red"})
		page, err := m.Find(context.Background(), FindRequest{Filter: f})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 1 {
			t.Errorf("field %s: total = %d, want 1", field, page.Total)
		}
	}
}

func TestMemoryFindMissingFieldNeverMatches(t *testing.T) {
	m, _ := seedMemory(t)
	f := query.NewFilter()
	f.Set("nonexistent", &query.Compare{Op: query.OpGt, Value: 0})

	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 {
		t.Errorf("total = %d, want 0", page.Total)
	}
}

func TestMemoryFindConjunction(t *testing.T) {
	m, _ := seedMemory(t)
	f := query.NewFilter()
	f.Merge("status", &query.Literal{Value: "active"})
	f.Merge("status", &query.Literal{Value: "closed"})

	page, err := m.Find(context.Background(), FindRequest{Filter: f})
	if err != nil {
		t.Fatal(err)
	}
	// No document is both active and closed.
	if page.Total != 0 {
		t.Errorf("total = %d, want 0", page.Total)
	}
}

func TestMemoryFindSortLimitOffset(t *testing.T) {
	m, _ := seedMemory(t)

	page, err := m.Find(context.Background(), FindRequest{
		Sort:  &query.Sort{Field: "price", Desc: true},
		Limit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 4 {
		t.Errorf("total = %d, want 4 (pre-pagination count)", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.Items[0].Data["name"] != "charlie" || page.Items[1].Data["name"] != "bravo" {
		t.Errorf("order = %v, %v", page.Items[0].Data["name"], page.Items[1].Data["name"])
	}

	page, err = m.Find(context.Background(), FindRequest{
		Sort:   &query.Sort{Field: "price", Desc: true},
		Limit:  2,
		Offset: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Data["name"] != "delta shirt" {
		t.Errorf("offset page = %v", page.Items)
	}

	page, err = m.Find(context.Background(), FindRequest{Offset: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 || page.Total != 4 {
		t.Errorf("past-the-end offset: items = %d, total = %d", len(page.Items), page.Total)
	}
}

func TestMemoryFindProjection(t *testing.T) {
	m, _ := seedMemory(t)

	page, err := m.Find(context.Background(), FindRequest{
		Projection: []string{"name", "_id"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, doc := range page.Items {
		if doc.ID == "" {
			t.Error("projection must keep the id")
		}
		if _, ok := doc.Data["name"]; !ok {
			t.Errorf("projected data missing name: %v", doc.Data)
		}
		if _, ok := doc.Data["status"]; ok {
			t.Errorf("projected data leaked status: %v", doc.Data)
		}
	}
}

func TestMemoryFindProjectionDoesNotMutateStored(t *testing.T) {
	m, ids := seedMemory(t)

	if _, err := m.Find(context.Background(), FindRequest{Projection: []string{"name"}}); err != nil {
		t.Fatal(err)
	}
	doc, err := m.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Data["status"]; !ok {
		t.Error("stored document lost fields after projected find")
	}
}
