package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

func TestRESTFind(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Header.Get("apikey") != "secret" {
			t.Errorf("missing apikey header")
		}
		w.Header().Set("Content-Range", "0-1/37")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[
			{"id":"a1","data":{"name":"alpha","status":"active"},"created_at":"2024-03-15T10:00:00Z","updated_at":"2024-03-15T10:00:00Z"},
			{"id":"a2","data":{"name":"bravo","status":"active"},"created_at":"2024-03-15T11:00:00Z","updated_at":"2024-03-15T11:00:00Z"}
		]`))
	}))
	defer srv.Close()

	st, err := NewREST(RESTConfig{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	f := query.NewFilter()
	f.Set("status", &query.Literal{Value: "active"})

	page, err := st.Find(context.Background(), FindRequest{
		Filter:     f,
		Sort:       &query.Sort{Field: "created_at", Desc: true},
		Limit:      2,
		Projection: []string{"name"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if page.Total != 37 {
		t.Errorf("total = %d, want 37 from Content-Range", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if _, ok := page.Items[0].Data["status"]; ok {
		t.Errorf("projection leaked status: %v", page.Items[0].Data)
	}
	if page.Items[0].Data["name"] != "alpha" {
		t.Errorf("items[0] = %v", page.Items[0].Data)
	}

	params := mustParseQuery(t, gotQuery)
	if params.Get("data->>status") != "eq.active" {
		t.Errorf("filter param = %q", params.Get("data->>status"))
	}
	if params.Get("order") != "created_at.desc" {
		t.Errorf("order param = %q", params.Get("order"))
	}
	if params.Get("limit") != "2" {
		t.Errorf("limit param = %q", params.Get("limit"))
	}
}

func mustParseQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query %q: %v", raw, err)
	}
	return v
}

func TestRESTGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	st, err := NewREST(RESTConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRESTInsert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"n1","data":{"name":"new"},"created_at":"2024-03-15T10:00:00Z","updated_at":"2024-03-15T10:00:00Z"}]`))
	}))
	defer srv.Close()

	st, err := NewREST(RESTConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := st.Insert(context.Background(), map[string]interface{}{"name": "new"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != "n1" || doc.Data["name"] != "new" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestRESTRequiresBaseURL(t *testing.T) {
	if _, err := NewREST(RESTConfig{}); err == nil {
		t.Error("expected error for missing base URL")
	}
}
