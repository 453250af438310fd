// Package store provides the storage adapters behind the data and NLQ
// endpoints. One interface, several backends: an in-process memory store, a
// Postgres JSONB table, a SQLite JSON table, and a PostgREST-style HTTP
// backend. The adapter to use is selected by configuration.
//
// Adapters translate the query descriptor's operator vocabulary (implicit
// equality, $gt, $gte, $lt, $lte, $in, $regex, $and) into their native query
// language. An operator outside that set is a bug in the caller, reported as
// an error.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// ErrNotFound is returned when no item exists for the requested id.
var ErrNotFound = errors.New("item not found")

// Document is a stored item: a generated identity, an arbitrary JSON
// payload, and server-side timestamps.
type Document struct {
	ID        string                 `json:"_id"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Page is one page of query results plus the unpaginated total.
type Page struct {
	Items []Document
	Total int64
}

// FindRequest carries an executable query: the filter plus the caller's
// resolved projection, sort and pagination. Defaults are applied by the
// caller, not here.
type FindRequest struct {
	Filter     *query.Filter
	Projection []string
	Sort       *query.Sort
	Limit      int
	Offset     int
}

// Store is the storage adapter interface used by the HTTP handlers.
type Store interface {
	Ping(ctx context.Context) error
	Find(ctx context.Context, req FindRequest) (*Page, error)
	Get(ctx context.Context, id string) (*Document, error)
	Insert(ctx context.Context, data map[string]interface{}) (*Document, error)
	Replace(ctx context.Context, id string, data map[string]interface{}) (*Document, error)
	Delete(ctx context.Context, id string) error
	Close()
}

// Config selects and configures the storage backend.
type Config struct {
	Driver   string         `mapstructure:"driver"` // memory, postgres, sqlite, rest
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	REST     RESTConfig     `mapstructure:"rest"`
}

// Open creates the store named by cfg.Driver. An empty driver defaults to
// the memory store.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		return NewPostgres(cfg.Postgres)
	case "sqlite":
		return NewSQLite(cfg.SQLite)
	case "rest":
		return NewREST(cfg.REST)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// projectData returns a copy of data limited to the projected keys. Entries
// may be bare keys or "data."-prefixed paths; identity and timestamp fields
// are handled by the document envelope and skipped here. When nothing in the
// projection names a payload key, the payload is returned whole, matching
// the permissive behavior of the list endpoint.
func projectData(data map[string]interface{}, projection []string) map[string]interface{} {
	if len(projection) == 0 {
		return data
	}
	selected := make(map[string]interface{})
	any := false
	for _, f := range projection {
		switch f {
		case "_id", "id", "created_at", "updated_at":
			continue
		}
		key := f
		if len(f) > 5 && f[:5] == "data." {
			key = f[5:]
		}
		any = true
		if v, ok := data[key]; ok {
			selected[key] = v
		}
	}
	if !any || len(selected) == 0 {
		return data
	}
	return selected
}
