package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// SQLiteConfig holds SQLite configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SQLite stores documents in a single-file database with the payload in a
// JSON text column, queried through json_extract. Timestamps are stored as
// RFC 3339 text, which also sorts correctly.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file and initializes the schema.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	path := cfg.Path
	if path == "" {
		path = "./data/insight.db"
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	s.db.Close()
}

func (s *SQLite) Find(ctx context.Context, req FindRequest) (*Page, error) {
	where, args, err := sqliteWhere(req.Filter)
	if err != nil {
		return nil, err
	}

	var total int64
	countSQL := "SELECT count(*) FROM items WHERE 1=1" + where
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, data, created_at, updated_at FROM items WHERE 1=1")
	sb.WriteString(where)
	if req.Sort != nil {
		orderExpr, err := sqliteFieldExpr(req.Sort.Field, false)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderExpr)
		if req.Sort.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
		if req.Sort.Field != "id" && req.Sort.Field != "_id" {
			sb.WriteString(", id ASC")
		}
	}
	if req.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
		if req.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, req.Offset)
		}
	} else if req.Offset > 0 {
		// SQLite requires LIMIT before OFFSET.
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, req.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find query: %w", err)
	}
	defer rows.Close()

	items := []Document{}
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		doc.Data = projectData(doc.Data, req.Projection)
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find rows: %w", err)
	}

	return &Page{Items: items, Total: total}, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, data, created_at, updated_at FROM items WHERE id = ?", id)
	doc, err := scanSQLiteDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQLite) Insert(ctx context.Context, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now().UTC()
	doc := Document{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO items (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)",
		doc.ID, string(payload), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return &doc, nil
}

func (s *SQLite) Replace(ctx context.Context, id string, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET data = ?, updated_at = ? WHERE id = ?",
		string(payload), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteDocument(scan func(...interface{}) error) (*Document, error) {
	var doc Document
	var payload, createdAt, updatedAt string
	if err := scan(&doc.ID, &payload, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &doc.Data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &doc, nil
}

// sqliteWhere renders a filter as " AND ..." clauses with ? placeholders.
func sqliteWhere(f *query.Filter) (string, []interface{}, error) {
	if f == nil || f.IsEmpty() {
		return "", nil, nil
	}

	var sb strings.Builder
	var args []interface{}

	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		if err := appendSQLiteCond(&sb, &args, field, cond); err != nil {
			return "", nil, err
		}
	}
	for _, fc := range f.Conjunction() {
		if err := appendSQLiteCond(&sb, &args, fc.Field, fc.Cond); err != nil {
			return "", nil, err
		}
	}

	return sb.String(), args, nil
}

func appendSQLiteCond(sb *strings.Builder, args *[]interface{}, field string, cond query.Condition) error {
	if lit, ok := cond.(*query.Literal); ok {
		expr, err := sqliteFieldExpr(field, isNumeric(lit.Value))
		if err != nil {
			return err
		}
		sb.WriteString(" AND ")
		sb.WriteString(expr)
		sb.WriteString(" = ?")
		*args = append(*args, sqliteArg(lit.Value))
		return nil
	}

	for _, e := range query.EntriesOf(cond) {
		if err := appendSQLiteOp(sb, args, field, e); err != nil {
			return err
		}
	}
	return nil
}

func appendSQLiteOp(sb *strings.Builder, args *[]interface{}, field string, e query.OpEntry) error {
	switch e.Op {
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		expr, err := sqliteFieldExpr(field, isNumeric(e.Value))
		if err != nil {
			return err
		}
		sb.WriteString(" AND ")
		sb.WriteString(expr)
		sb.WriteString(" " + pgCompareOp(e.Op) + " ?")
		*args = append(*args, sqliteArg(e.Value))
		return nil

	case query.OpIn:
		values, ok := e.Value.([]interface{})
		if !ok {
			return fmt.Errorf("value for %s must be a list", e.Op)
		}
		if len(values) == 0 {
			sb.WriteString(" AND 1=0")
			return nil
		}
		allNumeric := true
		for _, v := range values {
			if !isNumeric(v) {
				allNumeric = false
				break
			}
		}
		expr, err := sqliteFieldExpr(field, allNumeric)
		if err != nil {
			return err
		}
		sb.WriteString(" AND ")
		sb.WriteString(expr)
		sb.WriteString(" IN (")
		for k, v := range values {
			if k > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('?')
			*args = append(*args, sqliteArg(v))
		}
		sb.WriteString(")")
		return nil

	case query.OpRegex:
		// SQLite has no regex function by default; the pattern is escaped
		// literal text, so an instr substring check is equivalent.
		pat, ok := e.Value.(string)
		if !ok {
			return fmt.Errorf("value for %s must be a string", e.Op)
		}
		expr, err := sqliteFieldExpr(field, false)
		if err != nil {
			return err
		}
		sb.WriteString(" AND instr(lower(")
		sb.WriteString(expr)
		sb.WriteString("), lower(?)) > 0")
		*args = append(*args, unescapeRegex(pat))
		return nil

	default:
		return fmt.Errorf("unsupported operator %s", e.Op)
	}
}

func sqliteFieldExpr(field string, numeric bool) (string, error) {
	switch field {
	case "_id", "id":
		return "id", nil
	case "created_at", "updated_at":
		return field, nil
	}

	path := strings.TrimPrefix(field, "data.")
	if !identRe.MatchString(path) {
		return "", fmt.Errorf("unsupported field %q", field)
	}
	expr := "json_extract(data, '$." + path + "')"
	if numeric {
		expr = "CAST(" + expr + " AS NUMERIC)"
	}
	return expr, nil
}

func sqliteArg(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	if isNumeric(v) {
		return v
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// unescapeRegex undoes regexp.QuoteMeta for backends that match substrings
// directly instead of compiling the pattern.
func unescapeRegex(pattern string) string {
	var sb strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	if escaped {
		sb.WriteByte('\\')
	}
	return sb.String()
}
