package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// PostgresConfig holds Postgres connection configuration.
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrationspath"`
}

// Postgres stores documents in an items table with a jsonb payload column.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a connection pool, verifies connectivity, and runs
// migrations when a migrations path is configured.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	// URL-encode password to handle special characters (/, +, =, etc.)
	encodedPassword := url.QueryEscape(cfg.Password)
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, encodedPassword, cfg.Host, cfg.Port, cfg.Name, sslMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MigrationsPath != "" {
		m, err := migrate.New("file://"+cfg.MigrationsPath, dsn)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Find(ctx context.Context, req FindRequest) (*Page, error) {
	where, args, err := pgWhere(req.Filter)
	if err != nil {
		return nil, err
	}

	var total int64
	countSQL := "SELECT count(*) FROM items WHERE 1=1" + where
	if err := p.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT id::text, data, created_at, updated_at FROM items WHERE 1=1")
	sb.WriteString(where)
	if req.Sort != nil {
		orderExpr, err := pgSortExpr(req.Sort.Field)
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
	i := len(args) + 1
	if req.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", i))
		args = append(args, req.Limit)
		i++
	}
	if req.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", i))
		args = append(args, req.Offset)
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find query: %w", err)
	}
	defer rows.Close()

	items := []Document{}
	for rows.Next() {
		doc, err := scanPgDocument(rows)
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

func (p *Postgres) Get(ctx context.Context, id string) (*Document, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT id::text, data, created_at, updated_at FROM items WHERE id = $1", id)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (p *Postgres) Insert(ctx context.Context, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	row := p.pool.QueryRow(ctx,
		"INSERT INTO items (data) VALUES ($1) RETURNING id::text, data, created_at, updated_at",
		payload)
	return scanPgDocument(row)
}

func (p *Postgres) Replace(ctx context.Context, id string, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	row := p.pool.QueryRow(ctx,
		"UPDATE items SET data = $1, updated_at = now() WHERE id = $2 RETURNING id::text, data, created_at, updated_at",
		payload, id)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM items WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var payload []byte
	if err := row.Scan(&doc.ID, &payload, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal(payload, &doc.Data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &doc, nil
}

// identRe whitelists field paths before they are spliced into a jsonb path
// expression.
var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// pgWhere renders a filter as " AND ..." clauses with $n placeholders,
// starting at $1.
func pgWhere(f *query.Filter) (string, []interface{}, error) {
	if f == nil || f.IsEmpty() {
		return "", nil, nil
	}

	var sb strings.Builder
	var args []interface{}

	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		if err := appendPgCond(&sb, &args, field, cond); err != nil {
			return "", nil, err
		}
	}
	for _, fc := range f.Conjunction() {
		if err := appendPgCond(&sb, &args, fc.Field, fc.Cond); err != nil {
			return "", nil, err
		}
	}

	return sb.String(), args, nil
}

func appendPgCond(sb *strings.Builder, args *[]interface{}, field string, cond query.Condition) error {
	if lit, ok := cond.(*query.Literal); ok {
		numeric := isNumeric(lit.Value)
		expr, err := pgFieldExpr(field, numeric)
		if err != nil {
			return err
		}
		*args = append(*args, pgArg(field, lit.Value))
		fmt.Fprintf(sb, " AND %s = $%d", expr, len(*args))
		return nil
	}

	for _, e := range query.EntriesOf(cond) {
		if err := appendPgOp(sb, args, field, e); err != nil {
			return err
		}
	}
	return nil
}

func appendPgOp(sb *strings.Builder, args *[]interface{}, field string, e query.OpEntry) error {
	switch e.Op {
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		expr, err := pgFieldExpr(field, isNumeric(e.Value))
		if err != nil {
			return err
		}
		*args = append(*args, pgArg(field, e.Value))
		fmt.Fprintf(sb, " AND %s %s $%d", expr, pgCompareOp(e.Op), len(*args))
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
		expr, err := pgFieldExpr(field, allNumeric)
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
			*args = append(*args, pgArg(field, v))
			fmt.Fprintf(sb, "$%d", len(*args))
		}
		sb.WriteString(")")
		return nil

	case query.OpRegex:
		expr, err := pgFieldExpr(field, false)
		if err != nil {
			return err
		}
		*args = append(*args, e.Value)
		fmt.Fprintf(sb, " AND %s ~* $%d", expr, len(*args))
		return nil

	default:
		return fmt.Errorf("unsupported operator %s", e.Op)
	}
}

func pgCompareOp(op query.Op) string {
	switch op {
	case query.OpGt:
		return ">"
	case query.OpGte:
		return ">="
	case query.OpLt:
		return "<"
	default:
		return "<="
	}
}

// pgFieldExpr maps a field path to a SQL expression. The identity and
// timestamp fields address table columns, everything else extracts text from
// the jsonb payload, cast to numeric when the compared value is a number.
func pgFieldExpr(field string, numeric bool) (string, error) {
	switch field {
	case "_id", "id":
		return "id::text", nil
	case "created_at", "updated_at":
		return field, nil
	}

	path := strings.TrimPrefix(field, "data.")
	if !identRe.MatchString(path) {
		return "", fmt.Errorf("unsupported field %q", field)
	}
	expr := "data #>> '{" + strings.ReplaceAll(path, ".", ",") + "}'"
	if numeric {
		expr = "(" + expr + ")::numeric"
	}
	return expr, nil
}

func pgSortExpr(field string) (string, error) {
	switch field {
	case "_id", "id":
		return "id", nil
	case "created_at", "updated_at":
		return field, nil
	}
	return pgFieldExpr(field, false)
}

// pgArg prepares a filter value for binding. Timestamp columns take times
// (or parseable strings) as-is; jsonb text extraction compares against the
// string form of non-numeric values.
func pgArg(field string, v interface{}) interface{} {
	switch field {
	case "created_at", "updated_at":
		if t, ok := toTime(v); ok {
			return t
		}
		return v
	}
	if isNumeric(v) {
		return v
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func isNumeric(v interface{}) bool {
	if _, ok := v.(time.Time); ok {
		return false
	}
	_, ok := toFloat(v)
	return ok
}
