package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/query"
)

// RESTConfig holds configuration for the PostgREST-style HTTP backend.
type RESTConfig struct {
	BaseURL string `mapstructure:"baseurl"`
	APIKey  string `mapstructure:"apikey"`
	Table   string `mapstructure:"table"`
}

// REST executes queries against a PostgREST-compatible endpoint (Supabase
// and friends). Filters map onto the query-string operator syntax
// (field=eq.value, field=gte.value, field=in.(a,b), field=ilike.*text*).
type REST struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// NewREST creates the HTTP adapter. BaseURL is required; the table name
// defaults to "items".
func NewREST(cfg RESTConfig) (*REST, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest driver requires a base URL")
	}
	table := cfg.Table
	if table == "" {
		table = "items"
	}
	return &REST{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		table:   table,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (r *REST) Close() {}

func (r *REST) Ping(ctx context.Context) error {
	status, _, _, err := r.do(ctx, http.MethodGet, "?limit=1", nil, nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("backend returned status %d", status)
	}
	return nil
}

func (r *REST) Find(ctx context.Context, req FindRequest) (*Page, error) {
	params := url.Values{}
	if err := addRESTFilter(params, req.Filter); err != nil {
		return nil, err
	}
	if req.Sort != nil {
		field, err := restFieldExpr(req.Sort.Field)
		if err != nil {
			return nil, err
		}
		dir := "asc"
		if req.Sort.Desc {
			dir = "desc"
		}
		params.Set("order", field+"."+dir)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}

	status, body, header, err := r.do(ctx, http.MethodGet, "?"+params.Encode(),
		nil, map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusPartialContent {
		return nil, fmt.Errorf("backend returned status %d: %s", status, body)
	}

	var rows []restRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	items := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc := row.document()
		doc.Data = projectData(doc.Data, req.Projection)
		items = append(items, doc)
	}

	total := int64(len(items))
	if cr := header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndexByte(cr, '/'); idx >= 0 {
			if n, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				total = n
			}
		}
	}

	return &Page{Items: items, Total: total}, nil
}

func (r *REST) Get(ctx context.Context, id string) (*Document, error) {
	params := url.Values{}
	params.Set("id", "eq."+id)
	status, body, _, err := r.do(ctx, http.MethodGet, "?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", status, body)
	}
	var rows []restRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	doc := rows[0].document()
	return &doc, nil
}

func (r *REST) Insert(ctx context.Context, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	status, body, _, err := r.do(ctx, http.MethodPost, "", payload,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("backend returned status %d: %s", status, body)
	}
	return singleRESTDocument(body)
}

func (r *REST) Replace(ctx context.Context, id string, data map[string]interface{}) (*Document, error) {
	payload, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	params := url.Values{}
	params.Set("id", "eq."+id)
	status, body, _, err := r.do(ctx, http.MethodPatch, "?"+params.Encode(), payload,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", status, body)
	}
	return singleRESTDocument(body)
}

func (r *REST) Delete(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", "eq."+id)
	status, body, _, err := r.do(ctx, http.MethodDelete, "?"+params.Encode(), nil,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("backend returned status %d: %s", status, body)
	}
	var rows []restRow
	if len(body) > 0 && json.Unmarshal(body, &rows) == nil && len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// do performs one request against the table endpoint and returns status,
// body and headers.
func (r *REST) do(ctx context.Context, method, suffix string, body []byte, headers map[string]string) (int, []byte, http.Header, error) {
	endpoint := r.baseURL + "/" + r.table + suffix

	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, resp.Header, nil
}

type restRow struct {
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (row restRow) document() Document {
	return Document{
		ID:        row.ID,
		Data:      row.Data,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func singleRESTDocument(body []byte) (*Document, error) {
	var rows []restRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	doc := rows[0].document()
	return &doc, nil
}

// addRESTFilter maps the filter onto PostgREST operator parameters. Repeated
// parameters on the same field AND together server-side, which also covers
// the conjunction list.
func addRESTFilter(params url.Values, f *query.Filter) error {
	if f == nil || f.IsEmpty() {
		return nil
	}
	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		if err := addRESTCond(params, field, cond); err != nil {
			return err
		}
	}
	for _, fc := range f.Conjunction() {
		if err := addRESTCond(params, fc.Field, fc.Cond); err != nil {
			return err
		}
	}
	return nil
}

func addRESTCond(params url.Values, field string, cond query.Condition) error {
	expr, err := restFieldExpr(field)
	if err != nil {
		return err
	}

	if lit, ok := cond.(*query.Literal); ok {
		params.Add(expr, "eq."+restValue(lit.Value))
		return nil
	}

	for _, e := range query.EntriesOf(cond) {
		switch e.Op {
		case query.OpGt:
			params.Add(expr, "gt."+restValue(e.Value))
		case query.OpGte:
			params.Add(expr, "gte."+restValue(e.Value))
		case query.OpLt:
			params.Add(expr, "lt."+restValue(e.Value))
		case query.OpLte:
			params.Add(expr, "lte."+restValue(e.Value))
		case query.OpIn:
			values, ok := e.Value.([]interface{})
			if !ok {
				return fmt.Errorf("value for %s must be a list", e.Op)
			}
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = restValue(v)
			}
			params.Add(expr, "in.("+strings.Join(parts, ",")+")")
		case query.OpRegex:
			pat, ok := e.Value.(string)
			if !ok {
				return fmt.Errorf("value for %s must be a string", e.Op)
			}
			params.Add(expr, "ilike.*"+unescapeRegex(pat)+"*")
		default:
			return fmt.Errorf("unsupported operator %s", e.Op)
		}
	}
	return nil
}

// restFieldExpr maps a field path to PostgREST column syntax: columns stay
// as-is, payload paths become data->a->>b (text extraction on the last hop).
func restFieldExpr(field string) (string, error) {
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
	parts := strings.Split(path, ".")
	expr := "data"
	for i, part := range parts {
		if i == len(parts)-1 {
			expr += "->>" + part
		} else {
			expr += "->" + part
		}
	}
	return expr, nil
}

func restValue(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}
