package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavia-common/data-insight-assistant/internal/metrics"
	"github.com/kavia-common/data-insight-assistant/internal/nlq"
	"github.com/kavia-common/data-insight-assistant/internal/query"
	"github.com/kavia-common/data-insight-assistant/internal/store"
)

// NLQHandler translates natural language phrases into structured queries
// and executes them against the store.
type NLQHandler struct {
	store   store.Store
	enabled bool
	now     func() time.Time
}

// NewNLQHandler creates a new NLQHandler. The now function supplies the
// reference time for relative date phrases; pass nil to use time.Now.
func NewNLQHandler(st store.Store, enabled bool, now func() time.Time) *NLQHandler {
	if now == nil {
		now = time.Now
	}
	return &NLQHandler{store: st, enabled: enabled, now: now}
}

// NLQParams carries explicit overrides that take precedence over
// anything extracted from the phrase.
type NLQParams struct {
	Fields  []string `json:"fields,omitempty"`
	SortBy  string   `json:"sort_by,omitempty"`
	SortDir string   `json:"sort_dir,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
}

// NLQRequest is the translate-and-run request payload
type NLQRequest struct {
	Query  string     `json:"query"`
	Params *NLQParams `json:"params,omitempty"`
}

// NLQResponse echoes the phrase and the derived filter next to the results
type NLQResponse struct {
	NLQ    string                 `json:"nlq"`
	Filter map[string]interface{} `json:"filter"`
	Items  []store.Document       `json:"items"`
	Meta   PaginationMeta         `json:"meta"`
}

// Query parses the phrase, applies explicit parameter overrides and runs
// the resulting query against the store.
func (h *NLQHandler) Query(c *gin.Context) {
	if !h.enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "natural language querying is disabled"})
		return
	}

	var req NLQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		metrics.NLQParseTotal.WithLabelValues("empty").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}

	desc := nlq.Parse(req.Query, h.now())
	if desc.Filter != nil && !desc.Filter.IsEmpty() {
		metrics.NLQParseTotal.WithLabelValues("matched").Inc()
	} else {
		metrics.NLQParseTotal.WithLabelValues("unmatched").Inc()
	}

	applyOverrides(desc, req.Params)

	limit := defaultLimit
	if desc.Limit != nil {
		limit = *desc.Limit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := 0
	if desc.Offset != nil && *desc.Offset > 0 {
		offset = *desc.Offset
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	page, err := h.store.Find(ctx, store.FindRequest{
		Filter:     desc.Filter,
		Projection: desc.Projection,
		Sort:       desc.Sort,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, NLQResponse{
		NLQ:    req.Query,
		Filter: filterAsMap(desc.Filter),
		Items:  page.Items,
		Meta:   PaginationMeta{Total: page.Total, Limit: limit, Offset: offset},
	})
}

// applyOverrides merges explicit request parameters over the parsed
// descriptor, field by field.
func applyOverrides(desc *query.Descriptor, p *NLQParams) {
	if p == nil {
		return
	}
	if len(p.Fields) > 0 {
		fields := make([]string, 0, len(p.Fields)+1)
		hasID := false
		for _, f := range p.Fields {
			if f = strings.TrimSpace(f); f == "" {
				continue
			}
			if f == nlq.IdentityField {
				hasID = true
			}
			fields = append(fields, f)
		}
		if !hasID {
			fields = append(fields, nlq.IdentityField)
		}
		desc.Projection = fields
	}
	if p.SortBy != "" {
		desc.Sort = &query.Sort{Field: p.SortBy, Desc: strings.EqualFold(p.SortDir, "desc")}
	}
	if p.Limit != nil {
		desc.Limit = p.Limit
	}
	if p.Offset != nil {
		desc.Offset = p.Offset
	}
}

func filterAsMap(f *query.Filter) map[string]interface{} {
	out := map[string]interface{}{}
	if f == nil || f.IsEmpty() {
		return out
	}
	raw, err := f.MarshalJSON()
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
