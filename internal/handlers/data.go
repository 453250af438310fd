package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kavia-common/data-insight-assistant/internal/query"
	"github.com/kavia-common/data-insight-assistant/internal/store"
	apperrors "github.com/kavia-common/data-insight-assistant/pkg/errors"
	"github.com/kavia-common/data-insight-assistant/pkg/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// DataHandler handles CRUD endpoints over the generic document collection
type DataHandler struct {
	store store.Store
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(st store.Store) *DataHandler {
	return &DataHandler{store: st}
}

// DataItemIn is the create/replace request payload
type DataItemIn struct {
	Data map[string]interface{} `json:"data"`
}

// PaginationMeta describes one result page
type PaginationMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// DataItemsPage is the list response
type DataItemsPage struct {
	Items []store.Document `json:"items"`
	Meta  PaginationMeta   `json:"meta"`
}

// List returns a paginated, optionally filtered page of items.
// The filter parameter is a JSON object in the descriptor's operator
// vocabulary, e.g. {"data.country":"US","age":{"$gt":21}}.
func (h *DataHandler) List(c *gin.Context) {
	var filter *query.Filter
	if raw := c.Query("filter"); raw != "" {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "filter must be a JSON object"})
			return
		}
		f, err := query.FromMap(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter = f
	}

	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be non-negative"})
			return
		}
		offset = n
	}

	var sortSpec *query.Sort
	if sortBy := c.Query("sort_by"); sortBy != "" {
		dir := strings.ToLower(c.DefaultQuery("sort_dir", "asc"))
		if dir != "asc" && dir != "desc" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sort_dir must be asc or desc"})
			return
		}
		sortSpec = &query.Sort{Field: sortBy, Desc: dir == "desc"}
	}

	var projection []string
	if fields := c.Query("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				projection = append(projection, f)
			}
		}
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	page, err := h.store.Find(ctx, store.FindRequest{
		Filter:     filter,
		Projection: projection,
		Sort:       sortSpec,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, DataItemsPage{
		Items: page.Items,
		Meta:  PaginationMeta{Total: page.Total, Limit: limit, Offset: offset},
	})
}

// Get retrieves a single item by its id
func (h *DataHandler) Get(c *gin.Context) {
	id, ok := validID(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	doc, err := h.store.Get(ctx, id)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Create stores a new item; the payload goes under the data field
func (h *DataHandler) Create(c *gin.Context) {
	var req DataItemIn
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	doc, err := h.store.Insert(ctx, req.Data)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Update replaces the data content of an item
func (h *DataHandler) Update(c *gin.Context) {
	id, ok := validID(c)
	if !ok {
		return
	}

	var req DataItemIn
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	doc, err := h.store.Replace(ctx, id, req.Data)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete removes an item by its id
func (h *DataHandler) Delete(c *gin.Context) {
	id, ok := validID(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	if err := h.store.Delete(ctx, id); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func validID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return "", false
	}
	return id, true
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeAppError(c, apperrors.NotFound("item not found"))
		return
	}
	logger.Error("storage operation failed", "error", err)
	writeAppError(c, apperrors.Internal(err))
}

func writeAppError(c *gin.Context, e *apperrors.AppError) {
	c.JSON(e.Code, gin.H{"error": e.Message})
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
