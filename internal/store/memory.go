package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process document store. It is the default backend, used
// when no database is configured and by the handler tests.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]Document
	order []string // insertion order, the unsorted scan order
	now   func() time.Time
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) Find(ctx context.Context, req FindRequest) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Document
	for _, id := range m.order {
		doc := m.docs[id]
		if req.Filter == nil || matches(req.Filter, &doc) {
			hits = append(hits, doc)
		}
	}

	total := int64(len(hits))

	if req.Sort != nil {
		s := *req.Sort
		sort.SliceStable(hits, func(i, j int) bool {
			a, _ := resolveField(&hits[i], s.Field)
			b, _ := resolveField(&hits[j], s.Field)
			if s.Desc {
				return compareValues(a, b) > 0
			}
			return compareValues(a, b) < 0
		})
	}

	if req.Offset > 0 {
		if req.Offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[req.Offset:]
		}
	}
	if req.Limit > 0 && req.Limit < len(hits) {
		hits = hits[:req.Limit]
	}

	items := make([]Document, len(hits))
	for i, doc := range hits {
		doc.Data = projectData(doc.Data, req.Projection)
		items[i] = doc
	}

	return &Page{Items: items, Total: total}, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (m *Memory) Insert(ctx context.Context, data map[string]interface{}) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	doc := Document{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.docs[doc.ID] = doc
	m.order = append(m.order, doc.ID)
	return &doc, nil
}

func (m *Memory) Replace(ctx context.Context, id string, data map[string]interface{}) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Data = data
	doc.UpdatedAt = m.now().UTC()
	m.docs[id] = doc
	return &doc, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
