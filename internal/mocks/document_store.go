package mocks

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/store"
)

// DocumentStore is an in-memory store.DocumentStore.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]domain.Document

	CreateFn           func(ctx context.Context, doc *domain.Document) error
	GetByIDFn          func(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	UpdateProcessingFn func(ctx context.Context, doc *domain.Document) error
	UpdateMetadataFn   func(ctx context.Context, doc *domain.Document) error
	ListFn             func(ctx context.Context, params store.DocumentListParams) ([]*domain.Document, error)

	// ListCalls counts List invocations, which lets cache tests tell hits
	// from misses.
	ListCalls int
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[uuid.UUID]domain.Document)}
}

// Put stores a copy of doc, bypassing validation.
func (s *DocumentStore) Put(doc *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
}

// Snapshot returns a copy of the stored document, or nil.
func (s *DocumentStore) Snapshot(id uuid.UUID) *domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil
	}
	return &d
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Create implements store.DocumentStore.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, doc)
	}
	if err := doc.Validate(); err != nil {
		return store.ErrInvalidEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return store.ErrDuplicate
	}
	s.docs[doc.ID] = *doc
	return nil
}

// GetByID implements store.DocumentStore.
func (s *DocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	if d := s.Snapshot(id); d != nil {
		return d, nil
	}
	return nil, store.ErrDocumentNotFound
}

// GetForTenant implements store.DocumentStore.
func (s *DocumentStore) GetForTenant(_ context.Context, tenantID, id uuid.UUID) (*domain.Document, error) {
	d := s.Snapshot(id)
	if d == nil || d.TenantID != tenantID {
		return nil, store.ErrDocumentNotFound
	}
	return d, nil
}

// UpdateProcessing implements store.DocumentStore. Only pipeline-owned
// columns are written.
func (s *DocumentStore) UpdateProcessing(ctx context.Context, doc *domain.Document) error {
	if s.UpdateProcessingFn != nil {
		return s.UpdateProcessingFn(ctx, doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[doc.ID]
	if !ok {
		return store.ErrDocumentNotFound
	}
	cur.Status = doc.Status
	cur.TextContent = doc.TextContent
	cur.PageCount = doc.PageCount
	cur.ProcessingStartedAt = doc.ProcessingStartedAt
	cur.ProcessingCompletedAt = doc.ProcessingCompletedAt
	cur.ErrorMessage = doc.ErrorMessage
	cur.UpdatedAt = doc.UpdatedAt
	s.docs[doc.ID] = cur
	return nil
}

// UpdateMetadata implements store.DocumentStore. Only user-owned columns
// are written.
func (s *DocumentStore) UpdateMetadata(ctx context.Context, doc *domain.Document) error {
	if s.UpdateMetadataFn != nil {
		return s.UpdateMetadataFn(ctx, doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[doc.ID]
	if !ok || cur.TenantID != doc.TenantID {
		return store.ErrDocumentNotFound
	}
	cur.Title = doc.Title
	cur.Description = doc.Description
	cur.IsPublic = doc.IsPublic
	cur.IsDeleted = doc.IsDeleted
	cur.DeletedAt = doc.DeletedAt
	cur.Status = doc.Status
	cur.ErrorMessage = doc.ErrorMessage
	cur.UpdatedAt = doc.UpdatedAt
	s.docs[doc.ID] = cur
	return nil
}

// Delete implements store.DocumentStore.
func (s *DocumentStore) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok || cur.TenantID != tenantID {
		return store.ErrDocumentNotFound
	}
	delete(s.docs, id)
	return nil
}

// newer reports whether a sorts before b in (created_at DESC, id DESC) order.
func newer(a, b *domain.Document) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func matchesSearch(d *domain.Document, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Filename), q) {
		return true
	}
	return d.Description != nil && strings.Contains(strings.ToLower(*d.Description), q)
}

// List implements store.DocumentStore with the same keyset semantics as the
// SQL query.
func (s *DocumentStore) List(ctx context.Context, params store.DocumentListParams) ([]*domain.Document, error) {
	s.mu.Lock()
	s.ListCalls++
	s.mu.Unlock()
	if s.ListFn != nil {
		return s.ListFn(ctx, params)
	}

	s.mu.RLock()
	var rows []*domain.Document
	for _, d := range s.docs {
		d := d
		if d.TenantID != params.TenantID {
			continue
		}
		if d.IsDeleted && !params.IncludeDeleted {
			continue
		}
		if params.Status != "" && d.Status != params.Status {
			continue
		}
		if !matchesSearch(&d, params.Search) {
			continue
		}
		rows = append(rows, &d)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return newer(rows[i], rows[j]) })

	if params.Seek != nil {
		pos := &domain.Document{ID: params.Seek.ID, CreatedAt: params.Seek.CreatedAt}
		var filtered []*domain.Document
		for _, d := range rows {
			if params.Seek.Backward && newer(d, pos) || !params.Seek.Backward && newer(pos, d) {
				filtered = append(filtered, d)
			}
		}
		rows = filtered
		if params.Seek.Backward && len(rows) > params.Limit {
			return rows[len(rows)-params.Limit:], nil
		}
	}
	if params.Limit > 0 && len(rows) > params.Limit {
		rows = rows[:params.Limit]
	}
	return rows, nil
}

// FindByHash implements store.DocumentStore.
func (s *DocumentStore) FindByHash(_ context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Document
	for _, d := range s.docs {
		d := d
		if d.TenantID == tenantID && d.ContentHash == hash && !d.IsDeleted {
			if found == nil || newer(&d, found) {
				found = &d
			}
		}
	}
	if found == nil {
		return nil, store.ErrDocumentNotFound
	}
	return found, nil
}

// FindStale implements store.DocumentStore.
func (s *DocumentStore) FindStale(
	_ context.Context,
	status domain.DocumentStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Document
	for _, d := range s.docs {
		d := d
		if d.Status != status {
			continue
		}
		ref := d.UpdatedAt
		if status == domain.DocumentStatusProcessing {
			if d.ProcessingStartedAt == nil {
				continue
			}
			ref = *d.ProcessingStartedAt
		}
		if ref.Before(cutoff) {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[j], out[i]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats implements store.DocumentStore.
func (s *DocumentStore) Stats(_ context.Context, tenantID uuid.UUID, since time.Time) (*store.DocumentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &store.DocumentStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]int64{},
	}
	for _, d := range s.docs {
		if d.TenantID != tenantID || d.IsDeleted {
			continue
		}
		stats.TotalDocuments++
		stats.TotalSize += d.FileSize
		stats.ByStatus[string(d.Status)]++
		stats.ByType[string(d.Type)]++
		if d.CreatedAt.After(since) {
			stats.RecentUploads++
		}
	}
	return stats, nil
}
