package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/store"
	"github.com/stretchr/testify/mock"
)

// TaskRecordStore is an in-memory store.TaskRecordStore.
type TaskRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.TaskRecord

	SaveFn func(ctx context.Context, rec *domain.TaskRecord) error

	// History holds a copy of every saved record in order.
	History []domain.TaskRecord
}

var _ store.TaskRecordStore = (*TaskRecordStore)(nil)

// NewTaskRecordStore creates an empty TaskRecordStore.
func NewTaskRecordStore() *TaskRecordStore {
	return &TaskRecordStore{records: make(map[string]domain.TaskRecord)}
}

// Get implements store.TaskRecordStore.
func (s *TaskRecordStore) Get(_ context.Context, taskID string) (*domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &rec, nil
}

// GetForTenant implements store.TaskRecordStore.
func (s *TaskRecordStore) GetForTenant(ctx context.Context, tenantID uuid.UUID, taskID string) (*domain.TaskRecord, error) {
	rec, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if rec.TenantID != tenantID {
		return nil, store.ErrTaskNotFound
	}
	return rec, nil
}

// Save implements store.TaskRecordStore.
func (s *TaskRecordStore) Save(ctx context.Context, rec *domain.TaskRecord) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = *rec
	s.History = append(s.History, *rec)
	return nil
}

// FindStale implements store.TaskRecordStore.
func (s *TaskRecordStore) FindStale(
	_ context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TaskRecord
	for _, r := range s.records {
		r := r
		if r.Status == status && r.UpdatedAt.Before(cutoff) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores rec as is, bypassing SaveFn and History.
func (s *TaskRecordStore) Put(rec *domain.TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = *rec
}

// Progressions returns the progress values saved for taskID in order.
func (s *TaskRecordStore) Progressions(taskID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for _, r := range s.History {
		if r.TaskID == taskID {
			out = append(out, r.Progress)
		}
	}
	return out
}

// TestifyMockTaskRecordStore is a testify mock of store.TaskRecordStore.
type TestifyMockTaskRecordStore struct {
	mock.Mock
}

// Get is a mock implementation of store.TaskRecordStore.Get
func (m *TestifyMockTaskRecordStore) Get(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	args := m.Called(ctx, taskID)
	if rec, ok := args.Get(0).(*domain.TaskRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetForTenant is a mock implementation of store.TaskRecordStore.GetForTenant
func (m *TestifyMockTaskRecordStore) GetForTenant(
	ctx context.Context,
	tenantID uuid.UUID,
	taskID string,
) (*domain.TaskRecord, error) {
	args := m.Called(ctx, tenantID, taskID)
	if rec, ok := args.Get(0).(*domain.TaskRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

// Save is a mock implementation of store.TaskRecordStore.Save
func (m *TestifyMockTaskRecordStore) Save(ctx context.Context, rec *domain.TaskRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// FindStale is a mock implementation of store.TaskRecordStore.FindStale
func (m *TestifyMockTaskRecordStore) FindStale(
	ctx context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.TaskRecord, error) {
	args := m.Called(ctx, status, cutoff, limit)
	if recs, ok := args.Get(0).([]*domain.TaskRecord); ok {
		return recs, args.Error(1)
	}
	return nil, args.Error(1)
}
