package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockTaskStore implements the TaskStore interface for testing. By default
// it behaves like a MemoryTaskStore; each ...Fn field overrides one method.
type MockTaskStore struct {
	*MemoryTaskStore

	SaveFn         func(ctx context.Context, task Task) error
	UpdateStatusFn func(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error
	CompleteFn     func(ctx context.Context, taskID uuid.UUID, result []byte) error
	GetStateFn     func(ctx context.Context, taskID uuid.UUID) (*TaskRecord, error)

	mu            sync.Mutex
	statusHistory map[uuid.UUID][]TaskStatus
}

// NewMockTaskStore creates a new MockTaskStore with default implementations
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		MemoryTaskStore: NewMemoryTaskStore(),
		statusHistory:   make(map[uuid.UUID][]TaskStatus),
	}
}

func (s *MockTaskStore) record(id uuid.UUID, status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHistory[id] = append(s.statusHistory[id], status)
}

// StatusHistory returns every status the task was moved to, in order.
func (s *MockTaskStore) StatusHistory(id uuid.UUID) []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TaskStatus(nil), s.statusHistory[id]...)
}

// SaveTask persists a task to the mock store
func (s *MockTaskStore) SaveTask(ctx context.Context, task Task) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, task)
	}
	s.record(task.ID(), TaskStatusPending)
	return s.MemoryTaskStore.SaveTask(ctx, task)
}

// UpdateTaskStatus updates the status of a task in the mock store
func (s *MockTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, taskID, status, errorMsg)
	}
	s.record(taskID, status)
	return s.MemoryTaskStore.UpdateTaskStatus(ctx, taskID, status, errorMsg)
}

// CompleteTask records a task result in the mock store
func (s *MockTaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	if s.CompleteFn != nil {
		return s.CompleteFn(ctx, taskID, result)
	}
	s.record(taskID, TaskStatusCompleted)
	return s.MemoryTaskStore.CompleteTask(ctx, taskID, result)
}

// GetTaskState reads a task from the mock store
func (s *MockTaskStore) GetTaskState(ctx context.Context, taskID uuid.UUID) (*TaskRecord, error) {
	if s.GetStateFn != nil {
		return s.GetStateFn(ctx, taskID)
	}
	return s.MemoryTaskStore.GetTaskState(ctx, taskID)
}
