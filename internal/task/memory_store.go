package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTaskStore keeps task state in process memory. Nothing survives a
// restart, so it does not implement RecoverableStore. Finished tasks are
// dropped by PruneFinished once their retention has passed.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*TaskRecord
	now   func() time.Time
}

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*TaskRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the store's time source.
func (s *MemoryTaskStore) WithClock(now func() time.Time) *MemoryTaskStore {
	s.now = now
	return s
}

// SaveTask stores a new pending task.
func (s *MemoryTaskStore) SaveTask(_ context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.tasks[task.ID()] = &TaskRecord{
		ID:        task.ID(),
		Type:      task.Type(),
		Payload:   task.Payload(),
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// UpdateTaskStatus changes a task's status.
func (s *MemoryTaskStore) UpdateTaskStatus(_ context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	rec.Status = status
	rec.ErrorMessage = errorMsg
	rec.UpdatedAt = s.now()
	return nil
}

// CompleteTask marks a task completed with its result.
func (s *MemoryTaskStore) CompleteTask(_ context.Context, taskID uuid.UUID, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	rec.Status = TaskStatusCompleted
	rec.Result = result
	rec.ErrorMessage = ""
	rec.UpdatedAt = s.now()
	return nil
}

// GetTaskState returns a copy of the stored record.
func (s *MemoryTaskStore) GetTaskState(_ context.Context, taskID uuid.UUID) (*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

// PruneFinished removes terminal tasks last updated before now - olderThan.
func (s *MemoryTaskStore) PruneFinished(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var n int64
	for id, rec := range s.tasks {
		if rec.Status.IsTerminal() && !rec.UpdatedAt.After(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}
