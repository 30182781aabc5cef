package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common task errors.
var (
	// ErrTaskNotFound is returned when a task ID is unknown to the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskPanicked is recorded as the failure of a task whose Execute panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrNotRecoverable is returned by a Rehydrator for task types it cannot rebuild.
	ErrNotRecoverable = errors.New("task type cannot be recovered")
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Execute runs the task logic and returns the bytes to record as its result.
	Execute(ctx context.Context) ([]byte, error)
}

// TaskRecord is the stored state of a task.
type TaskRecord struct {
	ID           uuid.UUID
	Type         string
	Payload      []byte
	Status       TaskStatus
	Result       []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue
// allowing services to enqueue tasks for processing
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// TaskStore defines the interface for persisting task state.
// Implementations must be safe for concurrent use.
type TaskStore interface {
	// SaveTask persists a new task in pending state.
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus changes the status of a task and records errorMsg.
	// Returns ErrTaskNotFound for unknown IDs.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// CompleteTask marks a task completed and stores its result.
	// Returns ErrTaskNotFound for unknown IDs.
	CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error

	// GetTaskState returns the stored state of a task.
	// Returns ErrTaskNotFound for unknown IDs.
	GetTaskState(ctx context.Context, taskID uuid.UUID) (*TaskRecord, error)
}

// RecoverableStore is a TaskStore whose contents outlive the process, so
// unfinished tasks can be requeued on start.
type RecoverableStore interface {
	TaskStore

	// GetPendingTasks retrieves all tasks with "pending" status
	GetPendingTasks(ctx context.Context) ([]TaskRecord, error)

	// GetProcessingTasks retrieves tasks with "processing" status.
	// If olderThan is non-zero, only tasks that have been in this state
	// longer than the specified duration are returned.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]TaskRecord, error)
}

// Pruner is implemented by stores that drop finished tasks after a retention period.
type Pruner interface {
	PruneFinished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Rehydrator rebuilds an executable task from its stored record.
type Rehydrator interface {
	Rehydrate(record TaskRecord) (Task, error)
}

// RehydratorFunc adapts a function to the Rehydrator interface.
type RehydratorFunc func(record TaskRecord) (Task, error)

// Rehydrate calls f(record).
func (f RehydratorFunc) Rehydrate(record TaskRecord) (Task, error) {
	return f(record)
}
