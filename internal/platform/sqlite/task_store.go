package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
)

// TaskStore implements task.RecoverableStore and task.Pruner on SQLite.
type TaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    store.Clock
}

var (
	_ task.RecoverableStore = (*TaskStore)(nil)
	_ task.Pruner           = (*TaskStore)(nil)
)

// NewTaskStore creates a TaskStore. If logger is nil, a default logger will be used.
func NewTaskStore(db store.DBTX, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    store.SystemClock,
	}
}

// WithClock replaces the time source used for timestamps and age filters.
func (s *TaskStore) WithClock(clock store.Clock) *TaskStore {
	s.now = clock
	return s
}

// SaveTask persists a new pending task.
func (s *TaskStore) SaveTask(ctx context.Context, t task.Task) error {
	payload := t.Payload()
	if payload == nil {
		payload = []byte{}
	}
	now := toNanos(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID().String(), t.Type(), payload, string(task.TaskStatusPending), now, now)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task: %w", MapError(err))
	}
	return nil
}

// UpdateTaskStatus changes the status of a task.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	var msg any
	if errorMsg != "" {
		msg = errorMsg
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), msg, toNanos(s.now()), taskID.String())
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}
	return rowsOrNotFound(result)
}

// CompleteTask marks a task completed with its result.
func (s *TaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		string(task.TaskStatusCompleted), result, toNanos(s.now()), taskID.String())
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}
	return rowsOrNotFound(res)
}

const taskColumns = `id, type, payload, status, result, error_message, created_at, updated_at`

// GetTaskState returns the stored state of a task.
func (s *TaskStore) GetTaskState(ctx context.Context, taskID uuid.UUID) (*task.TaskRecord, error) {
	rec, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task state: %w", MapError(err))
	}
	return rec, nil
}

// GetPendingTasks retrieves all tasks with "pending" status.
func (s *TaskStore) GetPendingTasks(ctx context.Context) ([]task.TaskRecord, error) {
	return s.byStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks retrieves processing tasks, optionally only those idle longer than olderThan.
func (s *TaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.TaskRecord, error) {
	return s.byStatus(ctx, task.TaskStatusProcessing, olderThan)
}

func (s *TaskStore) byStatus(ctx context.Context, status task.TaskStatus, olderThan time.Duration) ([]task.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ?`
	args := []any{string(status)}
	if olderThan > 0 {
		query += ` AND updated_at < ?`
		args = append(args, toNanos(s.now().Add(-olderThan)))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []task.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return out, nil
}

// PruneFinished deletes terminal tasks last updated before now - olderThan.
func (s *TaskStore) PruneFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE status IN (?, ?) AND updated_at <= ?`,
		string(task.TaskStatusCompleted), string(task.TaskStatusFailed), toNanos(s.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("failed to prune finished tasks: %w", MapError(err))
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.TaskRecord, error) {
	var (
		rec       task.TaskRecord
		status    string
		errorMsg  sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Type, &rec.Payload, &status, &rec.Result, &errorMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = task.TaskStatus(status)
	rec.ErrorMessage = errorMsg.String
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	return &rec, nil
}

func rowsOrNotFound(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}
