package postgres

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

// PostgresTaskStore implements task.RecoverableStore and task.Pruner using PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    store.Clock
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    store.SystemClock,
	}
}

// WithClock replaces the time source used for timestamps and age filters.
func (s *PostgresTaskStore) WithClock(clock store.Clock) *PostgresTaskStore {
	s.now = clock
	return s
}

var (
	_ task.RecoverableStore = (*PostgresTaskStore)(nil)
	_ task.Pruner           = (*PostgresTaskStore)(nil)
)

// SaveTask persists a task to the database in pending state
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO tasks (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	payload := t.Payload()
	if payload == nil {
		payload = []byte{}
	}
	now := s.now()

	_, err := s.db.ExecContext(ctx, query,
		t.ID(),
		t.Type(),
		payload,
		string(task.TaskStatusPending),
		now,
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

// UpdateTaskStatus updates the status of a task in the database
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, string(status), nullString(errorMsg), s.now(), taskID)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}
	return CheckRowsAffected(result, task.ErrTaskNotFound)
}

// CompleteTask marks a task completed and stores its result
func (s *PostgresTaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, result = $2, error_message = NULL, updated_at = $3
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, string(task.TaskStatusCompleted), result, s.now(), taskID)
	if err != nil {
		log.Error("failed to complete task", "task_id", taskID, "error", err)
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}
	return CheckRowsAffected(res, task.ErrTaskNotFound)
}

// GetTaskState returns the stored state of a task
func (s *PostgresTaskStore) GetTaskState(ctx context.Context, taskID uuid.UUID) (*task.TaskRecord, error) {
	query := `
		SELECT id, type, payload, status, result, error_message, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`
	rec, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task state",
			"task_id", taskID,
			"error", err)
		return nil, fmt.Errorf("failed to get task state: %w", MapError(err))
	}
	return rec, nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.TaskRecord, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.TaskRecord, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

func (s *PostgresTaskStore) getTasksByStatus(
	ctx context.Context,
	status task.TaskStatus,
	olderThan time.Duration,
) ([]task.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, type, payload, status, result, error_message, created_at, updated_at
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC
	`
	args := []any{string(status)}
	if olderThan > 0 {
		query = `
			SELECT id, type, payload, status, result, error_message, created_at, updated_at
			FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`
		args = append(args, s.now().Add(-olderThan))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status", "status", status, "error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "status", status, "error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// PruneFinished deletes completed and failed tasks last updated before now - olderThan.
func (s *PostgresTaskStore) PruneFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND updated_at <= $3
	`
	result, err := s.db.ExecContext(ctx, query,
		string(task.TaskStatusCompleted),
		string(task.TaskStatusFailed),
		s.now().Add(-olderThan),
	)
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
		result    []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Payload,
		&status,
		&result,
		&errorMsg,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = task.TaskStatus(status)
	rec.Result = result
	rec.ErrorMessage = errorMsg.String
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
