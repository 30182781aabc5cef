package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/config"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces task keys.
const KeyPrefix = "asyncview:task:"

// maxUpdateAttempts bounds optimistic-lock retries on concurrent writers.
const maxUpdateAttempts = 5

// NewClient creates a client from configuration and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// record is the stored JSON form of a task.
type record struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Payload      []byte          `json:"payload"`
	Status       task.TaskStatus `json:"status"`
	Result       []byte          `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TaskStore implements task.TaskStore on Redis.
type TaskStore struct {
	client    goredis.UniversalClient
	retention time.Duration
	logger    *slog.Logger
	now       store.Clock
}

var _ task.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore whose keys expire retention after the
// task reaches a terminal state. Pending and processing tasks never expire,
// however long they wait in the queue. If logger is nil, a default logger
// will be used.
func NewTaskStore(client goredis.UniversalClient, retention time.Duration, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		client:    client,
		retention: retention,
		logger:    logger.With(slog.String("component", "task_store")),
		now:       store.SystemClock,
	}
}

// WithClock replaces the time source used for timestamps.
func (s *TaskStore) WithClock(clock store.Clock) *TaskStore {
	s.now = clock
	return s
}

func key(id uuid.UUID) string {
	return KeyPrefix + id.String()
}

// expiration is the key TTL for a task in status. Zero means no expiry, and
// a plain SET clears any TTL left from an earlier write.
func (s *TaskStore) expiration(status task.TaskStatus) time.Duration {
	if status.IsTerminal() {
		return s.retention
	}
	return 0
}

// SaveTask persists a new pending task. Saving an existing ID fails with store.ErrDuplicate.
func (s *TaskStore) SaveTask(ctx context.Context, t task.Task) error {
	now := s.now()
	data, err := json.Marshal(record{
		ID:        t.ID(),
		Type:      t.Type(),
		Payload:   t.Payload(),
		Status:    task.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key(t.ID()), data, s.expiration(task.TaskStatusPending)).Result()
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, t.ID())
	}
	return nil
}

// UpdateTaskStatus changes the status of a task.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	return s.update(ctx, taskID, func(r *record) {
		r.Status = status
		r.ErrorMessage = errorMsg
	})
}

// CompleteTask marks a task completed with its result.
func (s *TaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	return s.update(ctx, taskID, func(r *record) {
		r.Status = task.TaskStatusCompleted
		r.Result = result
		r.ErrorMessage = ""
	})
}

// update applies mutate to the stored record under WATCH, retrying when
// another writer changed the key in between.
func (s *TaskStore) update(ctx context.Context, taskID uuid.UUID, mutate func(*record)) error {
	k := key(taskID)
	txf := func(tx *goredis.Tx) error {
		r, err := load(ctx, tx, k)
		if err != nil {
			return err
		}
		mutate(r)
		r.UpdatedAt = s.now()

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.expiration(r.Status))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, task.ErrTaskNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task",
				"task_id", taskID,
				"error", err)
		}
		return err
	}
	return fmt.Errorf("failed to update task %s: %w", taskID, store.ErrTransactionFailed)
}

// GetTaskState returns the stored state of a task.
func (s *TaskStore) GetTaskState(ctx context.Context, taskID uuid.UUID) (*task.TaskRecord, error) {
	r, err := load(ctx, s.client, key(taskID))
	if err != nil {
		return nil, err
	}
	return &task.TaskRecord{
		ID:           r.ID,
		Type:         r.Type,
		Payload:      r.Payload,
		Status:       r.Status,
		Result:       r.Result,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// getter is the part of a client or transaction that load needs.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func load(ctx context.Context, c getter, k string) (*record, error) {
	raw, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", k, err)
	}
	return &r, nil
}
