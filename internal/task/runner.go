package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/platform/logger"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often the maintenance loop runs.
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// ResultRetention is how long finished tasks are kept by stores that
	// implement Pruner. Zero disables pruning.
	ResultRetention time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		ResultRetention:        time.Hour,
	}
}

// TaskRunner manages background task processing
type TaskRunner struct {
	store      TaskStore
	queue      *TaskQueue
	pool       *WorkerPool
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)
	rehydrator Rehydrator

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With("component", "task_runner")

	r := &TaskRunner{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.processTask, logger)
	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// SetRehydrator sets how stored tasks are rebuilt during recovery.
func (r *TaskRunner) SetRehydrator(rehydrator Rehydrator) {
	r.rehydrator = rehydrator
}

// Submit persists the task and adds it to the queue without blocking.
// When the queue is full the stored task is marked failed and ErrQueueFull
// is returned.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(task); err != nil {
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			logger.FromContextOrDefault(ctx, r.logger).Error("failed to mark rejected task as failed",
				"task_id", task.ID(),
				"error", updateErr)
		}
		return err
	}
	return nil
}

// State returns the stored state of a task.
func (r *TaskRunner) State(ctx context.Context, taskID uuid.UUID) (*TaskRecord, error) {
	return r.store.GetTaskState(ctx, taskID)
}

// Start recovers unfinished tasks, then starts the workers and the
// maintenance loop.
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go r.maintenanceLoop()

	return nil
}

// Stop gracefully shuts down the task runner. In-flight tasks finish first;
// buffered tasks stay pending in the store.
func (r *TaskRunner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.wg.Wait()
		r.pool.Stop()
		r.queue.Close()
	})
}

// Recover requeues tasks left unfinished by a previous run.
// It is a no-op unless the store implements RecoverableStore.
func (r *TaskRunner) Recover() error {
	rs, ok := r.store.(RecoverableStore)
	if !ok {
		return nil
	}
	ctx := context.Background()

	pendingTasks, err := rs.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// Processing tasks were interrupted by a crash regardless of age.
	processingTasks, err := rs.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, rec := range pendingTasks {
		r.requeue(ctx, rec, false, "")
	}
	for _, rec := range processingTasks {
		r.requeue(ctx, rec, true, "Reset after recovery")
	}
	return nil
}

// requeue rebuilds a stored task and puts it back on the queue. Tasks that
// cannot be rebuilt are marked failed so pollers see a terminal state.
func (r *TaskRunner) requeue(ctx context.Context, rec TaskRecord, reset bool, reason string) {
	log := r.logger.With("task_id", rec.ID, "task_type", rec.Type)

	if r.rehydrator == nil {
		r.failStored(ctx, rec.ID, ErrNotRecoverable.Error(), log)
		return
	}
	t, err := r.rehydrator.Rehydrate(rec)
	if err != nil {
		r.failStored(ctx, rec.ID, err.Error(), log)
		return
	}

	if reset {
		if err := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusPending, reason); err != nil {
			log.Error("failed to reset task status", "error", err)
			return
		}
	}

	if err := r.queue.Enqueue(t); err != nil {
		log.Error("failed to requeue task", "error", err)
		return
	}
	log.Info("requeued task")
}

func (r *TaskRunner) failStored(ctx context.Context, id uuid.UUID, msg string, log *slog.Logger) {
	log.Warn("dropping unrecoverable task", "reason", msg)
	if err := r.store.UpdateTaskStatus(ctx, id, TaskStatusFailed, msg); err != nil {
		log.Error("failed to mark task as failed", "error", err)
	}
}

// processTask handles execution of a single task
func (r *TaskRunner) processTask(task Task, workerID int) {
	log := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)
	ctx := logger.WithLogger(context.Background(), log)

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		log.Error("failed to update task status to processing", "error", err)
		return
	}

	log.Info("processing task")
	start := time.Now()

	result, err := execute(ctx, task)
	if err != nil {
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(task, err)
		return
	}

	if err := r.store.CompleteTask(ctx, task.ID(), result); err != nil {
		log.Error("failed to record task result", "error", err)
		return
	}
	log.Info("task completed successfully",
		"duration_ms", time.Since(start).Milliseconds(),
		"result_bytes", len(result))
}

// execute runs the task, converting a panic into an error.
func execute(ctx context.Context, task Task) (result []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
		}
	}()
	return task.Execute(ctx)
}

// maintenanceLoop periodically resets stuck tasks and prunes finished ones.
func (r *TaskRunner) maintenanceLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.resetStuckTasks()
			r.pruneFinished()
		}
	}
}

func (r *TaskRunner) resetStuckTasks() {
	rs, ok := r.store.(RecoverableStore)
	if !ok || r.config.StuckTaskAge <= 0 {
		return
	}
	ctx := context.Background()

	stuckTasks, err := rs.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	if len(stuckTasks) == 0 {
		return
	}

	r.logger.Info("found stuck tasks", "count", len(stuckTasks))
	for _, rec := range stuckTasks {
		r.requeue(ctx, rec, true, "Reset after being stuck in processing state")
	}
}

func (r *TaskRunner) pruneFinished() {
	p, ok := r.store.(Pruner)
	if !ok || r.config.ResultRetention <= 0 {
		return
	}

	n, err := p.PruneFinished(context.Background(), r.config.ResultRetention)
	if err != nil {
		r.logger.Error("failed to prune finished tasks", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned finished tasks", "count", n)
	}
}

// IsNotFound reports whether err means the task ID is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
