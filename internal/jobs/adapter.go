package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
)

// Runner is the part of task.TaskRunner the adapter uses.
type Runner interface {
	Submit(ctx context.Context, t task.Task) error
	State(ctx context.Context, taskID uuid.UUID) (*task.TaskRecord, error)
}

var _ Runner = (*task.TaskRunner)(nil)

// Config bounds blocking fetches.
type Config struct {
	// AwaitTimeout is the longest a blocking Fetch or RunEager may wait.
	AwaitTimeout time.Duration

	// AwaitPoll is how often a blocking Fetch re-reads the job state.
	AwaitPoll time.Duration
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		AwaitTimeout: time.Minute,
		AwaitPoll:    100 * time.Millisecond,
	}
}

// Adapter submits operations as jobs and opens their results.
type Adapter struct {
	runner    Runner
	artifacts store.ArtifactStore
	config    Config
	logger    *slog.Logger
}

// NewAdapter creates an Adapter. artifacts may be nil when no operation is
// durable. If logger is nil, a default logger will be used.
func NewAdapter(runner Runner, artifacts store.ArtifactStore, config Config, logger *slog.Logger) (*Adapter, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: job adapter has no runner", domain.ErrConfiguration)
	}
	defaults := DefaultConfig()
	if config.AwaitTimeout <= 0 {
		config.AwaitTimeout = defaults.AwaitTimeout
	}
	if config.AwaitPoll <= 0 {
		config.AwaitPoll = defaults.AwaitPoll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		runner:    runner,
		artifacts: artifacts,
		config:    config,
		logger:    logger.With(slog.String("component", "job_adapter")),
	}, nil
}

// Submit queues op for background execution and returns the job ID without
// waiting for it to run.
func (a *Adapter) Submit(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (uuid.UUID, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return uuid.Nil, err
	}
	t, err := newOperationTask(uuid.New(), op, ownerID, raw)
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.runner.Submit(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("failed to submit %s: %w", op.Name(), err)
	}

	logger.FromContextOrDefault(ctx, a.logger).Debug("submitted job",
		slog.String("job_id", t.ID().String()),
		slog.String("operation", op.Name()))
	return t.ID(), nil
}

// IsReady reports whether the job has finished, successfully or not.
func (a *Adapter) IsReady(ctx context.Context, jobID uuid.UUID) (bool, error) {
	rec, err := a.state(ctx, jobID)
	if err != nil {
		return false, err
	}
	return rec.Status.IsTerminal(), nil
}

// Fetch opens the result of a job. Without await an unfinished job yields
// ErrNotReady; with await Fetch polls until the job finishes or the await
// timeout passes. A failed job yields domain.ErrUpstreamFailure.
func (a *Adapter) Fetch(ctx context.Context, jobID uuid.UUID, await bool) (*domain.OpenedResult, error) {
	rec, err := a.state(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.IsTerminal() {
		if !await {
			return nil, ErrNotReady
		}
		if rec, err = a.await(ctx, jobID); err != nil {
			return nil, err
		}
	}
	return a.open(ctx, rec)
}

// RunEager executes op in the calling goroutine. No job is created.
func (a *Adapter) RunEager(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (*domain.OpenedResult, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.AwaitTimeout)
	defer cancel()

	handle, err := op.Execute(ctx, ownerID, raw)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrAwaitTimeout, op.Name())
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
	}
	return a.openHandle(ctx, handle)
}

func (a *Adapter) state(ctx context.Context, jobID uuid.UUID) (*task.TaskRecord, error) {
	rec, err := a.runner.State(ctx, jobID)
	if err != nil {
		if task.IsNotFound(err) {
			return nil, fmt.Errorf("%w: job %s: %w", domain.ErrNotFound, jobID, err)
		}
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	return rec, nil
}

func (a *Adapter) await(ctx context.Context, jobID uuid.UUID) (*task.TaskRecord, error) {
	timeout := time.NewTimer(a.config.AwaitTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(a.config.AwaitPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("%w: job %s", ErrAwaitTimeout, jobID)
		case <-ticker.C:
			rec, err := a.state(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if rec.Status.IsTerminal() {
				return rec, nil
			}
		}
	}
}

func (a *Adapter) open(ctx context.Context, rec *task.TaskRecord) (*domain.OpenedResult, error) {
	if rec.Status == task.TaskStatusFailed {
		return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamFailure, rec.ErrorMessage)
	}

	var handle domain.ResultHandle
	if err := json.Unmarshal(rec.Result, &handle); err != nil {
		return nil, fmt.Errorf("%w: job %s has an unreadable result: %v", domain.ErrInvariantViolation, rec.ID, err)
	}
	return a.openHandle(ctx, &handle)
}

func (a *Adapter) openHandle(ctx context.Context, handle *domain.ResultHandle) (*domain.OpenedResult, error) {
	if err := handle.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
	}

	if e := handle.Ephemeral; e != nil {
		return &domain.OpenedResult{
			Content:  e.Content,
			OwnerID:  e.OwnerID,
			Filename: e.Filename,
			Mimetype: e.Mimetype,
		}, nil
	}

	if a.artifacts == nil {
		return nil, fmt.Errorf("%w: durable result without an artifact store", domain.ErrInvariantViolation)
	}
	artifact, err := a.artifacts.Get(ctx, *handle.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", handle.ArtifactID, err)
	}
	return artifact.Opened(), nil
}

func encodeArgs(args any) (json.RawMessage, error) {
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: arguments are not serializable: %v", domain.ErrValidation, err)
	}
	return raw, nil
}
