package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/task"
)

// TaskTypePrefix prefixes the task type of every submitted operation.
const TaskTypePrefix = "async_view:"

// TaskType returns the task type used for the named operation.
func TaskType(operation string) string {
	return TaskTypePrefix + operation
}

// payload is the stored form of a submission.
type payload struct {
	OwnerID *uuid.UUID      `json:"owner_id,omitempty"`
	Args    json.RawMessage `json:"args"`
}

// operationTask runs an operation as a background task.
type operationTask struct {
	id      uuid.UUID
	op      *asyncop.Operation
	owner   *uuid.UUID
	args    json.RawMessage
	payload []byte
}

var _ task.Task = (*operationTask)(nil)

func newOperationTask(id uuid.UUID, op *asyncop.Operation, owner *uuid.UUID, args json.RawMessage) (*operationTask, error) {
	data, err := json.Marshal(payload{OwnerID: owner, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}
	return &operationTask{id: id, op: op, owner: owner, args: args, payload: data}, nil
}

func (t *operationTask) ID() uuid.UUID { return t.id }

func (t *operationTask) Type() string { return TaskType(t.op.Name()) }

func (t *operationTask) Payload() []byte { return t.payload }

// Execute runs the operation and returns the JSON encoded result handle.
func (t *operationTask) Execute(ctx context.Context) ([]byte, error) {
	handle, err := t.op.Execute(ctx, t.owner, t.args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(handle)
}

// NewRehydrator rebuilds stored operation tasks from the registry.
func NewRehydrator(registry *asyncop.Registry) task.Rehydrator {
	return task.RehydratorFunc(func(rec task.TaskRecord) (task.Task, error) {
		name, ok := strings.CutPrefix(rec.Type, TaskTypePrefix)
		if !ok {
			return nil, fmt.Errorf("%w: %s", task.ErrNotRecoverable, rec.Type)
		}
		op, ok := registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: operation %q is not registered", task.ErrNotRecoverable, name)
		}

		var p payload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: invalid payload: %v", task.ErrNotRecoverable, err)
		}
		return newOperationTask(rec.ID, op, p.OwnerID, p.Args)
	})
}
