package redis_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/config"
	"github.com/phrazzld/asyncview/internal/platform/redis"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the Redis named by ASYNCVIEW_TEST_REDIS_ADDR and
// skips the test when it is unset or unreachable.
func newTestStore(t *testing.T, retention time.Duration) *redis.TaskStore {
	t.Helper()
	addr := os.Getenv("ASYNCVIEW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test: ASYNCVIEW_TEST_REDIS_ADDR not set")
	}
	client, err := redis.NewClient(context.Background(), config.RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewTaskStore(client, retention, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTaskStore_Lifecycle(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	tk := task.NewMockTask(uuid.New(), "async_view:report", []byte(`{"args":null}`))
	require.NoError(t, s.SaveTask(ctx, tk))
	assert.ErrorIs(t, s.SaveTask(ctx, tk), store.ErrDuplicate)

	rec, err := s.GetTaskState(ctx, tk.ID())
	require.NoError(t, err)
	assert.Equal(t, task.TaskStatusPending, rec.Status)
	assert.Equal(t, []byte(`{"args":null}`), rec.Payload)

	require.NoError(t, s.UpdateTaskStatus(ctx, tk.ID(), task.TaskStatusProcessing, ""))
	require.NoError(t, s.CompleteTask(ctx, tk.ID(), []byte(`{"artifact_id":"x"}`)))

	rec, err = s.GetTaskState(ctx, tk.ID())
	require.NoError(t, err)
	assert.Equal(t, task.TaskStatusCompleted, rec.Status)
	assert.Equal(t, []byte(`{"artifact_id":"x"}`), rec.Result)
}

func TestTaskStore_UnknownTask(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	_, err := s.GetTaskState(ctx, id)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
	assert.ErrorIs(t, s.UpdateTaskStatus(ctx, id, task.TaskStatusFailed, "boom"), task.ErrTaskNotFound)
	assert.ErrorIs(t, s.CompleteTask(ctx, id, nil), task.ErrTaskNotFound)
}

func TestTaskStore_Expiry(t *testing.T) {
	s := newTestStore(t, time.Second)
	ctx := context.Background()

	tk := task.NewMockTask(uuid.New(), "mock_task", nil)
	require.NoError(t, s.SaveTask(ctx, tk))

	// A queued task outlives the retention period.
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, s.UpdateTaskStatus(ctx, tk.ID(), task.TaskStatusProcessing, ""))
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, s.CompleteTask(ctx, tk.ID(), []byte(`{}`)))

	assert.Eventually(t, func() bool {
		_, err := s.GetTaskState(ctx, tk.ID())
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}
