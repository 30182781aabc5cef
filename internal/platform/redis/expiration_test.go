package redis

import (
	"testing"
	"time"

	"github.com/phrazzld/asyncview/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestTaskStore_ExpirationOnlyForFinishedTasks(t *testing.T) {
	t.Parallel()

	s := NewTaskStore(nil, time.Minute, nil)

	tests := []struct {
		status task.TaskStatus
		want   time.Duration
	}{
		{task.TaskStatusPending, 0},
		{task.TaskStatusProcessing, 0},
		{task.TaskStatusCompleted, time.Minute},
		{task.TaskStatusFailed, time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.expiration(tt.status))
		})
	}
}
