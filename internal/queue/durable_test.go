package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpulse/internal/types"
)

func TestDurableQueue_CreateListDelete(t *testing.T) {
	store := newMemStore()
	q := NewDurableQueue(store, nil)
	ctx := context.Background()
	fireAt := time.Date(2024, 1, 3, 4, 0, 0, 0, time.UTC)

	id, err := q.CreateTask(ctx, "https://api.example.com/v1/internal/deliver", []byte(`{"notification_id":"n1"}`), fireAt, "tok")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tasks, err := q.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, fireAt, tasks[0].FireAt)
	assert.Equal(t, "tok", tasks[0].AuthToken.Unmask())
	assert.Equal(t, types.TaskStatusPending, tasks[0].Status)

	require.NoError(t, q.DeleteTask(ctx, id))
	// Deleting again is still a success.
	require.NoError(t, q.DeleteTask(ctx, id))

	tasks, err = q.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDurableQueue_CreateTaskRequiresCallback(t *testing.T) {
	q := NewDurableQueue(newMemStore(), nil)
	_, err := q.CreateTask(context.Background(), "", nil, time.Now(), "")
	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamInvalidTarget, appErr.Code)
}
