package database

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:  "upsert",
		BookingID: 100,
		Payload:   `{"booking_id":100}`,
	}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	assert.Equal(t, models.SyncPending, task.Status)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].BookingID)

	next := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncRetry, "sheets down", &next))

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "task scheduled in the future must not be due")

	stored, err := db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "sheets down", *stored.LastError)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncFailed, "gave up", nil))
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)

	_, err = db.GetSyncTask(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
