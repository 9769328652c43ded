package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/google"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskDelete       = "delete"
	TaskUpdateStatus = "update_status"
)

// ledgerPayload is persisted in SyncTask.Payload as JSON.
type ledgerPayload struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status,omitempty"`
}

// LedgerWorker consumes sync_queue tasks and mirrors bookings into the ledger.
// Upserts read the booking's current row at processing time, so a late retry never
// writes stale data.
type LedgerWorker struct {
	store         domain.SyncQueueRepository
	ledger        domain.LedgerWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        zerolog.Logger
}

func NewLedgerWorker(
	store domain.SyncQueueRepository,
	ledger domain.LedgerWriter,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *LedgerWorker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ledger_worker").Logger()
	}

	return &LedgerWorker{
		store:         store,
		ledger:        ledger,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "ledger:queue",
		deadLetterKey: "ledger:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        l,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
// A task that misses both queues is still picked up by polling.
func (w *LedgerWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, status string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if bookingID <= 0 {
		return errors.New("booking id is required")
	}

	payload, err := json.Marshal(ledgerPayload{BookingID: bookingID, Status: status})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(payload),
		Status:    models.SyncPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushRedis(ctx, w.redisQueueKey, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *LedgerWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("ledger worker started")
	defer w.logger.Info().Msg("ledger worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.pollOnce(ctx); n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// pollOnce processes due tasks from the store and returns how many it handled.
func (w *LedgerWorker) pollOnce(ctx context.Context) int {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *LedgerWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *LedgerWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *LedgerWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload ledgerPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	err := w.handleTask(ctx, task.TaskType, payload)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		w.failTask(ctx, task, err)
		return
	default:
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task completed")
	}
}

func (w *LedgerWorker) handleTask(ctx context.Context, taskType string, payload ledgerPayload) error {
	if payload.BookingID <= 0 {
		return errors.New("booking id missing")
	}
	switch taskType {
	case TaskUpsert:
		return w.upsert(ctx, payload.BookingID)
	case TaskDelete:
		err := w.ledger.DeleteBookingRow(ctx, payload.BookingID)
		if errors.Is(err, google.ErrRowNotFound) {
			return nil
		}
		return err
	case TaskUpdateStatus:
		if payload.Status == "" {
			return errors.New("status missing")
		}
		err := w.ledger.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
		if errors.Is(err, google.ErrRowNotFound) {
			return w.upsert(ctx, payload.BookingID)
		}
		return err
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *LedgerWorker) upsert(ctx context.Context, bookingID int64) error {
	row, err := w.store.GetBookingReportRow(ctx, bookingID)
	if err != nil {
		return err
	}
	return w.ledger.UpsertBooking(ctx, row)
}

func (w *LedgerWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("ledger sync failed")
}

func (w *LedgerWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("booking_id", task.BookingID).Msg("ledger sync abandoned")
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push")
		}
	}
}

func (w *LedgerWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
