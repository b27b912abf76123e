package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	dlq [][]byte
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return nil, ErrQueueEmpty
}

func (q *fakeQueue) PushToDLQ(ctx context.Context, data []byte) error {
	q.dlq = append(q.dlq, data)
	return nil
}

func encode(t *testing.T, job Job) []byte {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func TestWorkerHandleRaw(t *testing.T) {
	t.Run("routes job once on success", func(t *testing.T) {
		router := NewRouter()
		calls := 0
		router.Handle(JobPaystackWebhook, func(ctx context.Context, job Job) error {
			calls++
			assert.Equal(t, "transfer.success", job.Event)
			return nil
		})
		q := &fakeQueue{}
		w := NewWorker(q, router)
		w.Backoff = time.Millisecond

		w.HandleRaw(context.Background(), encode(t, Job{Kind: JobPaystackWebhook, Event: "transfer.success"}))

		assert.Equal(t, 1, calls)
		assert.Empty(t, q.dlq)
	})

	t.Run("retries then parks failing job", func(t *testing.T) {
		router := NewRouter()
		calls := 0
		router.Handle(JobProcessSettlement, func(ctx context.Context, job Job) error {
			calls++
			return errors.New("boom")
		})
		q := &fakeQueue{}
		w := NewWorker(q, router)
		w.Backoff = time.Millisecond

		w.HandleRaw(context.Background(), encode(t, Job{Kind: JobProcessSettlement, SettlementID: "s1"}))

		assert.Equal(t, 3, calls)
		assert.Len(t, q.dlq, 1)
	})

	t.Run("permanent failure is dropped without retry", func(t *testing.T) {
		router := NewRouter()
		calls := 0
		router.Handle(JobProcessSettlement, func(ctx context.Context, job Job) error {
			calls++
			return Permanent(errors.New("transfer rejected"))
		})
		q := &fakeQueue{}
		w := NewWorker(q, router)
		w.Backoff = time.Millisecond

		w.HandleRaw(context.Background(), encode(t, Job{Kind: JobProcessSettlement, SettlementID: "s1"}))

		assert.Equal(t, 1, calls)
		assert.Empty(t, q.dlq)
	})

	t.Run("unknown kind and garbage go straight to DLQ", func(t *testing.T) {
		q := &fakeQueue{}
		w := NewWorker(q, NewRouter())
		w.Backoff = time.Millisecond

		w.HandleRaw(context.Background(), encode(t, Job{Kind: "nope"}))
		w.HandleRaw(context.Background(), []byte("{not json"))

		assert.Len(t, q.dlq, 2)
	})
}

func TestInlineDispatcher(t *testing.T) {
	router := NewRouter()
	wantErr := errors.New("handler failed")
	router.Handle(JobProcessSettlement, func(ctx context.Context, job Job) error {
		assert.False(t, job.Timestamp.IsZero())
		return wantErr
	})

	d := NewInlineDispatcher(router)
	err := d.Dispatch(context.Background(), Job{Kind: JobProcessSettlement})
	assert.ErrorIs(t, err, wantErr)

	err = d.Dispatch(context.Background(), Job{Kind: JobPaystackWebhook})
	assert.ErrorIs(t, err, ErrNoHandler)
}
