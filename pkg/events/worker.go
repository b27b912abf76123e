package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zjoart/paystack-settlements/pkg/logger"
)

type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	PushToDLQ(ctx context.Context, data []byte) error
}

type Worker struct {
	Queue      Queue
	Router     *Router
	MaxRetries int
	Backoff    time.Duration
}

func NewWorker(queue Queue, router *Router) *Worker {
	return &Worker{Queue: queue, Router: router, MaxRetries: 3, Backoff: time.Second}
}

func (w *Worker) Start(ctx context.Context) {
	logger.Info("Starting job worker...")
	go w.processJobs(ctx)
}

func (w *Worker) processJobs(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			logger.Info("Job worker stopped")
			return
		}

		data, err := w.Queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				logger.Warn("Worker: Failed to pop job", logger.WithError(err))
				time.Sleep(w.Backoff)
			}
			continue
		}

		w.HandleRaw(ctx, data)
	}
}

// HandleRaw decodes and routes one queued job, retrying with linear backoff
// before parking it on the DLQ.
func (w *Worker) HandleRaw(ctx context.Context, data []byte) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		logger.Error("Worker: Failed to unmarshal job", logger.Fields{"error": err.Error(), "data": string(data)})
		w.moveToDLQ(ctx, data)
		return
	}

	for i := 0; i < w.MaxRetries; i++ {
		err := w.Router.Route(ctx, job)
		if err == nil {
			logger.Info("Worker: Successfully processed job", logger.Fields{"kind": job.Kind, "event": job.Event, "settlement_id": job.SettlementID})
			return
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			logger.Warn("Worker: Job failed permanently, dropping", logger.Fields{"kind": job.Kind, "settlement_id": job.SettlementID, "error": err.Error()})
			return
		}

		if errors.Is(err, ErrNoHandler) {
			logger.Warn("Worker: Unknown job kind", logger.Fields{"kind": job.Kind})
			w.moveToDLQ(ctx, data)
			return
		}

		logger.Warn("Worker: Failed to process job, retrying", logger.Fields{
			"kind":    job.Kind,
			"event":   job.Event,
			"attempt": i + 1,
			"error":   err.Error(),
		})
		time.Sleep(time.Duration(i+1) * w.Backoff)
	}

	logger.Error("Worker: Max retries exhausted, moving to DLQ", logger.Fields{"kind": job.Kind, "settlement_id": job.SettlementID})
	w.moveToDLQ(ctx, data)
}

func (w *Worker) moveToDLQ(ctx context.Context, data []byte) {
	if err := w.Queue.PushToDLQ(context.WithoutCancel(ctx), data); err != nil {
		logger.Error("Worker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}
