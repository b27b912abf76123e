package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

type JobKind string

const (
	JobProcessSettlement JobKind = "settlement.process"
	JobPaystackWebhook   JobKind = "paystack.webhook"
)

var ErrNoHandler = errors.New("no handler registered for job")

// PermanentError marks a job failure that retrying cannot fix, typically
// because the outcome is already recorded. Workers drop such jobs.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Job is the unit of deferred work. Webhook jobs carry the raw, already
// signature-checked provider body in Payload.
type Job struct {
	Kind         JobKind         `json:"kind"`
	SettlementID string          `json:"settlement_id,omitempty"`
	Event        string          `json:"event,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

type Handler func(ctx context.Context, job Job) error

// Dispatcher hands a job to whoever executes it. Business code is written
// against this interface once; the inline or queued variant is picked when
// the server is composed.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

type Router struct {
	mu       sync.RWMutex
	handlers map[JobKind]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[JobKind]Handler)}
}

func (r *Router) Handle(kind JobKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Router) Route(ctx context.Context, job Job) error {
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	}
	return h(ctx, job)
}

// InlineDispatcher runs the job on the caller's goroutine and returns its error.
type InlineDispatcher struct {
	router *Router
}

func NewInlineDispatcher(router *Router) *InlineDispatcher {
	return &InlineDispatcher{router: router}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job Job) error {
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}
	return d.router.Route(ctx, job)
}
