package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/events"
	"github.com/zjoart/paystack-settlements/pkg/logger"
)

type DepositConfirmer interface {
	ConfirmDeposit(ctx context.Context, reference string, payload map[string]interface{}) (bool, error)
}

// Reconciler applies Paystack webhook events. Delivery is at least once, so
// every event may arrive more than once and in any order relative to a poll.
type Reconciler struct {
	engine   *Engine
	deposits DepositConfirmer
}

func NewReconciler(engine *Engine, deposits DepositConfirmer) *Reconciler {
	return &Reconciler{engine: engine, deposits: deposits}
}

// ProcessPaystackWebhook reports whether the event was applied to a known
// settlement or deposit.
func (r *Reconciler) ProcessPaystackWebhook(ctx context.Context, eventType string, data json.RawMessage) (bool, error) {
	handled, err := r.process(ctx, eventType, data)
	webhookEventsTotal.WithLabelValues(eventType, strconv.FormatBool(handled)).Inc()
	return handled, err
}

func (r *Reconciler) process(ctx context.Context, eventType string, data json.RawMessage) (bool, error) {
	var status string
	switch eventType {
	case paystack.EventTransferSuccess:
		status = paystack.StatusSuccess
	case paystack.EventTransferFailed:
		status = paystack.StatusFailed
	case paystack.EventTransferReversed:
		status = paystack.StatusReversed
	case paystack.EventChargeSuccess:
		return r.confirmDeposit(ctx, data)
	default:
		logger.Debug("Ignoring unhandled webhook event", logger.Fields{"event": eventType})
		return false, nil
	}

	var d paystack.WebhookData
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	logger.Info("Applying transfer webhook", logger.Fields{"event": eventType, logger.ReferenceKey: d.Reference, "transfer_code": d.TransferCode})
	return r.engine.applyOutcome(ctx, outcome{
		Reference:    d.Reference,
		TransferCode: d.TransferCode,
		Status:       status,
		Reason:       d.Reason,
		Payload:      payload,
	})
}

func (r *Reconciler) confirmDeposit(ctx context.Context, data json.RawMessage) (bool, error) {
	if r.deposits == nil {
		return false, nil
	}

	var d paystack.WebhookData
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("invalid charge payload: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("invalid charge payload: %w", err)
	}

	_, err := r.deposits.ConfirmDeposit(ctx, d.Reference, payload)
	if errors.Is(err, wallet.ErrTransactionNotFound) || errors.Is(err, wallet.ErrNotDeposit) {
		logger.Warn("Charge does not match a pending deposit", logger.Merge(logger.WithError(err), logger.Fields{logger.ReferenceKey: d.Reference}))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HandleWebhookJob is the events.Handler for JobPaystackWebhook. The job
// payload is the raw, signature-checked request body.
func (r *Reconciler) HandleWebhookJob(ctx context.Context, job events.Job) error {
	var ev paystack.WebhookEvent
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return events.Permanent(fmt.Errorf("invalid webhook payload: %w", err))
	}
	_, err := r.ProcessPaystackWebhook(ctx, ev.Event, ev.Data)
	return err
}
