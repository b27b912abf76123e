package settlement

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/events"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"github.com/zjoart/paystack-settlements/pkg/utils"
)

type Handler struct {
	Engine     *Engine
	Scheduler  *Scheduler
	Dispatcher events.Dispatcher
	Secret     string
}

func NewHandler(engine *Engine, scheduler *Scheduler, dispatcher events.Dispatcher, secret string) *Handler {
	return &Handler{Engine: engine, Scheduler: scheduler, Dispatcher: dispatcher, Secret: secret}
}

// PaystackWebhook always answers 200 once the body is read, including on a
// bad signature, so Paystack does not keep redelivering forged or stale
// events. Only a failed dispatch asks for redelivery.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Webhook: Failed to read body", logger.WithError(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !paystack.VerifySignature(h.Secret, body, r.Header.Get(paystack.SignatureHeader)) {
		logger.Warn("Webhook: Signature mismatch", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusOK)
		return
	}

	var ev paystack.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Warn("Webhook: Malformed payload", logger.WithError(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Info("Webhook received", logger.Fields{"event": ev.Event})

	err = h.Dispatcher.Dispatch(r.Context(), events.Job{
		Kind:    events.JobPaystackWebhook,
		Event:   ev.Event,
		Payload: body,
	})
	if err != nil {
		logger.Error("Webhook: Failed to dispatch event", logger.Merge(logger.WithError(err), logger.Fields{"event": ev.Event}))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	s, err := h.Engine.CreateSettlement(r.Context(), req)
	if err != nil {
		writeError(w, s, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Settlement created", s)
}

func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	page := utils.GetPaginationDetails(r)
	q := r.URL.Query()

	filter := Filter{Status: Status(q.Get("status")), Limit: page.Limit, Offset: page.Offset}
	if v := q.Get("wallet_id"); v != "" {
		walletID, err := uuid.Parse(v)
		if err != nil {
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid wallet_id", nil)
			return
		}
		filter.WalletID = &walletID
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = &to
	}

	out, count, err := h.Engine.ListSettlements(r.Context(), filter)
	if err != nil {
		writeError(w, nil, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Settlements", map[string]interface{}{
		"settlements": out,
		"meta":        page.Meta(count),
	})
}

func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetSettlement(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		writeError(w, nil, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Settlement Details", s)
}

func (h *Handler) VerifySettlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.VerifySettlement(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		writeError(w, s, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Settlement verified", s)
}

func (h *Handler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.RetrySettlement(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		writeError(w, s, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Settlement retried", s)
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	sch, err := h.Scheduler.CreateSchedule(r.Context(), req)
	if err != nil {
		writeError(w, nil, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusCreated, "Settlement schedule created", sch)
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(mux.Vars(r)["walletID"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid walletID", nil)
		return
	}

	out, err := h.Scheduler.ListSchedules(r.Context(), walletID)
	if err != nil {
		writeError(w, nil, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Settlement schedules", out)
}

func (h *Handler) DeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid schedule id", nil)
		return
	}

	sch, err := h.Scheduler.DeactivateSchedule(r.Context(), scheduleID)
	if err != nil {
		writeError(w, nil, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Settlement schedule deactivated", sch)
}

// RunDue triggers a scheduler pass outside the ticker, subject to the same
// replica lock.
func (h *Handler) RunDue(w http.ResponseWriter, r *http.Request) {
	sum, ran := h.Scheduler.RunOnce(r.Context())
	if !ran {
		utils.BuildErrorResponse(w, http.StatusConflict, "A scheduler pass is already running", nil)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Scheduled settlements processed", sum)
}

func writeError(w http.ResponseWriter, s *Settlement, err error) {
	var serr *SettlementError
	switch {
	case errors.As(err, &serr) && s != nil:
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Settlement failed", map[string]interface{}{
			"error":       serr.Error(),
			"reference":   serr.Reference,
			"compensated": serr.Compensation.Applied,
			"settlement":  s,
		})
	case errors.Is(err, ErrSettlementNotFound), errors.Is(err, ErrScheduleNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrNotFailed), errors.Is(err, ErrNoTransferCode):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingRecipient), errors.Is(err, ErrBankAccountMismatch),
		errors.Is(err, ErrInvalidSchedule):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
	default:
		wallet.WriteError(w, err)
	}
}
