package fee

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"github.com/zjoart/paystack-settlements/pkg/utils"
)

type Handler struct {
	Calculator *Calculator
	Repo       Repository
}

func NewHandler(calc *Calculator, repo Repository) *Handler {
	return &Handler{Calculator: calc, Repo: repo}
}

type QuoteRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	TransactionType TransactionType `json:"transaction_type"`
	PaymentChannel  Channel         `json:"payment_channel"`
	WalletID        *uuid.UUID      `json:"wallet_id"`
	Bearer          Bearer          `json:"bearer"`
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	if !req.Amount.IsPositive() {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}
	if req.TransactionType == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, ErrMissingTxType.Error(), nil)
		return
	}

	res := h.Calculator.Calculate(r.Context(), Request{
		Amount:   req.Amount,
		Type:     req.TransactionType,
		Channel:  req.PaymentChannel,
		WalletID: req.WalletID,
		Bearer:   req.Bearer,
	})
	utils.BuildSuccessResponse(w, http.StatusOK, "Fee quote", res)
}

func (h *Handler) CreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg Configuration
	if status, err := utils.DecodeJSONBody(w, r, &cfg); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	cfg.ID = uuid.Nil
	cfg.IsActive = true
	if err := cfg.Validate(); err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Repo.Create(r.Context(), &cfg); err != nil {
		if isValidationError(err) {
			utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		logger.Error("Failed to save fee configuration", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to save fee configuration", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Fee configuration created", cfg)
}

func isValidationError(err error) bool {
	for _, target := range []error{ErrInvalidFeeType, ErrInvalidBearer, ErrNegativeFee, ErrSplitNot100, ErrMissingTxType, ErrTieredWithoutTier} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
