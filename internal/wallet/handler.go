package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"github.com/zjoart/paystack-settlements/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	wallet, err := h.Service.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Details", wallet)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	walletID, ok := pathUUID(w, r, "walletID")
	if !ok {
		return
	}

	page := utils.GetPaginationDetails(r)
	filter := TransactionFilter{
		WalletID: walletID,
		Type:     TransactionType(r.URL.Query().Get("type")),
		Status:   TransactionStatus(r.URL.Query().Get("status")),
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
	if from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to")); err == nil {
		filter.To = &to
	}

	txs, count, err := h.Service.ListTransactions(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction History", map[string]interface{}{
		"transactions": txs,
		"meta":         page.Meta(count),
	})
}

func (h *Handler) AddBankAccount(w http.ResponseWriter, r *http.Request) {
	walletID, ok := pathUUID(w, r, "walletID")
	if !ok {
		return
	}

	var req BankAccountRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	account, err := h.Service.AddBankAccount(r.Context(), walletID, req)
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Bank account added", account)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	walletID, ok := pathUUID(w, r, "walletID")
	if !ok {
		return
	}

	var req TransferRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	tx, err := h.Service.Transfer(r.Context(), walletID, req)
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transfer completed", tx)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	walletID, ok := pathUUID(w, r, "walletID")
	if !ok {
		return
	}

	var req DepositRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	res, err := h.Service.InitializeDeposit(r.Context(), walletID, req)
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Deposit initialized", res)
}

// WriteError maps wallet and gateway errors onto HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrBankAccountNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvalidBankAccount), errors.Is(err, ErrEmailRequired), errors.Is(err, ErrNotDeposit):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrWalletLocked), errors.Is(err, ErrWalletInactive):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case paystack.IsAPIError(err):
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Paystack error", map[string]string{"error": err.Error()})
	default:
		logger.Error("Request failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	v, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid "+key, nil)
		return uuid.Nil, false
	}
	return v, true
}
