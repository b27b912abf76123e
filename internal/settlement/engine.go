package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/database"
	"github.com/zjoart/paystack-settlements/pkg/events"
	"github.com/zjoart/paystack-settlements/pkg/id"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"gorm.io/gorm"
)

const RefundPrefix = "RFD"

// Gateway is the slice of the Paystack transfer API the engine drives.
type Gateway interface {
	InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (*paystack.Transfer, error)
	VerifyTransfer(ctx context.Context, reference string) (*paystack.Transfer, error)
}

type FeeCalculator interface {
	Calculate(ctx context.Context, req fee.Request) fee.Result
}

type Config struct {
	Currency       string
	MinimumBalance decimal.Decimal
	// FeeChannel prices the informational settlement fee.
	FeeChannel fee.Channel
	// ReferenceAttempts bounds retries on settlement reference collisions.
	ReferenceAttempts int
}

type Engine struct {
	cfg        Config
	repo       Repository
	gateway    Gateway
	fees       FeeCalculator
	dispatcher events.Dispatcher
	now        func() time.Time
	reference  func(time.Time) string
}

// NewEngine wires the settlement engine. With a nil dispatcher settlements
// are processed on the calling goroutine.
func NewEngine(cfg Config, repo Repository, gateway Gateway, fees FeeCalculator, dispatcher events.Dispatcher) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.FeeChannel == "" {
		cfg.FeeChannel = fee.ChannelBankTransfer
	}
	if cfg.ReferenceAttempts <= 0 {
		cfg.ReferenceAttempts = 3
	}
	return &Engine{cfg: cfg, repo: repo, gateway: gateway, fees: fees, dispatcher: dispatcher, now: time.Now, reference: id.SettlementReference}
}

type CreateRequest struct {
	WalletID      uuid.UUID              `json:"wallet_id"`
	BankAccountID uuid.UUID              `json:"bank_account_id"`
	Amount        decimal.Decimal        `json:"amount"`
	Reason        string                 `json:"reason"`
	Metadata      map[string]interface{} `json:"metadata"`
	// SkipProcess leaves the settlement pending instead of initiating the
	// transfer right away.
	SkipProcess bool       `json:"skip_process"`
	ScheduleID  *uuid.UUID `json:"-"`
}

// CreateSettlement debits the wallet and records a pending settlement with
// its withdrawal ledger entry in one transaction, then processes it unless
// asked not to.
func (e *Engine) CreateSettlement(ctx context.Context, req CreateRequest) (*Settlement, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallets := e.repo.Wallets()
	w, err := wallets.GetWalletByID(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if err := usable(w); err != nil {
		return nil, err
	}
	if w.Balance.Sub(req.Amount).LessThan(e.cfg.MinimumBalance) {
		return nil, wallet.ErrInsufficientBalance
	}

	account, err := wallets.GetBankAccount(ctx, req.BankAccountID)
	if err != nil {
		return nil, err
	}
	if account.WalletID != w.ID {
		return nil, ErrBankAccountMismatch
	}
	if account.RecipientCode == "" {
		return nil, ErrMissingRecipient
	}

	quote := e.fees.Calculate(ctx, fee.Request{
		Amount:   req.Amount,
		Type:     fee.TypeWithdrawal,
		Channel:  e.cfg.FeeChannel,
		WalletID: &w.ID,
	})

	var s *Settlement
	for attempt := 1; attempt <= e.cfg.ReferenceAttempts; attempt++ {
		s, err = e.create(ctx, req, quote.FeeAmount)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		logger.Warn("Settlement reference collision, regenerating", logger.Fields{logger.WalletIDKey: w.ID.String(), "attempt": attempt})
	}
	if err != nil {
		// the transaction rolled back, so the debit never landed
		logger.Error("Failed to create settlement", logger.Merge(logger.WithError(err), logger.Fields{logger.WalletIDKey: w.ID.String()}))
		return nil, &SettlementError{Op: "create", Err: err, Compensation: CompensationResult{Applied: true}}
	}

	settlementsTotal.WithLabelValues(string(StatusPending)).Inc()
	logger.Info("Settlement created", e.fields(s, logger.Fields{"amount": s.Amount.String(), "fees": s.Fees.String()}))

	if req.SkipProcess {
		return s, nil
	}
	return e.dispatchProcess(ctx, s)
}

func (e *Engine) create(ctx context.Context, req CreateRequest, fees decimal.Decimal) (*Settlement, error) {
	var s *Settlement
	err := e.repo.Atomic(ctx, func(repo Repository) error {
		wallets := repo.Wallets()

		w, err := wallets.GetWalletForUpdate(ctx, req.WalletID)
		if err != nil {
			return err
		}
		if err := usable(w); err != nil {
			return err
		}
		if err := wallets.DebitWallet(ctx, w.ID, req.Amount, e.cfg.MinimumBalance); err != nil {
			return err
		}

		now := e.now()
		s = &Settlement{
			WalletID:      w.ID,
			BankAccountID: req.BankAccountID,
			ScheduleID:    req.ScheduleID,
			Amount:        req.Amount,
			Fees:          fees,
			Currency:      w.Currency,
			Status:        StatusPending,
			Reference:     e.reference(now),
			Reason:        req.Reason,
			Metadata:      database.JSONMap(req.Metadata),
		}
		if err := repo.Create(ctx, s); err != nil {
			return err
		}

		description := req.Reason
		if description == "" {
			description = "Settlement to bank account"
		}
		tx := &wallet.Transaction{
			WalletID:       w.ID,
			Reference:      s.Reference,
			Type:           wallet.TransactionWithdrawal,
			Amount:         req.Amount,
			Fees:           fees,
			Status:         wallet.TransactionSuccess,
			PaymentChannel: string(e.cfg.FeeChannel),
			BankAccountID:  &req.BankAccountID,
			Description:    description,
			CompletedAt:    &now,
		}
		if err := wallets.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		s.TransactionID = &tx.ID
		return repo.Save(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// dispatchProcess hands processing to the dispatcher. When the queue is
// unreachable the settlement is processed inline instead of being left
// pending with nobody to pick it up.
func (e *Engine) dispatchProcess(ctx context.Context, s *Settlement) (*Settlement, error) {
	if e.dispatcher == nil {
		return e.ProcessSettlement(ctx, s.ID)
	}

	err := e.dispatcher.Dispatch(ctx, events.Job{
		Kind:         events.JobProcessSettlement,
		SettlementID: s.ID.String(),
	})
	if err != nil {
		var serr *SettlementError
		if errors.As(err, &serr) {
			current, getErr := e.repo.GetByID(ctx, s.ID)
			if getErr != nil {
				return s, err
			}
			return current, err
		}
		logger.Warn("Failed to dispatch settlement, processing inline", e.fields(s, logger.WithError(err)))
		return e.ProcessSettlement(ctx, s.ID)
	}

	current, err := e.repo.GetByID(ctx, s.ID)
	if err != nil {
		return s, nil
	}
	return current, nil
}

// HandleProcessJob is the events.Handler for JobProcessSettlement. Failures
// already recorded on the settlement are reported as permanent.
func (e *Engine) HandleProcessJob(ctx context.Context, job events.Job) error {
	settlementID, err := uuid.Parse(job.SettlementID)
	if err != nil {
		return fmt.Errorf("invalid settlement id %q: %w", job.SettlementID, err)
	}

	_, err = e.ProcessSettlement(ctx, settlementID)
	if errors.Is(err, ErrNotPending) {
		logger.Debug("Settlement already processed", logger.Fields{logger.SettlementIDKey: job.SettlementID})
		return nil
	}
	var serr *SettlementError
	if errors.As(err, &serr) {
		return events.Permanent(err)
	}
	return err
}

// ProcessSettlement initiates the bank transfer for a pending settlement.
// The gateway is called outside any database transaction; the settlement row
// is locked only while its status changes.
func (e *Engine) ProcessSettlement(ctx context.Context, settlementID uuid.UUID) (*Settlement, error) {
	var (
		s       *Settlement
		account *wallet.BankAccount
	)
	err := e.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		s, err = repo.GetForUpdate(ctx, settlementID)
		if err != nil {
			return err
		}
		if s.Status != StatusPending {
			return ErrNotPending
		}
		account, err = repo.Wallets().GetBankAccount(ctx, s.BankAccountID)
		if err != nil {
			return err
		}
		if account.RecipientCode == "" {
			return ErrMissingRecipient
		}

		s.Status = StatusProcessing
		return repo.Save(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	transfer, gwErr := e.gateway.InitiateTransfer(ctx, paystack.TransferRequest{
		Source:    "balance",
		Amount:    paystack.ToMinorUnits(s.Amount),
		Recipient: account.RecipientCode,
		Reference: s.Reference,
		Reason:    s.Reason,
		Currency:  s.Currency,
	})
	if gwErr != nil {
		return e.failProcessing(ctx, s, gwErr)
	}

	err = e.repo.Atomic(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, s.ID)
		if err != nil {
			return err
		}
		if current.TransferCode == "" {
			current.TransferCode = transfer.TransferCode
		}
		// a webhook may have finalized the settlement while the call was in flight
		if current.Status == StatusProcessing {
			current.TransferResponse = database.JSONMap(transfer.Raw)
			if transfer.Status == paystack.StatusSuccess {
				now := e.now()
				current.Status = StatusSuccess
				current.SettledAt = &now
			} else {
				current.Status = StatusPending
			}
		}
		s = current
		return repo.Save(ctx, current)
	})
	if err != nil {
		logger.Error("Failed to record transfer result", e.fields(s, logger.Merge(logger.WithError(err), logger.Fields{"transfer_code": transfer.TransferCode})))
		return nil, fmt.Errorf("failed to record transfer result for %s: %w", s.Reference, err)
	}

	settlementsTotal.WithLabelValues(string(s.Status)).Inc()
	logger.Info("Settlement processed", e.fields(s, logger.Fields{"status": s.Status, "transfer_code": s.TransferCode}))
	return s, nil
}

func (e *Engine) failProcessing(ctx context.Context, s *Settlement, cause error) (*Settlement, error) {
	var result CompensationResult
	failed := s
	finalized := false
	err := e.repo.Atomic(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, s.ID)
		if err != nil {
			return err
		}
		// a webhook already settled it either way; its outcome stands
		if current.Status != StatusProcessing {
			failed = current
			finalized = true
			return nil
		}
		current.Status = StatusFailed
		current.FailureReason = cause.Error()
		if err := repo.Save(ctx, current); err != nil {
			return err
		}
		result = e.compensate(ctx, repo, current, wallet.TransactionFailed, current.FailureReason)
		failed = current
		return nil
	})
	if err != nil {
		logger.Error("Failed to mark settlement failed", e.fields(s, logger.WithError(err)))
		result = CompensationResult{Err: err}
	}
	if finalized {
		logger.Warn("Transfer call failed after settlement was finalized", e.fields(failed, logger.Merge(logger.WithError(cause), logger.Fields{"status": failed.Status})))
		if failed.Status == StatusSuccess {
			return failed, nil
		}
		// a failed or reversed webhook already credited the wallet back
		return failed, &SettlementError{Reference: s.Reference, Op: "process", Err: cause,
			Compensation: CompensationResult{Applied: failed.Status == StatusFailed}}
	}

	settlementsTotal.WithLabelValues(string(StatusFailed)).Inc()
	logger.Error("Settlement transfer failed", e.fields(failed, logger.Merge(logger.WithError(cause), logger.Fields{"compensated": result.Applied})))
	return failed, &SettlementError{Reference: s.Reference, Op: "process", Err: cause, Compensation: result}
}

// compensate credits the settlement amount back inside a savepoint of repo's
// transaction, records a refund entry and moves the linked withdrawal to
// txStatus. A failure rolls back only the compensation.
func (e *Engine) compensate(ctx context.Context, repo Repository, s *Settlement, txStatus wallet.TransactionStatus, reason string) CompensationResult {
	err := repo.Atomic(ctx, func(inner Repository) error {
		wallets := inner.Wallets()
		if err := wallets.CreditWallet(ctx, s.WalletID, s.Amount); err != nil {
			return err
		}

		now := e.now()
		refund := &wallet.Transaction{
			WalletID:             s.WalletID,
			Reference:            id.Reference(RefundPrefix, now),
			Type:                 wallet.TransactionRefund,
			Amount:               s.Amount,
			Status:               wallet.TransactionSuccess,
			BankAccountID:        &s.BankAccountID,
			RelatedTransactionID: s.TransactionID,
			Description:          fmt.Sprintf("Refund for settlement %s", s.Reference),
			CompletedAt:          &now,
		}
		if err := wallets.CreateTransaction(ctx, refund); err != nil {
			return err
		}

		if s.TransactionID != nil {
			return wallets.UpdateTransactionStatus(ctx, *s.TransactionID, txStatus, reason)
		}
		return nil
	})
	if err != nil {
		compensationsTotal.WithLabelValues("failed").Inc()
		logger.Error("Compensating credit failed, wallet needs manual reconciliation", e.fields(s, logger.Merge(logger.WithError(err), logger.Fields{"amount": s.Amount.String()})))
		return CompensationResult{Err: err}
	}

	compensationsTotal.WithLabelValues("applied").Inc()
	logger.Info("Settlement amount credited back", e.fields(s, logger.Fields{"amount": s.Amount.String()}))
	return CompensationResult{Applied: true}
}

// VerifySettlement polls the gateway and applies the result the same way a
// webhook would. Gateway errors leave the settlement untouched.
func (e *Engine) VerifySettlement(ctx context.Context, reference string) (*Settlement, error) {
	s, err := e.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if s.TransferCode == "" {
		return nil, ErrNoTransferCode
	}

	transfer, err := e.gateway.VerifyTransfer(ctx, s.Reference)
	if err != nil {
		logger.Warn("Settlement verification failed, leaving state unchanged", e.fields(s, logger.WithError(err)))
		return s, nil
	}

	if _, err := e.applyOutcome(ctx, outcome{
		Reference:    s.Reference,
		TransferCode: s.TransferCode,
		Status:       transfer.Status,
		Reason:       transfer.Reason,
		Payload:      transfer.Raw,
	}); err != nil {
		return nil, err
	}
	return e.repo.GetByID(ctx, s.ID)
}

// RetrySettlement re-debits the wallet for a failed settlement, links a new
// withdrawal entry and processes it again under the same reference.
func (e *Engine) RetrySettlement(ctx context.Context, reference string) (*Settlement, error) {
	var s *Settlement
	err := e.repo.Atomic(ctx, func(repo Repository) error {
		found, err := repo.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		s, err = repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}
		if s.Status != StatusFailed {
			return ErrNotFailed
		}

		wallets := repo.Wallets()
		w, err := wallets.GetWalletForUpdate(ctx, s.WalletID)
		if err != nil {
			return err
		}
		if err := usable(w); err != nil {
			return err
		}
		if w.Balance.LessThan(s.Amount) {
			return wallet.ErrInsufficientBalance
		}
		if err := wallets.DebitWallet(ctx, w.ID, s.Amount, e.cfg.MinimumBalance); err != nil {
			return err
		}

		now := e.now()
		tx := &wallet.Transaction{
			WalletID:             w.ID,
			Reference:            fmt.Sprintf("%s-R%d", s.Reference, now.UnixNano()),
			Type:                 wallet.TransactionWithdrawal,
			Amount:               s.Amount,
			Fees:                 s.Fees,
			Status:               wallet.TransactionSuccess,
			PaymentChannel:       string(e.cfg.FeeChannel),
			BankAccountID:        &s.BankAccountID,
			RelatedTransactionID: s.TransactionID,
			Description:          fmt.Sprintf("Retry of settlement %s", s.Reference),
			CompletedAt:          &now,
		}
		if err := wallets.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		s.TransactionID = &tx.ID
		s.Status = StatusPending
		s.FailureReason = ""
		s.TransferCode = ""
		s.TransferResponse = nil
		return repo.Save(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Retrying settlement", e.fields(s))
	return e.ProcessSettlement(ctx, s.ID)
}

func (e *Engine) GetSettlement(ctx context.Context, reference string) (*Settlement, error) {
	return e.repo.GetByReference(ctx, reference)
}

func (e *Engine) ListSettlements(ctx context.Context, filter Filter) ([]Settlement, int64, error) {
	return e.repo.List(ctx, filter)
}

// outcome is a provider-reported transfer result from a webhook or a poll.
type outcome struct {
	Reference    string
	TransferCode string
	Status       string
	Reason       string
	Payload      map[string]interface{}
}

// applyOutcome moves the settlement matching o to its final state under a
// row lock. It reports false when no settlement matches or the status is not
// final. Redelivered outcomes are no-ops, and a failure never credits twice.
func (e *Engine) applyOutcome(ctx context.Context, o outcome) (bool, error) {
	if o.Status != paystack.StatusSuccess && o.Status != paystack.StatusFailed && o.Status != paystack.StatusReversed {
		return false, nil
	}

	handled := false
	err := e.repo.Atomic(ctx, func(repo Repository) error {
		s, err := repo.FindForUpdate(ctx, o.Reference, o.TransferCode)
		if errors.Is(err, ErrSettlementNotFound) {
			logger.Warn("No settlement matches transfer", logger.Fields{logger.ReferenceKey: o.Reference, "transfer_code": o.TransferCode})
			return nil
		}
		if err != nil {
			return err
		}
		handled = true

		if s.TransferCode == "" {
			s.TransferCode = o.TransferCode
		}

		switch o.Status {
		case paystack.StatusSuccess:
			if s.Status == StatusFailed {
				logger.Warn("Ignoring success for failed settlement", e.fields(s))
				return nil
			}
			s.TransferResponse = database.JSONMap(o.Payload)
			if s.Status != StatusSuccess {
				now := e.now()
				s.Status = StatusSuccess
				s.SettledAt = &now
				settlementsTotal.WithLabelValues(string(StatusSuccess)).Inc()
				logger.Info("Settlement confirmed", e.fields(s))
			}
			return repo.Save(ctx, s)

		default:
			if s.Status == StatusFailed {
				logger.Debug("Settlement already failed, skipping", e.fields(s, logger.Fields{"status": o.Status}))
				return nil
			}
			if s.Status == StatusSuccess && o.Status == paystack.StatusFailed {
				logger.Warn("Ignoring failure for completed settlement", e.fields(s))
				return nil
			}

			txStatus := wallet.TransactionFailed
			reason := o.Reason
			if o.Status == paystack.StatusReversed {
				txStatus = wallet.TransactionReversed
				if reason == "" {
					reason = "transfer reversed"
				}
			}
			if reason == "" {
				reason = "transfer failed"
			}

			s.Status = StatusFailed
			s.FailureReason = reason
			s.TransferResponse = database.JSONMap(o.Payload)
			if err := repo.Save(ctx, s); err != nil {
				return err
			}
			settlementsTotal.WithLabelValues(string(StatusFailed)).Inc()
			logger.Warn("Settlement failed at provider", e.fields(s, logger.Fields{"status": o.Status, "reason": reason}))

			e.compensate(ctx, repo, s, txStatus, reason)
			return nil
		}
	})
	return handled, err
}

func (e *Engine) fields(s *Settlement, extra ...logger.Fields) logger.Fields {
	f := logger.Fields{
		logger.SettlementIDKey: s.ID.String(),
		logger.ReferenceKey:    s.Reference,
		logger.WalletIDKey:     s.WalletID.String(),
	}
	return logger.Merge(append([]logger.Fields{f}, extra...)...)
}

func usable(w *wallet.Wallet) error {
	if !w.IsActive {
		return wallet.ErrWalletInactive
	}
	if w.IsLocked {
		return wallet.ErrWalletLocked
	}
	return nil
}
