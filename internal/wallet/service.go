package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/pkg/database"
	"github.com/zjoart/paystack-settlements/pkg/id"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"gorm.io/gorm"
)

const (
	DepositPrefix  = "DEP"
	TransferPrefix = "TRF"
)

// Provider is the slice of the Paystack API the wallet service needs.
type Provider interface {
	CreateTransferRecipient(ctx context.Context, req paystack.RecipientRequest) (string, error)
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error)
}

type FeeCalculator interface {
	Calculate(ctx context.Context, req fee.Request) fee.Result
}

type Config struct {
	Currency       string
	MinimumBalance decimal.Decimal
	CallbackURL    string
	Channels       []string
}

type Service struct {
	cfg      Config
	repo     Repository
	provider Provider
	fees     FeeCalculator
}

func NewService(cfg Config, repo Repository, provider Provider, fees FeeCalculator) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &Service{cfg: cfg, repo: repo, provider: provider, fees: fees}
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on
// first access.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	w, err := s.repo.GetWalletByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: s.cfg.Currency,
		IsActive: true,
	}
	if err := s.repo.CreateWallet(ctx, w); err != nil {
		// lost a creation race with a concurrent request
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.repo.GetWalletByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	logger.Info("Wallet created", logger.Fields{logger.WalletIDKey: w.ID.String(), "user_id": userID.String()})
	return w, nil
}

func (s *Service) GetWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error) {
	return s.repo.GetWalletByID(ctx, walletID)
}

func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int64, error) {
	if _, err := s.repo.GetWalletByID(ctx, filter.WalletID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListTransactions(ctx, filter)
}

type BankAccountRequest struct {
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	IsDefault     bool   `json:"is_default"`
}

// AddBankAccount registers the account as a Paystack transfer recipient and
// stores the returned recipient code.
func (s *Service) AddBankAccount(ctx context.Context, walletID uuid.UUID, req BankAccountRequest) (*BankAccount, error) {
	if req.BankCode == "" || req.AccountNumber == "" {
		return nil, ErrInvalidBankAccount
	}
	if _, err := s.repo.GetWalletByID(ctx, walletID); err != nil {
		return nil, err
	}

	code, err := s.provider.CreateTransferRecipient(ctx, paystack.RecipientRequest{
		Type:          "nuban",
		Name:          req.AccountName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Currency:      s.cfg.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer recipient: %w", err)
	}

	account := &BankAccount{
		WalletID:      walletID,
		BankName:      req.BankName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		RecipientCode: code,
		IsDefault:     req.IsDefault,
		IsActive:      true,
	}
	if err := s.repo.CreateBankAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save bank account: %w", err)
	}

	logger.Info("Bank account added", logger.Fields{logger.WalletIDKey: walletID.String(), "recipient_code": code})
	return account, nil
}

type TransferRequest struct {
	RecipientWalletID uuid.UUID       `json:"recipient_wallet_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
}

// lockPair locks both wallets in ascending ID order so opposing transfers
// between the same pair cannot deadlock.
func lockPair(ctx context.Context, repo Repository, senderID, recipientID uuid.UUID) (*Wallet, *Wallet, error) {
	first, second := senderID, recipientID
	if bytes.Compare(recipientID[:], senderID[:]) < 0 {
		first, second = recipientID, senderID
	}

	a, err := repo.GetWalletForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := repo.GetWalletForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == senderID {
		return a, b, nil
	}
	return b, a, nil
}

// Transfer moves funds between wallets. The sender is debited what the
// customer pays and the recipient credited what the merchant receives, with
// one ledger row on each side.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req TransferRequest) (*Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if senderID == req.RecipientWalletID {
		return nil, ErrSelfTransfer
	}

	quote := s.fees.Calculate(ctx, fee.Request{
		Amount:   req.Amount,
		Type:     fee.TypeTransfer,
		Channel:  fee.ChannelWallet,
		WalletID: &senderID,
	})

	var debit Transaction
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		sender, recipient, err := lockPair(ctx, repo, senderID, req.RecipientWalletID)
		if err != nil {
			return err
		}
		if err := usable(sender); err != nil {
			return err
		}
		if err := usable(recipient); err != nil {
			return err
		}

		if err := repo.DebitWallet(ctx, sender.ID, quote.CustomerPays, s.cfg.MinimumBalance); err != nil {
			return err
		}
		if err := repo.CreditWallet(ctx, recipient.ID, quote.MerchantReceives); err != nil {
			return err
		}

		now := time.Now()
		ref := id.Reference(TransferPrefix, now)
		debit = Transaction{
			WalletID:          sender.ID,
			Reference:         ref,
			Type:              TransactionTransfer,
			Amount:            req.Amount,
			Fees:              quote.FeeAmount,
			Status:            TransactionSuccess,
			PaymentChannel:    string(fee.ChannelWallet),
			RecipientWalletID: &recipient.ID,
			Description:       req.Description,
			CompletedAt:       &now,
		}
		if err := repo.CreateTransaction(ctx, &debit); err != nil {
			return err
		}

		credit := Transaction{
			WalletID:             recipient.ID,
			Reference:            ref + "-CR",
			Type:                 TransactionTransfer,
			Amount:               quote.MerchantReceives,
			Status:               TransactionSuccess,
			PaymentChannel:       string(fee.ChannelWallet),
			RelatedTransactionID: &debit.ID,
			Description:          fmt.Sprintf("Transfer from wallet %s", sender.ID),
			CompletedAt:          &now,
		}
		return repo.CreateTransaction(ctx, &credit)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Wallet transfer completed", logger.Fields{
		logger.WalletIDKey:  senderID.String(),
		logger.ReferenceKey: debit.Reference,
		"recipient":         req.RecipientWalletID.String(),
		"amount":            req.Amount.String(),
		"fee":               quote.FeeAmount.String(),
	})
	return &debit, nil
}

type DepositRequest struct {
	Email   string          `json:"email"`
	Amount  decimal.Decimal `json:"amount"`
	Channel fee.Channel     `json:"channel"`
}

type DepositResult struct {
	Transaction   *Transaction            `json:"transaction"`
	Authorization *paystack.Authorization `json:"authorization"`
	Fee           fee.Result              `json:"fee"`
}

// InitializeDeposit opens a Paystack checkout for the customer's share of
// the deposit and records a pending deposit worth what the wallet will be
// credited.
func (s *Service) InitializeDeposit(ctx context.Context, walletID uuid.UUID, req DepositRequest) (*DepositResult, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Email == "" {
		return nil, ErrEmailRequired
	}
	w, err := s.repo.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if err := usable(w); err != nil {
		return nil, err
	}

	channel := req.Channel
	if channel == "" {
		channel = fee.ChannelCard
	}
	quote := s.fees.Calculate(ctx, fee.Request{
		Amount:   req.Amount,
		Type:     fee.TypeDeposit,
		Channel:  channel,
		WalletID: &walletID,
	})

	ref := id.Reference(DepositPrefix, time.Now())
	auth, err := s.provider.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      paystack.ToMinorUnits(quote.CustomerPays),
		Reference:   ref,
		Currency:    w.Currency,
		CallbackURL: s.cfg.CallbackURL,
		Channels:    s.cfg.Channels,
		Metadata:    map[string]interface{}{"wallet_id": walletID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize deposit: %w", err)
	}

	tx := &Transaction{
		WalletID:          walletID,
		Reference:         ref,
		Type:              TransactionDeposit,
		Amount:            quote.MerchantReceives,
		Fees:              quote.FeeAmount,
		Status:            TransactionPending,
		PaymentChannel:    string(channel),
		PaystackReference: auth.Reference,
		Description:       "Wallet Deposit via Paystack",
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to register deposit: %w", err)
	}

	logger.Info("Deposit initialized", logger.Fields{logger.WalletIDKey: walletID.String(), logger.ReferenceKey: ref})
	return &DepositResult{Transaction: tx, Authorization: auth, Fee: quote}, nil
}

// ConfirmDeposit credits a pending deposit exactly once. It reports false
// when the deposit had already been confirmed.
func (s *Service) ConfirmDeposit(ctx context.Context, reference string, payload map[string]interface{}) (bool, error) {
	credited := false
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		tx, err := repo.GetTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if tx.Type != TransactionDeposit {
			return ErrNotDeposit
		}

		if _, err := repo.GetWalletForUpdate(ctx, tx.WalletID); err != nil {
			return err
		}
		// re-read under the wallet lock so concurrent deliveries serialize
		tx, err = repo.GetTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if tx.Status != TransactionPending {
			return nil
		}

		if err := repo.CreditWallet(ctx, tx.WalletID, tx.Amount); err != nil {
			return err
		}

		now := time.Now()
		tx.Status = TransactionSuccess
		tx.CompletedAt = &now
		tx.PaystackResponse = database.JSONMap(payload)
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if credited {
		logger.Info("Deposit confirmed", logger.Fields{logger.ReferenceKey: reference})
	} else {
		logger.Debug("Deposit already settled, ignoring", logger.Fields{logger.ReferenceKey: reference})
	}
	return credited, nil
}

func usable(w *Wallet) error {
	if !w.IsActive {
		return ErrWalletInactive
	}
	if w.IsLocked {
		return ErrWalletLocked
	}
	return nil
}
