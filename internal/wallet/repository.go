package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Atomic runs fn in one database transaction. Nested calls become
	// savepoints, so an inner failure rolls back only the inner work.
	Atomic(ctx context.Context, fn func(repo Repository) error) error

	CreateWallet(ctx context.Context, wallet *Wallet) error
	GetWalletByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	CreditWallet(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	DebitWallet(ctx context.Context, id uuid.UUID, amount, minBalance decimal.Decimal) error

	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error)
	SaveTransaction(ctx context.Context, tx *Transaction) error
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, reason string) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int64, error)

	CreateBankAccount(ctx context.Context, account *BankAccount) error
	GetBankAccount(ctx context.Context, id uuid.UUID) (*BankAccount, error)
	ListBankAccounts(ctx context.Context, walletID uuid.UUID) ([]BankAccount, error)
}

type repository struct {
	db  *gorm.DB
	loc *time.Location
}

// NewRepository stores wallets in db. Daily debit counters roll over at
// midnight in loc; a nil loc means UTC.
func NewRepository(db *gorm.DB, loc *time.Location) Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &repository{db: db, loc: loc}
}

func (r *repository) Atomic(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx, loc: r.loc})
	})
}

func (r *repository) CreateWallet(ctx context.Context, wallet *Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) GetWalletByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

func (r *repository) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

func (r *repository) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

func (r *repository) CreditWallet(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&Wallet{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// DebitWallet refuses to take the balance below minBalance and rolls the
// daily counters over on the first debit of a new day. Postgres evaluates
// every SET expression against the old row, so the CASE sees the previous
// last_transaction_date.
func (r *repository) DebitWallet(ctx context.Context, id uuid.UUID, amount, minBalance decimal.Decimal) error {
	today := BusinessDay(time.Now(), r.loc)

	res := r.db.WithContext(ctx).Model(&Wallet{}).
		Where("id = ? AND is_locked = ? AND balance - ? >= ?", id, false, amount, minBalance).
		UpdateColumns(map[string]interface{}{
			"balance":                  gorm.Expr("balance - ?", amount),
			"daily_transaction_count":  gorm.Expr("CASE WHEN last_transaction_date = ? THEN daily_transaction_count + 1 ELSE 1 END", today),
			"daily_transaction_amount": gorm.Expr("CASE WHEN last_transaction_date = ? THEN daily_transaction_amount + ? ELSE ? END", today, amount, amount),
			"last_transaction_date":    today,
			"updated_at":               time.Now(),
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// BusinessDay is the calendar date of now in loc, as midnight UTC so it
// round-trips through a date column unchanged.
func BusinessDay(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *repository) CreateTransaction(ctx context.Context, tx *Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &tx, nil
}

func (r *repository) GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&tx).Error; err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &tx, nil
}

func (r *repository) SaveTransaction(ctx context.Context, tx *Transaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *repository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, reason string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
			"completed_at":   now,
		}).Error
}

func (r *repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&Transaction{}).Where("wallet_id = ?", filter.WalletID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var txs []Transaction
	err := q.Order("created_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&txs).Error
	return txs, count, err
}

func (r *repository) CreateBankAccount(ctx context.Context, account *BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) GetBankAccount(ctx context.Context, id uuid.UUID) (*BankAccount, error) {
	var account BankAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, notFound(err, ErrBankAccountNotFound)
	}
	return &account, nil
}

func (r *repository) ListBankAccounts(ctx context.Context, walletID uuid.UUID) ([]BankAccount, error) {
	var accounts []BankAccount
	err := r.db.WithContext(ctx).Where("wallet_id = ? AND is_active = ?", walletID, true).
		Order("created_at desc").
		Find(&accounts).Error
	return accounts, err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
