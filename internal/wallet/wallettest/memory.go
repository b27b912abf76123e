// Package wallettest provides an in-memory wallet.Repository for tests.
package wallettest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/internal/wallet"
)

// Repo keeps wallets, ledger entries and bank accounts in maps. Atomic
// snapshots state and restores it when fn fails, so nesting behaves like
// savepoints.
type Repo struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]wallet.Wallet
	transactions map[uuid.UUID]wallet.Transaction
	accounts     map[uuid.UUID]wallet.BankAccount

	// CreditErr, when set, is returned by CreditWallet.
	CreditErr error
	// Locked records GetWalletForUpdate calls in order.
	Locked []uuid.UUID
	// Location and Now drive the daily debit counters. They default to UTC
	// and time.Now.
	Location *time.Location
	Now      func() time.Time
}

func New() *Repo {
	return &Repo{
		wallets:      make(map[uuid.UUID]wallet.Wallet),
		transactions: make(map[uuid.UUID]wallet.Transaction),
		accounts:     make(map[uuid.UUID]wallet.BankAccount),
	}
}

type State struct {
	wallets      map[uuid.UUID]wallet.Wallet
	transactions map[uuid.UUID]wallet.Transaction
	accounts     map[uuid.UUID]wallet.BankAccount
}

func (r *Repo) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		wallets:      copyMap(r.wallets),
		transactions: copyMap(r.transactions),
		accounts:     copyMap(r.accounts),
	}
}

func (r *Repo) Restore(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets = s.wallets
	r.transactions = s.transactions
	r.accounts = s.accounts
}

func (r *Repo) Atomic(ctx context.Context, fn func(repo wallet.Repository) error) error {
	snap := r.Snapshot()
	if err := fn(r); err != nil {
		r.Restore(snap)
		return err
	}
	return nil
}

// AddWallet seeds a wallet with the given balance and returns it.
func (r *Repo) AddWallet(balance decimal.Decimal) wallet.Wallet {
	w := wallet.Wallet{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Balance:   balance,
		Currency:  "NGN",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.wallets[w.ID] = w
	r.mu.Unlock()
	return w
}

// Balance returns the stored balance, or zero for an unknown wallet.
func (r *Repo) Balance(id uuid.UUID) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallets[id].Balance
}

// Transactions returns every ledger entry for the wallet, oldest first.
func (r *Repo) Transactions(walletID uuid.UUID) []wallet.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wallet.Transaction
	for _, tx := range r.transactions {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Repo) CreateWallet(ctx context.Context, w *wallet.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	r.wallets[w.ID] = *w
	return nil
}

func (r *Repo) GetWalletByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return &w, nil
}

func (r *Repo) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, wallet.ErrWalletNotFound
}

func (r *Repo) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	r.mu.Lock()
	r.Locked = append(r.Locked, id)
	r.mu.Unlock()
	return r.GetWalletByID(ctx, id)
}

func (r *Repo) CreditWallet(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if r.CreditErr != nil {
		return r.CreditErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return wallet.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now()
	r.wallets[id] = w
	return nil
}

func (r *Repo) DebitWallet(ctx context.Context, id uuid.UUID, amount, minBalance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok || w.IsLocked || w.Balance.Sub(amount).LessThan(minBalance) {
		return wallet.ErrInsufficientBalance
	}

	now, loc := time.Now, time.UTC
	if r.Now != nil {
		now = r.Now
	}
	if r.Location != nil {
		loc = r.Location
	}
	today := wallet.BusinessDay(now(), loc)
	if w.LastTransactionDate != nil && w.LastTransactionDate.Equal(today) {
		w.DailyTransactionCount++
		w.DailyTransactionAmount = w.DailyTransactionAmount.Add(amount)
	} else {
		w.DailyTransactionCount = 1
		w.DailyTransactionAmount = amount
	}
	w.LastTransactionDate = &today
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now()
	r.wallets[id] = w
	return nil
}

func (r *Repo) CreateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	// strictly increasing timestamps keep Transactions ordering stable
	tx.CreatedAt = time.Now().Add(time.Duration(len(r.transactions)) * time.Nanosecond)
	tx.UpdatedAt = tx.CreatedAt
	r.transactions[tx.ID] = *tx
	return nil
}

func (r *Repo) GetTransactionByID(ctx context.Context, id uuid.UUID) (*wallet.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok {
		return nil, wallet.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r *Repo) GetTransactionByReference(ctx context.Context, ref string) (*wallet.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.Reference == ref {
			return &tx, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (r *Repo) SaveTransaction(ctx context.Context, tx *wallet.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[tx.ID]; !ok {
		return wallet.ErrTransactionNotFound
	}
	tx.UpdatedAt = time.Now()
	r.transactions[tx.ID] = *tx
	return nil
}

func (r *Repo) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status wallet.TransactionStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok {
		return wallet.ErrTransactionNotFound
	}
	now := time.Now()
	tx.Status = status
	tx.FailureReason = reason
	tx.CompletedAt = &now
	r.transactions[id] = tx
	return nil
}

func (r *Repo) ListTransactions(ctx context.Context, filter wallet.TransactionFilter) ([]wallet.Transaction, int64, error) {
	all := r.Transactions(filter.WalletID)
	var matched []wallet.Transaction
	for i := len(all) - 1; i >= 0; i-- {
		tx := all[i]
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.From != nil && tx.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, tx)
	}

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *Repo) CreateBankAccount(ctx context.Context, account *wallet.BankAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = time.Now()
	r.accounts[account.ID] = *account
	return nil
}

func (r *Repo) GetBankAccount(ctx context.Context, id uuid.UUID) (*wallet.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, wallet.ErrBankAccountNotFound
	}
	return &a, nil
}

func (r *Repo) ListBankAccounts(ctx context.Context, walletID uuid.UUID) ([]wallet.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wallet.BankAccount
	for _, a := range r.accounts {
		if a.WalletID == walletID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
