package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/internal/wallet/wallettest"
	"gorm.io/gorm"
)

type memRepo struct {
	mu          sync.Mutex
	wallets     *wallettest.Repo
	settlements map[uuid.UUID]Settlement
	schedules   map[uuid.UUID]Schedule
}

func newMemRepo() *memRepo {
	return &memRepo{
		wallets:     wallettest.New(),
		settlements: make(map[uuid.UUID]Settlement),
		schedules:   make(map[uuid.UUID]Schedule),
	}
}

func (r *memRepo) Atomic(ctx context.Context, fn func(repo Repository) error) error {
	walletState := r.wallets.Snapshot()
	r.mu.Lock()
	settlements := copyMap(r.settlements)
	schedules := copyMap(r.schedules)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.wallets.Restore(walletState)
		r.mu.Lock()
		r.settlements, r.schedules = settlements, schedules
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) Wallets() wallet.Repository { return r.wallets }

func (r *memRepo) Create(ctx context.Context, s *Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.settlements {
		if existing.Reference == s.Reference {
			return gorm.ErrDuplicatedKey
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	r.settlements[s.ID] = *s
	return nil
}

func (r *memRepo) Save(ctx context.Context, s *Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = time.Now()
	r.settlements[s.ID] = *s
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return nil, ErrSettlementNotFound
	}
	return &s, nil
}

func (r *memRepo) GetByReference(ctx context.Context, ref string) (*Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.settlements {
		if s.Reference == ref {
			return &s, nil
		}
	}
	return nil, ErrSettlementNotFound
}

func (r *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) FindForUpdate(ctx context.Context, reference, transferCode string) (*Settlement, error) {
	if reference != "" {
		if s, err := r.GetByReference(ctx, reference); err == nil {
			return s, nil
		}
	}
	if transferCode == "" {
		return nil, ErrSettlementNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.settlements {
		if s.TransferCode == transferCode {
			return &s, nil
		}
	}
	return nil, ErrSettlementNotFound
}

func (r *memRepo) List(ctx context.Context, filter Filter) ([]Settlement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Settlement
	for _, s := range r.settlements {
		if filter.WalletID != nil && s.WalletID != *filter.WalletID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *memRepo) CreateSchedule(ctx context.Context, s *Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.schedules[s.ID] = *s
	return nil
}

func (r *memRepo) RecordScheduleRun(ctx context.Context, id uuid.UUID, last time.Time, next *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	s.LastSettlement = &last
	if next != nil {
		n := *next
		s.NextSettlement = &n
	}
	r.schedules[id] = s
	return nil
}

func (r *memRepo) DeactivateSchedule(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	s.IsActive = false
	r.schedules[id] = s
	return nil
}

func (r *memRepo) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &s, nil
}

func (r *memRepo) ListSchedules(ctx context.Context, walletID uuid.UUID) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.WalletID == walletID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) ListDueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.IsActive && s.Type.TimeBased() && s.NextSettlement != nil && !s.NextSettlement.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) ListThresholdSchedules(ctx context.Context) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.IsActive && s.Type == ScheduleThreshold && s.AmountThreshold != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// seedAccount adds a wallet holding balance with a payable bank account.
func (r *memRepo) seedAccount(balance string, recipient string) (wallet.Wallet, wallet.BankAccount) {
	w := r.wallets.AddWallet(d(balance))
	account := wallet.BankAccount{WalletID: w.ID, BankCode: "058", AccountNumber: "0123456789", RecipientCode: recipient, IsActive: true}
	_ = r.wallets.CreateBankAccount(context.Background(), &account)
	return w, account
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (*paystack.Transfer, error) {
	args := m.Called(ctx, req)
	tr, _ := args.Get(0).(*paystack.Transfer)
	return tr, args.Error(1)
}

func (m *mockGateway) VerifyTransfer(ctx context.Context, reference string) (*paystack.Transfer, error) {
	args := m.Called(ctx, reference)
	tr, _ := args.Get(0).(*paystack.Transfer)
	return tr, args.Error(1)
}

func transfer(code, status string) *paystack.Transfer {
	return &paystack.Transfer{
		TransferCode: code,
		Status:       status,
		Raw:          map[string]interface{}{"transfer_code": code, "status": status},
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func zeroFees() FeeCalculator {
	return fee.NewCalculator(fee.Config{DefaultBearer: fee.BearerCustomer}, nil)
}
