package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Atomic runs fn in one database transaction. The Repository handed to
	// fn, and its Wallets(), share that transaction. Nested calls are
	// savepoints.
	Atomic(ctx context.Context, fn func(repo Repository) error) error
	Wallets() wallet.Repository

	Create(ctx context.Context, s *Settlement) error
	Save(ctx context.Context, s *Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error)
	GetByReference(ctx context.Context, ref string) (*Settlement, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Settlement, error)
	// FindForUpdate locks the settlement matching reference, falling back to
	// transferCode.
	FindForUpdate(ctx context.Context, reference, transferCode string) (*Settlement, error)
	List(ctx context.Context, filter Filter) ([]Settlement, int64, error)

	CreateSchedule(ctx context.Context, s *Schedule) error
	// RecordScheduleRun writes only last_settlement and, when next is
	// non-nil, next_settlement, leaving is_active and the rest untouched.
	RecordScheduleRun(ctx context.Context, id uuid.UUID, last time.Time, next *time.Time) error
	DeactivateSchedule(ctx context.Context, id uuid.UUID) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)
	ListSchedules(ctx context.Context, walletID uuid.UUID) ([]Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
	ListThresholdSchedules(ctx context.Context) ([]Schedule, error)
}

type repository struct {
	db      *gorm.DB
	loc     *time.Location
	wallets wallet.Repository
}

// NewRepository stores settlements and schedules in db. loc is the
// settlement timezone handed to the wallet repository.
func NewRepository(db *gorm.DB, loc *time.Location) Repository {
	return &repository{db: db, loc: loc, wallets: wallet.NewRepository(db, loc)}
}

func (r *repository) Atomic(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx, loc: r.loc, wallets: wallet.NewRepository(tx, r.loc)})
	})
}

func (r *repository) Wallets() wallet.Repository {
	return r.wallets
}

func (r *repository) Create(ctx context.Context, s *Settlement) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *repository) Save(ctx context.Context, s *Settlement) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	var s Settlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err, ErrSettlementNotFound)
	}
	return &s, nil
}

func (r *repository) GetByReference(ctx context.Context, ref string) (*Settlement, error) {
	var s Settlement
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&s).Error; err != nil {
		return nil, notFound(err, ErrSettlementNotFound)
	}
	return &s, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	var s Settlement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, ErrSettlementNotFound)
	}
	return &s, nil
}

func (r *repository) FindForUpdate(ctx context.Context, reference, transferCode string) (*Settlement, error) {
	var s Settlement
	if reference != "" {
		err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference = ?", reference).First(&s).Error
		if err == nil {
			return &s, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if transferCode != "" {
		err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transfer_code = ?", transferCode).First(&s).Error
		if err == nil {
			return &s, nil
		}
		return nil, notFound(err, ErrSettlementNotFound)
	}
	return nil, ErrSettlementNotFound
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Settlement, int64, error) {
	q := r.db.WithContext(ctx).Model(&Settlement{})
	if filter.WalletID != nil {
		q = q.Where("wallet_id = ?", *filter.WalletID)
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

	var out []Settlement
	err := q.Order("created_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&out).Error
	return out, count, err
}

func (r *repository) CreateSchedule(ctx context.Context, s *Schedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *repository) RecordScheduleRun(ctx context.Context, id uuid.UUID, last time.Time, next *time.Time) error {
	updates := map[string]interface{}{
		"last_settlement": last,
		"updated_at":      time.Now(),
	}
	if next != nil {
		updates["next_settlement"] = *next
	}
	return r.scheduleUpdate(ctx, id, updates)
}

func (r *repository) DeactivateSchedule(ctx context.Context, id uuid.UUID) error {
	return r.scheduleUpdate(ctx, id, map[string]interface{}{
		"is_active":  false,
		"updated_at": time.Now(),
	})
}

func (r *repository) scheduleUpdate(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&Schedule{}).Where("id = ?", id).UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *repository) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	var s Schedule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err, ErrScheduleNotFound)
	}
	return &s, nil
}

func (r *repository) ListSchedules(ctx context.Context, walletID uuid.UUID) ([]Schedule, error) {
	var out []Schedule
	err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

func (r *repository) ListDueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	var out []Schedule
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND schedule_type IN ? AND next_settlement <= ?", true,
			[]ScheduleType{ScheduleDaily, ScheduleWeekly, ScheduleMonthly}, now).
		Order("next_settlement asc").
		Find(&out).Error
	return out, err
}

func (r *repository) ListThresholdSchedules(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND schedule_type = ? AND amount_threshold IS NOT NULL", true, ScheduleThreshold).
		Find(&out).Error
	return out, err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
