package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/pkg/logger"
)

// maxMonthDay keeps monthly schedules valid in February.
const maxMonthDay = 28

type Creator interface {
	CreateSettlement(ctx context.Context, req CreateRequest) (*Settlement, error)
}

// Locker guards a scheduler pass across replicas.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
}

type SchedulerConfig struct {
	MinimumBalance decimal.Decimal
	Location       *time.Location
	LockKey        string
	LockTTL        time.Duration
}

type Scheduler struct {
	cfg     SchedulerConfig
	repo    Repository
	creator Creator
	locker  Locker
}

func NewScheduler(cfg SchedulerConfig, repo Repository, creator Creator, locker Locker) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "settlement_scheduler_lock"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Scheduler{cfg: cfg, repo: repo, creator: creator, locker: locker}
}

type Summary struct {
	TimeBased int `json:"time_based"`
	Threshold int `json:"threshold"`
	Fired     int `json:"fired"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ProcessDueSettlements fires every due time-based schedule and every
// threshold schedule whose wallet has crossed its threshold. A failing
// schedule is logged and the pass moves on.
func (s *Scheduler) ProcessDueSettlements(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary

	due, err := s.repo.ListDueSchedules(ctx, now)
	if err != nil {
		return sum, fmt.Errorf("failed to list due schedules: %w", err)
	}
	for i := range due {
		sum.TimeBased++
		fired, err := s.runTimeBased(ctx, &due[i], now)
		s.tally(&sum, &due[i], fired, err)
	}

	thresholds, err := s.repo.ListThresholdSchedules(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list threshold schedules: %w", err)
	}
	for i := range thresholds {
		sum.Threshold++
		fired, err := s.runThreshold(ctx, &thresholds[i], now)
		s.tally(&sum, &thresholds[i], fired, err)
	}

	logger.Info("Scheduled settlements processed", logger.Fields{
		"time_based": sum.TimeBased,
		"threshold":  sum.Threshold,
		"fired":      sum.Fired,
		"skipped":    sum.Skipped,
		"failed":     sum.Failed,
	})
	return sum, nil
}

func (s *Scheduler) tally(sum *Summary, sch *Schedule, fired bool, err error) {
	switch {
	case err != nil:
		sum.Failed++
		logger.Error("Scheduled settlement failed", logger.Merge(logger.WithError(err), logger.Fields{
			logger.ScheduleIDKey: sch.ID.String(),
			logger.WalletIDKey:   sch.WalletID.String(),
			"schedule_type":      sch.Type,
		}))
	case fired:
		sum.Fired++
	default:
		sum.Skipped++
	}
}

// runTimeBased advances the schedule whether or not anything was settled.
func (s *Scheduler) runTimeBased(ctx context.Context, sch *Schedule, now time.Time) (bool, error) {
	fired, fireErr := s.fire(ctx, sch)

	last := now
	sch.LastSettlement = &last
	sch.NextSettlement = NextSettlement(*sch, now.In(s.cfg.Location))
	if err := s.repo.RecordScheduleRun(ctx, sch.ID, last, sch.NextSettlement); err != nil {
		return fired, fmt.Errorf("failed to advance schedule: %w", err)
	}
	return fired, fireErr
}

func (s *Scheduler) runThreshold(ctx context.Context, sch *Schedule, now time.Time) (bool, error) {
	w, err := s.repo.Wallets().GetWalletByID(ctx, sch.WalletID)
	if err != nil {
		return false, err
	}
	if sch.AmountThreshold == nil || w.Balance.LessThan(*sch.AmountThreshold) {
		return false, nil
	}

	fired, err := s.fire(ctx, sch)
	if !fired {
		return false, err
	}

	last := now
	sch.LastSettlement = &last
	if saveErr := s.repo.RecordScheduleRun(ctx, sch.ID, last, nil); saveErr != nil && err == nil {
		err = fmt.Errorf("failed to record threshold firing: %w", saveErr)
	}
	return true, err
}

// fire creates a settlement for the schedule's current amount. It reports
// whether a settlement was created, even if processing it then failed.
func (s *Scheduler) fire(ctx context.Context, sch *Schedule) (bool, error) {
	w, err := s.repo.Wallets().GetWalletByID(ctx, sch.WalletID)
	if err != nil {
		return false, err
	}

	amount := s.CalculateSettlementAmount(w.Balance, *sch)
	if !amount.IsPositive() {
		logger.Debug("Nothing to settle for schedule", logger.Fields{logger.ScheduleIDKey: sch.ID.String(), "balance": w.Balance.String()})
		return false, nil
	}

	scheduleID := sch.ID
	settlement, err := s.creator.CreateSettlement(ctx, CreateRequest{
		WalletID:      sch.WalletID,
		BankAccountID: sch.BankAccountID,
		Amount:        amount,
		Reason:        fmt.Sprintf("Scheduled %s settlement", sch.Type),
		Metadata:      map[string]interface{}{"schedule_id": sch.ID.String()},
		ScheduleID:    &scheduleID,
	})
	return settlement != nil, err
}

// CalculateSettlementAmount settles what sits above the minimum balance,
// nothing if that is below the schedule minimum, and at most the schedule
// maximum.
func (s *Scheduler) CalculateSettlementAmount(balance decimal.Decimal, sch Schedule) decimal.Decimal {
	available := decimal.Max(decimal.Zero, balance.Sub(s.cfg.MinimumBalance))
	if available.LessThan(sch.MinimumAmount) || available.IsZero() {
		return decimal.Zero
	}
	if sch.MaximumAmount != nil && sch.MaximumAmount.IsPositive() && available.GreaterThan(*sch.MaximumAmount) {
		return *sch.MaximumAmount
	}
	return available
}

// NextSettlement returns the first firing strictly after now for time-based
// schedules, in now's location, and nil for the rest.
func NextSettlement(sch Schedule, now time.Time) *time.Time {
	hour, minute := timeOfDay(sch.TimeOfDay)
	loc := now.Location()
	y, m, d := now.Date()

	var next time.Time
	switch sch.Type {
	case ScheduleDaily:
		next = time.Date(y, m, d, hour, minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

	case ScheduleWeekly:
		target := 0
		if sch.DayOfWeek != nil {
			target = *sch.DayOfWeek
		}
		today := (int(now.Weekday()) + 6) % 7
		ahead := target - today
		if ahead < 0 {
			ahead += 7
		}
		next = time.Date(y, m, d+ahead, hour, minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}

	case ScheduleMonthly:
		day := 1
		if sch.DayOfMonth != nil {
			day = *sch.DayOfMonth
		}
		if day > maxMonthDay {
			day = maxMonthDay
		}
		next = time.Date(y, m, day, hour, minute, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, m+1, day, hour, minute, 0, 0, loc)
		}

	default:
		return nil
	}
	return &next
}

func timeOfDay(v string) (int, int) {
	if v == "" {
		return 0, 0
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

type ScheduleRequest struct {
	WalletID        uuid.UUID        `json:"wallet_id"`
	BankAccountID   uuid.UUID        `json:"bank_account_id"`
	Type            ScheduleType     `json:"schedule_type"`
	MinimumAmount   decimal.Decimal  `json:"minimum_amount"`
	MaximumAmount   *decimal.Decimal `json:"maximum_amount"`
	AmountThreshold *decimal.Decimal `json:"amount_threshold"`
	DayOfWeek       *int             `json:"day_of_week"`
	DayOfMonth      *int             `json:"day_of_month"`
	TimeOfDay       string           `json:"time_of_day"`
}

func (s *Scheduler) CreateSchedule(ctx context.Context, req ScheduleRequest) (*Schedule, error) {
	if err := validateSchedule(req); err != nil {
		return nil, err
	}

	wallets := s.repo.Wallets()
	if _, err := wallets.GetWalletByID(ctx, req.WalletID); err != nil {
		return nil, err
	}
	account, err := wallets.GetBankAccount(ctx, req.BankAccountID)
	if err != nil {
		return nil, err
	}
	if account.WalletID != req.WalletID {
		return nil, ErrBankAccountMismatch
	}
	if account.RecipientCode == "" {
		return nil, ErrMissingRecipient
	}

	sch := &Schedule{
		WalletID:        req.WalletID,
		BankAccountID:   req.BankAccountID,
		Type:            req.Type,
		MinimumAmount:   req.MinimumAmount,
		MaximumAmount:   req.MaximumAmount,
		AmountThreshold: req.AmountThreshold,
		DayOfWeek:       req.DayOfWeek,
		DayOfMonth:      req.DayOfMonth,
		TimeOfDay:       req.TimeOfDay,
		IsActive:        true,
	}
	sch.NextSettlement = NextSettlement(*sch, time.Now().In(s.cfg.Location))

	if err := s.repo.CreateSchedule(ctx, sch); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	logger.Info("Settlement schedule created", logger.Fields{
		logger.ScheduleIDKey: sch.ID.String(),
		logger.WalletIDKey:   sch.WalletID.String(),
		"schedule_type":      sch.Type,
	})
	return sch, nil
}

func validateSchedule(req ScheduleRequest) error {
	if !req.Type.Valid() {
		return invalidSchedule("unknown schedule type %q", req.Type)
	}
	if req.MinimumAmount.IsNegative() {
		return invalidSchedule("minimum amount cannot be negative")
	}
	if req.MaximumAmount != nil && req.MaximumAmount.LessThan(req.MinimumAmount) {
		return invalidSchedule("maximum amount is below minimum amount")
	}
	if req.TimeOfDay != "" {
		if _, err := time.Parse("15:04", req.TimeOfDay); err != nil {
			return invalidSchedule("time of day must be HH:MM")
		}
	}

	switch req.Type {
	case ScheduleWeekly:
		if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
			return invalidSchedule("weekly schedules need a day of week between 0 (Monday) and 6")
		}
	case ScheduleMonthly:
		if req.DayOfMonth == nil || *req.DayOfMonth < 1 || *req.DayOfMonth > 31 {
			return invalidSchedule("monthly schedules need a day of month between 1 and 31")
		}
	case ScheduleThreshold:
		if req.AmountThreshold == nil || !req.AmountThreshold.IsPositive() {
			return invalidSchedule("threshold schedules need a positive amount threshold")
		}
	}
	return nil
}

func (s *Scheduler) DeactivateSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sch, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sch.IsActive {
		return sch, nil
	}

	sch.IsActive = false
	if err := s.repo.DeactivateSchedule(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to deactivate schedule: %w", err)
	}

	logger.Info("Settlement schedule deactivated", logger.Fields{logger.ScheduleIDKey: id.String()})
	return sch, nil
}

func (s *Scheduler) ListSchedules(ctx context.Context, walletID uuid.UUID) ([]Schedule, error) {
	return s.repo.ListSchedules(ctx, walletID)
}

// Run triggers a pass on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	logger.Info("Starting settlement scheduler", logger.Fields{"interval": interval.String()})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Settlement scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single pass if this replica wins the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, bool) {
	if s.locker != nil {
		release, ok, err := s.locker.AcquireLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			logger.Warn("Scheduler: Failed to acquire lock", logger.WithError(err))
			return Summary{}, false
		}
		if !ok {
			logger.Debug("Scheduler: Another replica holds the lock, skipping pass")
			return Summary{}, false
		}
		defer release()
	}

	sum, err := s.ProcessDueSettlements(ctx, time.Now())
	if err != nil {
		logger.Error("Scheduler: Pass failed", logger.WithError(err))
	}
	return sum, true
}
