package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/database"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Settlement is one disbursement attempt from a wallet to a bank account.
// success and failed are terminal except through an explicit retry.
type Settlement struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	WalletID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Wallet           *wallet.Wallet   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	BankAccountID    uuid.UUID        `gorm:"type:uuid;not null" json:"bank_account_id"`
	ScheduleID       *uuid.UUID       `gorm:"type:uuid;index" json:"schedule_id,omitempty"`
	TransactionID    *uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"transaction_id,omitempty"`
	Amount           decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Fees             decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"fees"`
	Currency         string           `gorm:"not null;default:NGN" json:"currency"`
	Status           Status           `gorm:"not null;index" json:"status"`
	Reference        string           `gorm:"uniqueIndex;not null" json:"reference"`
	TransferCode     string           `gorm:"index" json:"transfer_code,omitempty"`
	TransferResponse database.JSONMap `json:"transfer_response,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Metadata         database.JSONMap `json:"metadata,omitempty"`
	SettledAt        *time.Time       `json:"settled_at,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type ScheduleType string

const (
	ScheduleDaily     ScheduleType = "daily"
	ScheduleWeekly    ScheduleType = "weekly"
	ScheduleMonthly   ScheduleType = "monthly"
	ScheduleThreshold ScheduleType = "threshold"
	ScheduleManual    ScheduleType = "manual"
)

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleThreshold, ScheduleManual:
		return true
	}
	return false
}

func (t ScheduleType) TimeBased() bool {
	return t == ScheduleDaily || t == ScheduleWeekly || t == ScheduleMonthly
}

// Schedule is a recurring or balance-threshold disbursement policy for a
// (wallet, bank account) pair. DayOfWeek counts from Monday (0) to Sunday
// (6). TimeOfDay is "HH:MM" in the scheduler's timezone.
type Schedule struct {
	ID              uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	WalletID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Wallet          *wallet.Wallet   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	BankAccountID   uuid.UUID        `gorm:"type:uuid;not null" json:"bank_account_id"`
	Type            ScheduleType     `gorm:"column:schedule_type;not null;index" json:"schedule_type"`
	MinimumAmount   decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"minimum_amount"`
	MaximumAmount   *decimal.Decimal `gorm:"type:numeric(20,2)" json:"maximum_amount,omitempty"`
	AmountThreshold *decimal.Decimal `gorm:"type:numeric(20,2)" json:"amount_threshold,omitempty"`
	DayOfWeek       *int             `json:"day_of_week,omitempty"`
	DayOfMonth      *int             `json:"day_of_month,omitempty"`
	TimeOfDay       string           `json:"time_of_day,omitempty"`
	LastSettlement  *time.Time       `json:"last_settlement,omitempty"`
	NextSettlement  *time.Time       `gorm:"index" json:"next_settlement,omitempty"`
	IsActive        bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Schedule) TableName() string {
	return "settlement_schedules"
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	WalletID *uuid.UUID
	Status   Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
