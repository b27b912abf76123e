package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/pkg/database"
)

type Wallet struct {
	ID                     uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID                 uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance                decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency               string          `gorm:"not null;default:NGN" json:"currency"`
	IsActive               bool            `gorm:"not null;default:true" json:"is_active"`
	IsLocked               bool            `gorm:"not null;default:false" json:"is_locked"`
	DailyTransactionCount  int             `gorm:"not null;default:0" json:"daily_transaction_count"`
	DailyTransactionAmount decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"daily_transaction_amount"`
	LastTransactionDate    *time.Time      `gorm:"type:date" json:"last_transaction_date,omitempty"`
	PaystackCustomerCode   string          `json:"paystack_customer_code,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type BankAccount struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	WalletID      uuid.UUID `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Wallet        *Wallet   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `gorm:"not null" json:"bank_code"`
	AccountNumber string    `gorm:"not null" json:"account_number"`
	AccountName   string    `json:"account_name"`
	RecipientCode string    `gorm:"index" json:"recipient_code"`
	IsDefault     bool      `gorm:"not null;default:false" json:"is_default"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
	TransactionRefund     TransactionType = "refund"
	TransactionReversal   TransactionType = "reversal"
)

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionSuccess  TransactionStatus = "success"
	TransactionFailed   TransactionStatus = "failed"
	TransactionReversed TransactionStatus = "reversed"
)

// Transaction is a ledger entry. Once CompletedAt is set only webhook driven
// status corrections touch it.
type Transaction struct {
	ID                   uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	WalletID             uuid.UUID         `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Wallet               *Wallet           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Reference            string            `gorm:"uniqueIndex;not null" json:"reference"`
	Type                 TransactionType   `gorm:"not null;index" json:"type"`
	Amount               decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Fees                 decimal.Decimal   `gorm:"type:numeric(20,2);not null;default:0" json:"fees"`
	Status               TransactionStatus `gorm:"not null;index" json:"status"`
	PaymentChannel       string            `json:"payment_channel,omitempty"`
	RecipientWalletID    *uuid.UUID        `gorm:"type:uuid" json:"recipient_wallet_id,omitempty"`
	BankAccountID        *uuid.UUID        `gorm:"type:uuid" json:"bank_account_id,omitempty"`
	RelatedTransactionID *uuid.UUID        `gorm:"type:uuid" json:"related_transaction_id,omitempty"`
	PaystackReference    string            `gorm:"index" json:"paystack_reference,omitempty"`
	PaystackResponse     database.JSONMap  `json:"paystack_response,omitempty"`
	Description          string            `json:"description"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// TransactionFilter narrows ListTransactions. Zero values are ignored.
type TransactionFilter struct {
	WalletID uuid.UUID
	Type     TransactionType
	Status   TransactionStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
