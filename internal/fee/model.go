package fee

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Bearer string

const (
	BearerCustomer Bearer = "customer"
	BearerMerchant Bearer = "merchant"
	BearerPlatform Bearer = "platform"
	BearerSplit    Bearer = "split"
)

func (b Bearer) Valid() bool {
	switch b {
	case BearerCustomer, BearerMerchant, BearerPlatform, BearerSplit:
		return true
	}
	return false
}

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
)

type Channel string

const (
	ChannelCard              Channel = "card"
	ChannelUSSD              Channel = "ussd"
	ChannelBank              Channel = "bank"
	ChannelBankTransfer      Channel = "bank_transfer"
	ChannelInternationalCard Channel = "international_card"
	ChannelDedicatedAccount  Channel = "dedicated_account"
	ChannelWallet            Channel = "wallet"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFlat       Type = "flat"
	TypeHybrid     Type = "hybrid"
	TypeTiered     Type = "tiered"
)

var hundred = decimal.NewFromInt(100)

// Configuration overrides the static tariff. WalletID nil means global, an
// empty PaymentChannels list means every channel.
type Configuration struct {
	ID                   uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Name                 string           `json:"name"`
	WalletID             *uuid.UUID       `gorm:"type:uuid;index" json:"wallet_id,omitempty"`
	TransactionType      TransactionType  `gorm:"not null;index" json:"transaction_type"`
	PaymentChannels      pq.StringArray   `gorm:"type:text[]" json:"payment_channels"`
	FeeType              Type             `gorm:"not null" json:"fee_type"`
	Percentage           decimal.Decimal  `gorm:"type:numeric(7,4);not null;default:0" json:"percentage"`
	FlatFee              decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"flat_fee"`
	CapAmount            *decimal.Decimal `gorm:"type:numeric(20,2)" json:"cap_amount,omitempty"`
	Bearer               Bearer           `gorm:"not null;default:customer" json:"bearer"`
	CustomerSplitPercent decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0" json:"customer_split_percent"`
	MerchantSplitPercent decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0" json:"merchant_split_percent"`
	Priority             int              `gorm:"not null;default:0" json:"priority"`
	IsActive             bool             `gorm:"not null;default:true" json:"is_active"`
	Tiers                []Tier           `gorm:"foreignKey:ConfigurationID;constraint:OnDelete:CASCADE" json:"tiers,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (Configuration) TableName() string { return "fee_configurations" }

type Tier struct {
	ID              uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	ConfigurationID uuid.UUID        `gorm:"type:uuid;index" json:"-"`
	MinAmount       decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"min_amount"`
	MaxAmount       *decimal.Decimal `gorm:"type:numeric(20,2)" json:"max_amount,omitempty"`
	Fee             decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"fee"`
	Percentage      decimal.Decimal  `gorm:"type:numeric(7,4);not null;default:0" json:"percentage"`
}

func (Tier) TableName() string { return "fee_tiers" }

var (
	ErrInvalidFeeType    = errors.New("invalid fee type")
	ErrInvalidBearer     = errors.New("invalid fee bearer")
	ErrNegativeFee       = errors.New("fee values cannot be negative")
	ErrSplitNot100       = errors.New("split percentages must sum to 100")
	ErrMissingTxType     = errors.New("transaction type is required")
	ErrTieredWithoutTier = errors.New("tiered configuration requires at least one tier")
)

// Validate runs on every save, split percentages are not re-checked when
// calculating.
func (c *Configuration) Validate() error {
	if c.TransactionType == "" {
		return ErrMissingTxType
	}
	switch c.FeeType {
	case TypePercentage, TypeFlat, TypeHybrid:
	case TypeTiered:
		if len(c.Tiers) == 0 {
			return ErrTieredWithoutTier
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFeeType, c.FeeType)
	}
	if c.Bearer != "" && !c.Bearer.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBearer, c.Bearer)
	}
	if c.Percentage.IsNegative() || c.FlatFee.IsNegative() || (c.CapAmount != nil && c.CapAmount.IsNegative()) {
		return ErrNegativeFee
	}
	for _, t := range c.Tiers {
		if t.Fee.IsNegative() || t.Percentage.IsNegative() || t.MinAmount.IsNegative() {
			return ErrNegativeFee
		}
	}
	if c.Bearer == BearerSplit && !c.CustomerSplitPercent.Add(c.MerchantSplitPercent).Equal(hundred) {
		return ErrSplitNot100
	}
	return nil
}

func (c *Configuration) BeforeSave(tx *gorm.DB) error {
	return c.Validate()
}

func (c *Configuration) appliesToChannel(ch Channel) bool {
	if len(c.PaymentChannels) == 0 {
		return true
	}
	for _, p := range c.PaymentChannels {
		if Channel(p) == ch {
			return true
		}
	}
	return false
}

func (c *Configuration) compute(amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch c.FeeType {
	case TypePercentage:
		fee = percentOf(amount, c.Percentage)
	case TypeFlat:
		fee = c.FlatFee
	case TypeHybrid:
		fee = percentOf(amount, c.Percentage).Add(c.FlatFee)
	case TypeTiered:
		fee = tieredFee(amount, c.Tiers)
	}
	if c.CapAmount != nil && c.CapAmount.IsPositive() {
		fee = capAt(fee, *c.CapAmount)
	}
	return fee.Round(2)
}
