package fee

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/paystack-settlements/pkg/config"
	"github.com/zjoart/paystack-settlements/pkg/logger"
)

// Rule is a percentage + flat tariff line. A zero Cap or WaiverThreshold
// disables that part of the rule.
type Rule struct {
	Percentage      decimal.Decimal
	FlatFee         decimal.Decimal
	Cap             decimal.Decimal
	WaiverThreshold decimal.Decimal
}

func (r Rule) apply(amount decimal.Decimal) decimal.Decimal {
	fee := percentOf(amount, r.Percentage)
	if r.WaiverThreshold.IsZero() || amount.GreaterThanOrEqual(r.WaiverThreshold) {
		fee = fee.Add(r.FlatFee)
	}
	if r.Cap.IsPositive() {
		fee = capAt(fee, r.Cap)
	}
	return fee.Round(2)
}

type Config struct {
	DepositEnabled    bool
	WithdrawalEnabled bool
	TransferEnabled   bool

	DefaultBearer        Bearer
	SplitCustomerPercent decimal.Decimal
	SplitMerchantPercent decimal.Decimal

	Local         Rule
	International Rule
	Dedicated     Rule
	Wallet        Rule
	TransferTiers []Tier
}

func NewConfig(s config.FeeSettings) Config {
	var tiers []Tier
	for i, f := range s.TransferTierFees {
		t := Tier{Fee: f}
		if i < len(s.TransferTierLimits) {
			limit := s.TransferTierLimits[i]
			t.MaxAmount = &limit
		}
		tiers = append(tiers, t)
	}

	bearer := Bearer(s.DefaultBearer)
	if !bearer.Valid() {
		bearer = BearerCustomer
	}

	return Config{
		DepositEnabled:       s.DepositFeesEnabled,
		WithdrawalEnabled:    s.WithdrawalFeesEnabled,
		TransferEnabled:      s.TransferFeesEnabled,
		DefaultBearer:        bearer,
		SplitCustomerPercent: s.SplitCustomerPercent,
		SplitMerchantPercent: s.SplitMerchantPercent,
		Local:                Rule{Percentage: s.LocalPercentage, FlatFee: s.LocalFlatFee, Cap: s.LocalCap, WaiverThreshold: s.LocalWaiverThreshold},
		International:        Rule{Percentage: s.IntlPercentage, FlatFee: s.IntlFlatFee, Cap: s.IntlCap},
		Dedicated:            Rule{Percentage: s.DedicatedPercentage, FlatFee: s.DedicatedFlatFee, Cap: s.DedicatedCap},
		Wallet:               Rule{Percentage: s.WalletPercentage, FlatFee: s.WalletFlatFee, Cap: s.WalletCap},
		TransferTiers:        tiers,
	}
}

type Request struct {
	Amount   decimal.Decimal
	Type     TransactionType
	Channel  Channel
	WalletID *uuid.UUID
	// Bearer overrides the configured bearer when set.
	Bearer Bearer
}

type Result struct {
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Bearer           Bearer          `json:"bearer"`
	CustomerPays     decimal.Decimal `json:"customer_pays"`
	MerchantReceives decimal.Decimal `json:"merchant_receives"`
	CustomerFee      decimal.Decimal `json:"customer_fee"`
	MerchantFee      decimal.Decimal `json:"merchant_fee"`
}

// Calculator has no side effects. A nil repository, or any lookup error,
// means the static tariff is used.
type Calculator struct {
	cfg  Config
	repo Repository
}

func NewCalculator(cfg Config, repo Repository) *Calculator {
	return &Calculator{cfg: cfg, repo: repo}
}

func (c *Calculator) Calculate(ctx context.Context, req Request) Result {
	bearer := req.Bearer
	if bearer != "" && !bearer.Valid() {
		bearer = ""
	}

	if !c.enabled(req.Type) {
		if bearer == "" {
			bearer = c.cfg.DefaultBearer
		}
		return c.resolve(req.Amount, decimal.Zero, bearer, c.cfg.SplitCustomerPercent)
	}

	if override := c.lookup(ctx, req); override != nil {
		if bearer == "" {
			bearer = override.Bearer
		}
		if bearer == "" {
			bearer = c.cfg.DefaultBearer
		}
		split := c.cfg.SplitCustomerPercent
		if override.Bearer == BearerSplit {
			split = override.CustomerSplitPercent
		}
		return c.resolve(req.Amount, override.compute(req.Amount), bearer, split)
	}

	if bearer == "" {
		bearer = c.cfg.DefaultBearer
	}
	return c.resolve(req.Amount, c.static(req), bearer, c.cfg.SplitCustomerPercent)
}

func (c *Calculator) enabled(t TransactionType) bool {
	switch t {
	case TypeDeposit:
		return c.cfg.DepositEnabled
	case TypeWithdrawal:
		return c.cfg.WithdrawalEnabled
	case TypeTransfer:
		return c.cfg.TransferEnabled
	}
	return false
}

func (c *Calculator) static(req Request) decimal.Decimal {
	switch req.Type {
	case TypeWithdrawal:
		return tieredFee(req.Amount, c.cfg.TransferTiers).Round(2)
	case TypeTransfer:
		return c.cfg.Wallet.apply(req.Amount)
	}

	switch req.Channel {
	case ChannelInternationalCard:
		return c.cfg.International.apply(req.Amount)
	case ChannelDedicatedAccount:
		return c.cfg.Dedicated.apply(req.Amount)
	default:
		return c.cfg.Local.apply(req.Amount)
	}
}

// lookup ranks wallet+channel, wallet-only, global+channel, global-only,
// then priority.
func (c *Calculator) lookup(ctx context.Context, req Request) *Configuration {
	if c.repo == nil {
		return nil
	}

	cfgs, err := c.repo.FindActive(ctx, req.WalletID, req.Type)
	if err != nil {
		logger.Debug("Fee configuration lookup failed, using static tariff", logger.Merge(logger.WithError(err), logger.Fields{"type": req.Type}))
		return nil
	}

	var best *Configuration
	bestRank := 4
	for i := range cfgs {
		cfg := &cfgs[i]
		if !cfg.appliesToChannel(req.Channel) {
			continue
		}
		if cfg.WalletID != nil && (req.WalletID == nil || *cfg.WalletID != *req.WalletID) {
			continue
		}

		rank := 0
		if cfg.WalletID == nil {
			rank += 2
		}
		if len(cfg.PaymentChannels) == 0 {
			rank++
		}

		if best == nil || rank < bestRank || (rank == bestRank && cfg.Priority > best.Priority) {
			best, bestRank = cfg, rank
		}
	}
	return best
}

func (c *Calculator) resolve(amount, fee decimal.Decimal, bearer Bearer, customerSplit decimal.Decimal) Result {
	res := Result{
		OriginalAmount:   amount,
		FeeAmount:        fee,
		NetAmount:        amount.Sub(fee),
		TotalAmount:      amount.Add(fee),
		Bearer:           bearer,
		CustomerPays:     amount,
		MerchantReceives: amount,
		CustomerFee:      decimal.Zero,
		MerchantFee:      decimal.Zero,
	}

	switch bearer {
	case BearerCustomer:
		res.CustomerFee = fee
		res.CustomerPays = amount.Add(fee)
	case BearerMerchant:
		res.MerchantFee = fee
		res.MerchantReceives = amount.Sub(fee)
	case BearerSplit:
		res.CustomerFee = percentOf(fee, customerSplit).Round(2)
		res.MerchantFee = fee.Sub(res.CustomerFee)
		res.CustomerPays = amount.Add(res.CustomerFee)
		res.MerchantReceives = amount.Sub(res.MerchantFee)
	}
	return res
}

// tieredFee walks tiers in ascending max order, open-ended tier last. The
// first tier with no max or max >= amount wins; past the last bound the last
// tier applies.
func tieredFee(amount decimal.Decimal, tiers []Tier) decimal.Decimal {
	if len(tiers) == 0 {
		return decimal.Zero
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].MaxAmount, sorted[j].MaxAmount
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.LessThan(*b)
	})

	chosen := sorted[len(sorted)-1]
	for _, t := range sorted {
		if t.MaxAmount == nil || t.MaxAmount.GreaterThanOrEqual(amount) {
			chosen = t
			break
		}
	}
	return chosen.Fee.Add(percentOf(amount, chosen.Percentage))
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

func capAt(fee, cap decimal.Decimal) decimal.Decimal {
	if fee.GreaterThan(cap) {
		return cap
	}
	return fee
}
