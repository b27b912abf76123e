package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

type Config struct {
	DBUrl          string
	RedisURL       string
	RedisPassword  string
	Port           string
	Host           string
	Env            string
	AllowedOrigins []string

	PaystackSecret   string
	PaystackBaseURL  string
	PaystackTimeout  time.Duration
	PaystackChannels []string
	CallbackURL      string

	Currency          string
	MinimumBalance    decimal.Decimal
	Timezone          string
	DispatchMode      string
	SchedulerInterval time.Duration
	SchedulerLockTTL  time.Duration

	Fees FeeSettings
}

// FeeSettings mirrors the static Paystack tariff. Percentages are whole
// percentages (1.5 means 1.5%).
type FeeSettings struct {
	DepositFeesEnabled    bool
	WithdrawalFeesEnabled bool
	TransferFeesEnabled   bool
	DefaultBearer         string
	SplitCustomerPercent  decimal.Decimal
	SplitMerchantPercent  decimal.Decimal

	LocalPercentage       decimal.Decimal
	LocalFlatFee          decimal.Decimal
	LocalWaiverThreshold  decimal.Decimal
	LocalCap              decimal.Decimal
	IntlPercentage        decimal.Decimal
	IntlFlatFee           decimal.Decimal
	IntlCap               decimal.Decimal
	DedicatedPercentage   decimal.Decimal
	DedicatedFlatFee      decimal.Decimal
	DedicatedCap          decimal.Decimal
	WalletPercentage      decimal.Decimal
	WalletFlatFee         decimal.Decimal
	WalletCap             decimal.Decimal
	TransferTierLimits    []decimal.Decimal
	TransferTierFees      []decimal.Decimal
}

func LoadConfig() Config {
	godotenv.Load()

	return Config{
		DBUrl:          getEnv("DATABASE_URL"),
		RedisURL:       getEnvDefault("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword:  getEnvDefault("REDIS_PASSWORD", ""),
		Port:           getEnvDefault("PORT", "8080"),
		Host:           getEnv("HOST"),
		Env:            getEnvDefault("ENV", "development"),
		AllowedOrigins: strings.Split(getEnvDefault("ALLOWED_ORIGINS", "*"), ","),

		PaystackSecret:   getEnv("PAYSTACK_SECRET"),
		PaystackBaseURL:  getEnvDefault("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackTimeout:  getDuration("PAYSTACK_TIMEOUT", 30*time.Second),
		PaystackChannels: strings.Split(getEnvDefault("PAYSTACK_CHANNELS", "card,bank,ussd,bank_transfer"), ","),
		CallbackURL:      getEnvDefault("PAYSTACK_CALLBACK_URL", ""),

		Currency:          getEnvDefault("WALLET_CURRENCY", "NGN"),
		MinimumBalance:    getDecimal("WALLET_MINIMUM_BALANCE", "0"),
		Timezone:          getEnvDefault("SETTLEMENT_TIMEZONE", "Africa/Lagos"),
		DispatchMode:      getEnvDefault("DISPATCH_MODE", DispatchInline),
		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", 5*time.Minute),
		SchedulerLockTTL:  getDuration("SCHEDULER_LOCK_TTL", 4*time.Minute),

		Fees: FeeSettings{
			DepositFeesEnabled:    getBool("FEES_DEPOSIT_ENABLED", true),
			WithdrawalFeesEnabled: getBool("FEES_WITHDRAWAL_ENABLED", true),
			TransferFeesEnabled:   getBool("FEES_TRANSFER_ENABLED", false),
			DefaultBearer:         getEnvDefault("FEES_DEFAULT_BEARER", "customer"),
			SplitCustomerPercent:  getDecimal("FEES_SPLIT_CUSTOMER_PERCENT", "50"),
			SplitMerchantPercent:  getDecimal("FEES_SPLIT_MERCHANT_PERCENT", "50"),

			LocalPercentage:      getDecimal("FEES_LOCAL_PERCENTAGE", "1.5"),
			LocalFlatFee:         getDecimal("FEES_LOCAL_FLAT", "100"),
			LocalWaiverThreshold: getDecimal("FEES_LOCAL_WAIVER_THRESHOLD", "2500"),
			LocalCap:             getDecimal("FEES_LOCAL_CAP", "2000"),
			IntlPercentage:       getDecimal("FEES_INTL_PERCENTAGE", "3.9"),
			IntlFlatFee:          getDecimal("FEES_INTL_FLAT", "100"),
			IntlCap:              getDecimal("FEES_INTL_CAP", "0"),
			DedicatedPercentage:  getDecimal("FEES_DVA_PERCENTAGE", "1"),
			DedicatedFlatFee:     getDecimal("FEES_DVA_FLAT", "0"),
			DedicatedCap:         getDecimal("FEES_DVA_CAP", "300"),
			WalletPercentage:     getDecimal("FEES_WALLET_PERCENTAGE", "0"),
			WalletFlatFee:        getDecimal("FEES_WALLET_FLAT", "0"),
			WalletCap:            getDecimal("FEES_WALLET_CAP", "0"),
			TransferTierLimits:   getDecimalList("FEES_TRANSFER_TIER_LIMITS", "5000,50000"),
			TransferTierFees:     getDecimalList("FEES_TRANSFER_TIER_FEES", "10,25,50"),
		},
	}
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnvDefault(key, strconv.FormatBool(fallback)))
	if err != nil {
		panic(fmt.Sprintf("%s must be a boolean", key))
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvDefault(key, fallback.String()))
	if err != nil {
		panic(fmt.Sprintf("%s must be a duration", key))
	}
	return d
}

func getDecimal(key, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(getEnvDefault(key, fallback))
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid decimal", key))
	}
	return d
}

func getDecimalList(key, fallback string) []decimal.Decimal {
	raw := getEnvDefault(key, fallback)
	var out []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := decimal.NewFromString(part)
		if err != nil {
			panic(fmt.Sprintf("%s must be a comma separated list of decimals", key))
		}
		out = append(out, d)
	}
	return out
}
