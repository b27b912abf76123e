package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	"github.com/shopspring/decimal"
)

const SignatureHeader = "x-paystack-signature"

const (
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
	EventChargeSuccess    = "charge.success"
)

// Transfer statuses as reported by Paystack.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusReversed = "reversed"
	StatusPending  = "pending"
)

type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type WebhookData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Channel      string `json:"channel"`
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the hex HMAC-SHA512 of body in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a two-decimal currency amount to kobo/cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}
