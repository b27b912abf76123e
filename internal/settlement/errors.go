package settlement

import (
	"errors"
	"fmt"
)

var (
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrScheduleNotFound    = errors.New("settlement schedule not found")
	ErrInvalidAmount       = errors.New("settlement amount must be positive")
	ErrMissingRecipient    = errors.New("bank account has no transfer recipient code")
	ErrBankAccountMismatch = errors.New("bank account does not belong to wallet")
	ErrNotPending          = errors.New("only pending settlements can be processed")
	ErrNotFailed           = errors.New("only failed settlements can be retried")
	ErrNoTransferCode      = errors.New("settlement has no transfer code")
	ErrInvalidSchedule     = errors.New("invalid settlement schedule")
)

// CompensationResult reports whether the wallet was credited back after a
// failed settlement.
type CompensationResult struct {
	Applied bool
	Err     error
}

// SettlementError is returned once a settlement mutation has been attempted.
// Compensation has already run by the time the caller sees it.
type SettlementError struct {
	Reference    string
	Op           string
	Err          error
	Compensation CompensationResult
}

func (e *SettlementError) Error() string {
	msg := fmt.Sprintf("settlement %s: %s failed: %v", e.Reference, e.Op, e.Err)
	if e.Compensation.Err != nil {
		msg += fmt.Sprintf(" (compensation failed: %v)", e.Compensation.Err)
	}
	return msg
}

func (e *SettlementError) Unwrap() error { return e.Err }

func invalidSchedule(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...))
}
