package wallet

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBankAccountNotFound = errors.New("bank account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrWalletLocked        = errors.New("wallet is locked")
	ErrWalletInactive      = errors.New("wallet is inactive")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrNotDeposit          = errors.New("transaction is not a deposit")
	ErrInvalidBankAccount  = errors.New("bank code and account number are required")
	ErrEmailRequired       = errors.New("email is required")
)
