package wallet_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/internal/wallet/wallettest"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateTransferRecipient(ctx context.Context, req paystack.RecipientRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error) {
	args := m.Called(ctx, req)
	auth, _ := args.Get(0).(*paystack.Authorization)
	return auth, args.Error(1)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*wallet.Service, *wallettest.Repo, *mockProvider) {
	repo := wallettest.New()
	provider := new(mockProvider)
	t.Cleanup(func() { provider.AssertExpectations(t) })

	calc := fee.NewCalculator(fee.Config{
		DepositEnabled:  true,
		TransferEnabled: true,
		DefaultBearer:   fee.BearerCustomer,
		Local:           fee.Rule{Percentage: d("1.5"), FlatFee: d("100"), WaiverThreshold: d("2500"), Cap: d("2000")},
		Wallet:          fee.Rule{FlatFee: d("10")},
	}, nil)

	svc := wallet.NewService(wallet.Config{Currency: "NGN", MinimumBalance: decimal.Zero}, repo, provider, calc)
	return svc, repo, provider
}

func TestGetOrCreateWallet(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())
	assert.True(t, first.IsActive)
	assert.Equal(t, "NGN", first.Currency)

	second, err := svc.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestTransfer(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	sender := repo.AddWallet(d("1000"))
	recipient := repo.AddWallet(decimal.Zero)

	tx, err := svc.Transfer(ctx, sender.ID, wallet.TransferRequest{RecipientWalletID: recipient.ID, Amount: d("500")})
	require.NoError(t, err)

	assert.True(t, repo.Balance(sender.ID).Equal(d("490")), "sender pays amount plus fee")
	assert.True(t, repo.Balance(recipient.ID).Equal(d("500")))
	assert.True(t, tx.Fees.Equal(d("10")))
	assert.Equal(t, wallet.TransactionSuccess, tx.Status)

	credits := repo.Transactions(recipient.ID)
	require.Len(t, credits, 1)
	assert.Equal(t, tx.ID, *credits[0].RelatedTransactionID)
}

func TestTransferLocksWalletsInIDOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)
	a := repo.AddWallet(d("1000"))
	b := repo.AddWallet(d("1000"))
	low, high := a, b
	if bytes.Compare(b.ID[:], a.ID[:]) < 0 {
		low, high = b, a
	}

	_, err := svc.Transfer(ctx, high.ID, wallet.TransferRequest{RecipientWalletID: low.ID, Amount: d("100")})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, low.ID, wallet.TransferRequest{RecipientWalletID: high.ID, Amount: d("100")})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{low.ID, high.ID, low.ID, high.ID}, repo.Locked)
	assert.True(t, repo.Balance(low.ID).Equal(d("990")))
	assert.True(t, repo.Balance(high.ID).Equal(d("990")))
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient balance leaves both wallets untouched", func(t *testing.T) {
		svc, repo, _ := newService(t)
		sender := repo.AddWallet(d("100"))
		recipient := repo.AddWallet(decimal.Zero)

		_, err := svc.Transfer(ctx, sender.ID, wallet.TransferRequest{RecipientWalletID: recipient.ID, Amount: d("100")})
		assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
		assert.True(t, repo.Balance(sender.ID).Equal(d("100")))
		assert.True(t, repo.Balance(recipient.ID).IsZero())
		assert.Empty(t, repo.Transactions(sender.ID))
	})

	t.Run("self transfer", func(t *testing.T) {
		svc, repo, _ := newService(t)
		w := repo.AddWallet(d("100"))

		_, err := svc.Transfer(ctx, w.ID, wallet.TransferRequest{RecipientWalletID: w.ID, Amount: d("10")})
		assert.ErrorIs(t, err, wallet.ErrSelfTransfer)
	})

	t.Run("non positive amount", func(t *testing.T) {
		svc, repo, _ := newService(t)
		w := repo.AddWallet(d("100"))

		_, err := svc.Transfer(ctx, w.ID, wallet.TransferRequest{RecipientWalletID: uuid.New(), Amount: d("-1")})
		assert.ErrorIs(t, err, wallet.ErrInvalidAmount)
	})

	t.Run("unknown recipient rolls back", func(t *testing.T) {
		svc, repo, _ := newService(t)
		w := repo.AddWallet(d("100"))

		_, err := svc.Transfer(ctx, w.ID, wallet.TransferRequest{RecipientWalletID: uuid.New(), Amount: d("10")})
		assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
		assert.True(t, repo.Balance(w.ID).Equal(d("100")))
	})
}

func TestAddBankAccount(t *testing.T) {
	svc, repo, provider := newService(t)
	ctx := context.Background()
	w := repo.AddWallet(decimal.Zero)

	provider.On("CreateTransferRecipient", ctx, mock.MatchedBy(func(req paystack.RecipientRequest) bool {
		return req.Type == "nuban" && req.AccountNumber == "0123456789" && req.Currency == "NGN"
	})).Return("RCP_123", nil).Once()

	account, err := svc.AddBankAccount(ctx, w.ID, wallet.BankAccountRequest{BankCode: "058", AccountNumber: "0123456789", AccountName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "RCP_123", account.RecipientCode)

	accounts, err := repo.ListBankAccounts(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAddBankAccountProviderError(t *testing.T) {
	svc, repo, provider := newService(t)
	ctx := context.Background()
	w := repo.AddWallet(decimal.Zero)

	provider.On("CreateTransferRecipient", ctx, mock.Anything).
		Return("", &paystack.APIError{Op: "create recipient", StatusCode: 422, Message: "Invalid account"}).Once()

	_, err := svc.AddBankAccount(ctx, w.ID, wallet.BankAccountRequest{BankCode: "058", AccountNumber: "0000000000"})
	require.Error(t, err)
	assert.True(t, paystack.IsAPIError(err))

	accounts, _ := repo.ListBankAccounts(ctx, w.ID)
	assert.Empty(t, accounts)
}

func TestDepositLifecycle(t *testing.T) {
	svc, repo, provider := newService(t)
	ctx := context.Background()
	w := repo.AddWallet(decimal.Zero)

	// 1.5% of 5000 plus the 100 flat fee
	provider.On("InitializeTransaction", ctx, mock.MatchedBy(func(req paystack.InitializeRequest) bool {
		return req.Amount == 517500 && req.Email == "ada@example.com"
	})).Return(&paystack.Authorization{AuthorizationURL: "https://checkout.paystack.com/x", Reference: "ref"}, nil).Once()

	res, err := svc.InitializeDeposit(ctx, w.ID, wallet.DepositRequest{Email: "ada@example.com", Amount: d("5000")})
	require.NoError(t, err)
	assert.Equal(t, wallet.TransactionPending, res.Transaction.Status)
	assert.True(t, res.Transaction.Amount.Equal(d("5000")))
	assert.True(t, repo.Balance(w.ID).IsZero())

	credited, err := svc.ConfirmDeposit(ctx, res.Transaction.Reference, map[string]interface{}{"status": "success"})
	require.NoError(t, err)
	assert.True(t, credited)
	assert.True(t, repo.Balance(w.ID).Equal(d("5000")))

	credited, err = svc.ConfirmDeposit(ctx, res.Transaction.Reference, nil)
	require.NoError(t, err)
	assert.False(t, credited, "redelivery must not credit twice")
	assert.True(t, repo.Balance(w.ID).Equal(d("5000")))
}

func TestConfirmDepositErrors(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ConfirmDeposit(ctx, "DEP-missing", nil)
	assert.ErrorIs(t, err, wallet.ErrTransactionNotFound)

	w := repo.AddWallet(decimal.Zero)
	tx := &wallet.Transaction{WalletID: w.ID, Reference: "STL1", Type: wallet.TransactionWithdrawal, Amount: d("10"), Status: wallet.TransactionPending}
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	_, err = svc.ConfirmDeposit(ctx, "STL1", nil)
	assert.ErrorIs(t, err, wallet.ErrNotDeposit)
}

func TestConfirmDepositCreditFailureRollsBack(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	w := repo.AddWallet(decimal.Zero)

	tx := &wallet.Transaction{WalletID: w.ID, Reference: "DEP1", Type: wallet.TransactionDeposit, Amount: d("10"), Status: wallet.TransactionPending}
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	repo.CreditErr = errors.New("db down")
	_, err := svc.ConfirmDeposit(ctx, "DEP1", nil)
	require.Error(t, err)

	stored, err := repo.GetTransactionByReference(ctx, "DEP1")
	require.NoError(t, err)
	assert.Equal(t, wallet.TransactionPending, stored.Status)
}
