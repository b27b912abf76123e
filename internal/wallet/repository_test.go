package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/internal/wallet/wallettest"
)

func TestBusinessDay(t *testing.T) {
	lagos := time.FixedZone("WAT", 60*60)
	newYork := time.FixedZone("EST", -5*60*60)

	tests := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "utc",
			now:  time.Date(2025, time.June, 4, 23, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "east of utc is already tomorrow",
			now:  time.Date(2025, time.June, 4, 23, 30, 0, 0, time.UTC),
			loc:  lagos,
			want: time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "west of utc is still yesterday",
			now:  time.Date(2025, time.June, 5, 2, 0, 0, 0, time.UTC),
			loc:  newYork,
			want: time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wallet.BusinessDay(tt.now, tt.loc))
		})
	}
}

func TestDebitWalletDailyCountersFollowLocation(t *testing.T) {
	ctx := context.Background()
	repo := wallettest.New()
	repo.Location = time.FixedZone("WAT", 60*60)
	w := repo.AddWallet(d("1000"))

	clock := time.Date(2025, time.June, 4, 22, 30, 0, 0, time.UTC)
	repo.Now = func() time.Time { return clock }
	require.NoError(t, repo.DebitWallet(ctx, w.ID, d("100"), d("0")))

	// 23:15 UTC is 00:15 the next day in Lagos
	clock = time.Date(2025, time.June, 4, 23, 15, 0, 0, time.UTC)
	require.NoError(t, repo.DebitWallet(ctx, w.ID, d("50"), d("0")))

	got, err := repo.GetWalletByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DailyTransactionCount)
	assert.True(t, got.DailyTransactionAmount.Equal(d("50")))
	require.NotNil(t, got.LastTransactionDate)
	assert.Equal(t, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), *got.LastTransactionDate)

	clock = time.Date(2025, time.June, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.DebitWallet(ctx, w.ID, d("25"), d("0")))

	got, err = repo.GetWalletByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DailyTransactionCount)
	assert.True(t, got.DailyTransactionAmount.Equal(d("75")))
	assert.True(t, repo.Balance(w.ID).Equal(d("825")))
}
