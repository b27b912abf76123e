package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL})
}

func TestInitiateTransfer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfer", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "balance", body.Source)
		assert.Equal(t, int64(300000), body.Amount)
		assert.Equal(t, "RCP_1", body.Recipient)

		w.Write([]byte(`{"status":true,"message":"queued","data":{"transfer_code":"TRF_1","reference":"STL1","status":"pending","amount":300000}}`))
	})

	tr, err := client.InitiateTransfer(context.Background(), TransferRequest{
		Amount:    ToMinorUnits(decimal.NewFromInt(3000)),
		Recipient: "RCP_1",
		Reference: "STL1",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRF_1", tr.TransferCode)
	assert.Equal(t, StatusPending, tr.Status)
	assert.Equal(t, "TRF_1", tr.Raw["transfer_code"])
}

func TestClientErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":false,"message":"Insufficient balance"}`))
		})

		_, err := client.VerifyTransfer(context.Background(), "STL1")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Insufficient balance", apiErr.Message)
		assert.True(t, IsAPIError(err))
	})

	t.Run("transport error", func(t *testing.T) {
		client := NewClient(Config{SecretKey: "sk_test", BaseURL: "http://127.0.0.1:1"})

		_, err := client.CreateTransferRecipient(context.Background(), RecipientRequest{Name: "A"})
		var tErr *TransportError
		require.True(t, errors.As(err, &tErr))
		assert.False(t, IsAPIError(err))
	})
}

func TestCreateTransferRecipient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body RecipientRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nuban", body.Type)
		w.Write([]byte(`{"status":true,"data":{"recipient_code":"RCP_abc"}}`))
	})

	code, err := client.CreateTransferRecipient(context.Background(), RecipientRequest{Name: "Ada", AccountNumber: "0123456789", BankCode: "058"})
	require.NoError(t, err)
	assert.Equal(t, "RCP_abc", code)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"transfer.success"}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("secret", []byte(`{}`), sig))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(123456), ToMinorUnits(decimal.RequireFromString("1234.56")))
	assert.True(t, FromMinorUnits(150050).Equal(decimal.RequireFromString("1500.5")))
}
