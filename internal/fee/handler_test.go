package fee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/paystack-settlements/pkg/utils"
)

type savingRepo struct {
	saved []Configuration
}

func (r *savingRepo) FindActive(ctx context.Context, walletID *uuid.UUID, txType TransactionType) ([]Configuration, error) {
	return nil, nil
}

func (r *savingRepo) Create(ctx context.Context, cfg *Configuration) error {
	cfg.ID = uuid.New()
	r.saved = append(r.saved, *cfg)
	return nil
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestQuoteHandler(t *testing.T) {
	h := NewHandler(NewCalculator(testConfig(), nil), &savingRepo{})

	rr := postJSON(h.Quote, `{"amount":"10000","transaction_type":"deposit","payment_channel":"card"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		utils.Response
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Data.OriginalAmount.Equal(d("10000")))
	assert.True(t, resp.Data.FeeAmount.IsPositive())

	assert.Equal(t, http.StatusBadRequest, postJSON(h.Quote, `{"amount":"0","transaction_type":"deposit"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(h.Quote, `{"amount":"10"}`).Code)
}

func TestCreateConfigurationHandler(t *testing.T) {
	repo := &savingRepo{}
	h := NewHandler(NewCalculator(testConfig(), repo), repo)

	rr := postJSON(h.CreateConfiguration, `{"name":"vip","transaction_type":"deposit","fee_type":"flat","flat_fee":"5","bearer":"merchant","is_active":false}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, repo.saved, 1)
	assert.True(t, repo.saved[0].IsActive)
	assert.Equal(t, BearerMerchant, repo.saved[0].Bearer)

	rr = postJSON(h.CreateConfiguration, `{"transaction_type":"deposit","fee_type":"flat","bearer":"split","customer_split_percent":"60","merchant_split_percent":"30"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), ErrSplitNot100.Error())
	assert.Len(t, repo.saved, 1)
}
