package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, APIKey: "secret-key", CallbackURL: "https://api.example/cb", Timeout: time.Second}, logger.NewNop())
}

func TestCreatePayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var req createPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord_1", req.OrderRef)
		assert.Equal(t, "150.00", req.Amount)
		assert.Equal(t, "https://api.example/cb", req.CallbackURL)

		_, _ = w.Write([]byte(`{"orderRef":"ord_1","paymentUrl":"https://pay.example/ord_1","status":"pending"}`))
	})

	paymentURL, err := client.CreatePayment(context.Background(), decimal.NewFromInt(150), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/ord_1", paymentURL)
	assert.Equal(t, "hosted_checkout", client.Name())
}

func TestGetStatusNormalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/ord_2", r.URL.Path)
		_, _ = w.Write([]byte(`{"orderRef":"ord_2","status":"SUCCEEDED"}`))
	})

	status, err := client.GetStatus(context.Background(), "ord_2")
	require.NoError(t, err)
	assert.Equal(t, entities.GatewayStatusPaid, status)
}

func TestErrorsAreServiceUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"upstream","message":"bank offline"}`))
	})

	_, err := client.GetStatus(context.Background(), "ord_3")
	require.Error(t, err)
	assert.True(t, domainerrors.IsServiceUnavailable(err))

	_, err = client.CreatePayment(context.Background(), decimal.NewFromInt(10), "ord_3")
	require.Error(t, err)
	assert.True(t, domainerrors.IsServiceUnavailable(err))
}
