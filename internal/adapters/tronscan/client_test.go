package tronscan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/retry"
)

const usdtContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:       server.URL,
		APIKey:        "key",
		TokenContract: usdtContract,
		Timeout:       time.Second,
		Retry:         retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}, logger.NewNop())
}

func TestVerifyConfirmedTransfer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction-info", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("hash"))
		assert.Equal(t, "key", r.Header.Get("TRON-PRO-API-KEY"))
		_, _ = w.Write([]byte(`{"hash":"abc123","contractRet":"SUCCESS","confirmed":true,
			"trc20TransferInfo":[{"to_address":"TDeposit","contract_address":"` + usdtContract + `","amount_str":"100500000","decimals":6}]}`))
	})

	res, err := client.Verify(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "TDeposit", res.Recipient)
	assert.True(t, decimal.RequireFromString("100.5").Equal(res.Amount))
}

func TestVerifyDefinitiveFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"reverted", `{"hash":"h","contractRet":"REVERT","confirmed":true}`},
		{"other token", `{"hash":"h","contractRet":"SUCCESS","confirmed":true,"trc20TransferInfo":[{"to_address":"T","contract_address":"TOther","amount_str":"1","decimals":6}]}`},
		{"no transfer", `{"hash":"h","contractRet":"SUCCESS","confirmed":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := client.Verify(context.Background(), "h")
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestVerifyLeavesPendingOnUncertainty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not indexed", http.StatusOK, `{}`},
		{"unconfirmed", http.StatusOK, `{"hash":"h","contractRet":"SUCCESS","confirmed":false}`},
		{"server error", http.StatusBadGateway, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Verify(context.Background(), "h")
			require.Error(t, err)
			assert.True(t, domainerrors.IsServiceUnavailable(err))
		})
	}
}

func TestVerifyRetriesTransientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"hash":"h","contractRet":"SUCCESS","confirmed":true,
			"trc20TransferInfo":[{"to_address":"TDeposit","contract_address":"` + usdtContract + `","amount_str":"20000000","decimals":6}]}`))
	})

	res, err := client.Verify(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
