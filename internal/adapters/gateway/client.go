// Package gateway is the HTTP client for the hosted-checkout payment provider
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
	"github.com/yieldvault/yield_service/pkg/security"
)

const dependency = "payment_gateway"

// Config represents the gateway API configuration
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	CallbackURL string
	Timeout     time.Duration
}

// Client creates hosted payments and reads their status
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new gateway client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Provider == "" {
		config.Provider = "hosted_checkout"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        dependency,
			MaxRequests: 2,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: log,
	}
}

// Name returns the provider name stored on payment intents
func (c *Client) Name() string {
	return c.config.Provider
}

// CreatePayment opens a hosted payment and returns its checkout URL
func (c *Client) CreatePayment(ctx context.Context, amount decimal.Decimal, orderRef string) (string, error) {
	req := createPaymentRequest{
		OrderRef:    orderRef,
		Amount:      amount.StringFixed(2),
		Currency:    "USDT",
		CallbackURL: c.config.CallbackURL,
	}

	var resp createPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments", req, &resp); err != nil {
		c.logger.Error("Failed to create gateway payment", "order_ref", orderRef, "error", err)
		return "", err
	}
	if resp.PaymentURL == "" {
		return "", domainerrors.ServiceUnavailableError(dependency, errors.New("response carried no payment url"))
	}

	c.logger.Info("Created gateway payment", "order_ref", orderRef)
	return resp.PaymentURL, nil
}

// GetStatus returns the gateway's normalized status for an order
func (c *Client) GetStatus(ctx context.Context, orderRef string) (entities.GatewayPaymentStatus, error) {
	var resp paymentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(orderRef), nil, &resp); err != nil {
		return "", err
	}
	return entities.ParseGatewayStatus(resp.Status), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, response interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, method, endpoint, body, response)
	})
	metrics.RecordExternalCall(dependency, err)
	if err == nil {
		return nil
	}
	if domainerrors.IsServiceUnavailable(err) {
		return err
	}
	return domainerrors.ServiceUnavailableError(dependency, err)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	fullURL := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	c.logger.Debug("Sending gateway request", "method", method, "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			errResp.StatusCode = resp.StatusCode
			return &errResp
		}
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, security.MaskString(string(respBody)))
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
