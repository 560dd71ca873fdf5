package tronscan

import (
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
	"github.com/yieldvault/yield_service/pkg/retry"
)

const dependency = "tronscan"

// errPendingConfirmation keeps the entry pending until the block is solid
var errPendingConfirmation = errors.New("transaction not yet confirmed")

// Config represents TronScan API configuration
type Config struct {
	BaseURL       string
	APIKey        string
	TokenContract string
	Timeout       time.Duration
	Retry         retry.Policy
}

// Client verifies TRC20 USDT transfers against TronScan
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *logger.Logger
}

// NewClient creates a new TronScan client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://apilist.tronscanapi.com/api"
	}
	if config.Retry.Multiplier == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
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
	})

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
		retrier:    retry.NewRetrier(config.Retry, log.Zap()),
		logger:     log,
	}
}

// Verify looks the transaction up and reports the USDT transfer it carries.
// Transport failures and unconfirmed transactions return a retryable
// error so the caller leaves the entry pending.
func (c *Client) Verify(ctx context.Context, txRef string) (*entities.TransferVerification, error) {
	txRef = strings.TrimSpace(txRef)

	var info *transactionInfo
	err := c.retrier.Do(ctx, func() error {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, txRef)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return domainerrors.ServiceUnavailableError(dependency, err).WithRetryable(false)
			}
			return err
		}
		info = res.(*transactionInfo)
		return nil
	})
	metrics.RecordExternalCall(dependency, err)
	if err != nil {
		c.logger.Warn("TronScan lookup failed", "tx_ref", txRef, "error", err)
		if domainerrors.IsServiceUnavailable(err) {
			return nil, err
		}
		return nil, domainerrors.ServiceUnavailableError(dependency, err)
	}

	// unknown hashes come back as an empty object until indexed
	if info.Hash == "" {
		return nil, domainerrors.ServiceUnavailableError(dependency, fmt.Errorf("transaction %s not indexed yet", txRef))
	}
	if !info.Confirmed {
		return nil, domainerrors.ServiceUnavailableError(dependency, errPendingConfirmation)
	}

	return c.interpret(info), nil
}

func (c *Client) interpret(info *transactionInfo) *entities.TransferVerification {
	if info.Revert || !strings.EqualFold(info.ContractRet, "SUCCESS") {
		return &entities.TransferVerification{Reason: fmt.Sprintf("transaction failed on chain: %s", info.ContractRet)}
	}

	for _, tr := range info.Transfers {
		if c.config.TokenContract != "" && tr.ContractAddress != c.config.TokenContract {
			continue
		}
		raw, err := decimal.NewFromString(tr.AmountStr)
		if err != nil {
			return &entities.TransferVerification{Reason: "unreadable transfer amount"}
		}
		return &entities.TransferVerification{
			Valid:     true,
			Amount:    raw.Shift(-tr.Decimals),
			Recipient: tr.ToAddress,
		}
	}

	return &entities.TransferVerification{Reason: "no USDT transfer in transaction"}
}

func (c *Client) fetch(ctx context.Context, txRef string) (*transactionInfo, error) {
	endpoint := fmt.Sprintf("%s/transaction-info?hash=%s", strings.TrimRight(c.config.BaseURL, "/"), url.QueryEscape(txRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.config.APIKey)
	}

	c.logger.Debug("Sending TronScan request", "tx_ref", txRef)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.ServiceUnavailableError(dependency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domainerrors.ServiceUnavailableError(dependency, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domainerrors.ServiceUnavailableError(dependency, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, domainerrors.ServiceUnavailableError(dependency, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))).WithRetryable(false)
	}

	var info transactionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, domainerrors.ServiceUnavailableError(dependency, fmt.Errorf("failed to decode response: %w", err)).WithRetryable(false)
	}

	return &info, nil
}
