package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

// mailClient is the part of the SendGrid client we use
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds the ops mail settings
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	OpsEmail  string
}

// SendGridNotifier mails operator alerts through SendGrid
type SendGridNotifier struct {
	client mailClient
	config SendGridConfig
	logger *logger.Logger
}

var _ OpsNotifier = (*SendGridNotifier)(nil)

// NewSendGridNotifier creates the notifier
func NewSendGridNotifier(config SendGridConfig, log *logger.Logger) (*SendGridNotifier, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(config.OpsEmail) == "" {
		return nil, fmt.Errorf("ops email is required")
	}
	if strings.TrimSpace(config.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(config.APIKey),
		config: config,
		logger: log,
	}, nil
}

// New returns a SendGrid notifier when configured and a log notifier otherwise
func New(config SendGridConfig, log *logger.Logger) OpsNotifier {
	if config.APIKey == "" || config.OpsEmail == "" {
		log.Info("Ops email not configured, alerts go to the log")
		return NewLogNotifier(log)
	}
	n, err := NewSendGridNotifier(config, log)
	if err != nil {
		log.Warn("SendGrid notifier unavailable, alerts go to the log", "error", err)
		return NewLogNotifier(log)
	}
	return n
}

func (n *SendGridNotifier) NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error {
	return n.send(ctx, withdrawalMessage(req))
}

func (n *SendGridNotifier) NotifyAccrualFailures(ctx context.Context, report *entities.AccrualRunReport) error {
	return n.send(ctx, accrualFailureMessage(report))
}

func (n *SendGridNotifier) send(ctx context.Context, msg message) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	from := mail.NewEmail(n.config.FromName, n.config.FromEmail)
	to := mail.NewEmail("Operations", n.config.OpsEmail)
	email := mail.NewSingleEmail(from, msg.subject, to, msg.text, msg.html)

	response, err := n.client.SendWithContext(ctx, email)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("email service error: status %d, body: %s", response.StatusCode, response.Body)
	}
	metrics.RecordExternalCall("sendgrid", err)
	if err != nil {
		n.logger.Error("Failed to send ops email", "subject", msg.subject, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("Ops email sent", "subject", msg.subject, "status_code", response.StatusCode)
	return nil
}
