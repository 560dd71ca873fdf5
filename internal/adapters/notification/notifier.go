// Package notification delivers operator alerts about ledger events
package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// OpsNotifier tells operators about events that need a human
type OpsNotifier interface {
	NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error
	NotifyAccrualFailures(ctx context.Context, report *entities.AccrualRunReport) error
}

// LogNotifier writes alerts to the log when no mail provider is configured
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) NotifyWithdrawalRequested(_ context.Context, req *entities.WithdrawalRequest) error {
	n.logger.Info("Withdrawal awaiting review",
		"withdrawal_id", req.ID,
		"owner_id", req.OwnerID,
		"kind", req.Kind,
		"amount", req.RequestedAmount.String())
	return nil
}

func (n *LogNotifier) NotifyAccrualFailures(_ context.Context, report *entities.AccrualRunReport) error {
	n.logger.Warn("Accrual run finished with failures",
		"accrual_date", report.AccrualDate.Format("2006-01-02"),
		"failed", len(report.Failed),
		"credited", report.Credited)
	return nil
}

type message struct {
	subject string
	text    string
	html    string
}

func withdrawalMessage(req *entities.WithdrawalRequest) message {
	subject := fmt.Sprintf("Withdrawal request %s awaiting review", req.ID)
	text := fmt.Sprintf(
		"A %s withdrawal of %s USDT was requested.\n\nRequest: %s\nAccount: %s\nDestination: %s\nRequested at: %s\n",
		req.Kind, req.RequestedAmount.StringFixed(2), req.ID, req.OwnerID, req.DestinationAddress,
		req.RequestedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	)
	return message{subject: subject, text: text, html: textToHTML(text)}
}

func accrualFailureMessage(report *entities.AccrualRunReport) message {
	date := report.AccrualDate.Format("2006-01-02")
	subject := fmt.Sprintf("Accrual run %s: %d account(s) failed", date, len(report.Failed))

	var b strings.Builder
	fmt.Fprintf(&b, "Accrual for %s finished with failures.\n\n", date)
	fmt.Fprintf(&b, "Processed: %d\nCredited: %d\nFailed: %d\nTotal interest: %s\n\n",
		report.Processed, report.Credited, len(report.Failed), report.TotalInterest.StringFixed(8))
	for _, f := range report.Failed {
		fmt.Fprintf(&b, "- %s: %s\n", f.AccountID, f.Error)
	}
	b.WriteString("\nRe-running the job for the same date only retries the failed accounts.\n")

	text := b.String()
	return message{subject: subject, text: text, html: textToHTML(text)}
}

func textToHTML(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>"
}
