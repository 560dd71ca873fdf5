package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentIntentStatus represents the status of a gateway payment intent
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending    PaymentIntentStatus = "pending"
	PaymentIntentStatusProcessing PaymentIntentStatus = "processing"
	PaymentIntentStatusCompleted  PaymentIntentStatus = "completed"
	PaymentIntentStatusFailed     PaymentIntentStatus = "failed"
	PaymentIntentStatusCancelled  PaymentIntentStatus = "cancelled"
)

// ValidPaymentIntentTransitions defines allowed status transitions
var ValidPaymentIntentTransitions = map[PaymentIntentStatus][]PaymentIntentStatus{
	PaymentIntentStatusPending: {
		PaymentIntentStatusProcessing,
		PaymentIntentStatusCompleted,
		PaymentIntentStatusFailed,
		PaymentIntentStatusCancelled,
	},
	PaymentIntentStatusProcessing: {
		PaymentIntentStatusCompleted,
		PaymentIntentStatusFailed,
		PaymentIntentStatusCancelled,
	},
	PaymentIntentStatusCompleted: {}, // Terminal state
	PaymentIntentStatusFailed:    {}, // Terminal state
	PaymentIntentStatusCancelled: {}, // Terminal state
}

// IsValid checks if the status is a valid payment intent status
func (s PaymentIntentStatus) IsValid() bool {
	_, ok := ValidPaymentIntentTransitions[s]
	return ok
}

// CanTransitionTo checks if transition to new status is allowed
func (s PaymentIntentStatus) CanTransitionTo(newStatus PaymentIntentStatus) bool {
	for _, status := range ValidPaymentIntentTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s PaymentIntentStatus) IsTerminal() bool {
	return len(ValidPaymentIntentTransitions[s]) == 0
}

// ValidateTransition validates and returns error if transition is invalid
func (s PaymentIntentStatus) ValidateTransition(newStatus PaymentIntentStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid payment intent status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// PaymentIntent tracks a hosted-checkout payment until it settles
type PaymentIntent struct {
	ID                 uuid.UUID           `json:"id" db:"id"`
	OwnerID            uuid.UUID           `json:"ownerId" db:"owner_id"`
	Amount             decimal.Decimal     `json:"amount" db:"amount"`
	OrderRef           string              `json:"orderRef" db:"order_ref"`
	Provider           string              `json:"provider" db:"provider"`
	Status             PaymentIntentStatus `json:"status" db:"status"`
	PaymentURL         *string             `json:"paymentUrl,omitempty" db:"payment_url"`
	LinkedInvestmentID *uuid.UUID          `json:"linkedInvestmentId,omitempty" db:"linked_investment_id"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt          time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time           `json:"updatedAt" db:"updated_at"`
}

// CreatePaymentRequest is the body of the payment intent endpoint
type CreatePaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// GatewayNotification is the verified payload of a gateway webhook
type GatewayNotification struct {
	OrderRef string `json:"orderRef" validate:"required"`
	Status   string `json:"status" validate:"required"`
	Amount   string `json:"amount,omitempty"`
}

// GatewayPaymentStatus is the gateway's view of a payment
type GatewayPaymentStatus string

const (
	GatewayStatusPending   GatewayPaymentStatus = "pending"
	GatewayStatusPaid      GatewayPaymentStatus = "paid"
	GatewayStatusFailed    GatewayPaymentStatus = "failed"
	GatewayStatusCancelled GatewayPaymentStatus = "cancelled"
	GatewayStatusExpired   GatewayPaymentStatus = "expired"
)

// ParseGatewayStatus normalizes the status strings gateways report. Unknown
// values are treated as still pending.
func ParseGatewayStatus(raw string) GatewayPaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "completed", "success", "succeeded":
		return GatewayStatusPaid
	case "failed", "declined", "error":
		return GatewayStatusFailed
	case "cancelled", "canceled":
		return GatewayStatusCancelled
	case "expired":
		return GatewayStatusExpired
	default:
		return GatewayStatusPending
	}
}

// IntentStatus maps a gateway status to the payment intent status it implies
func (s GatewayPaymentStatus) IntentStatus() PaymentIntentStatus {
	switch s {
	case GatewayStatusPaid:
		return PaymentIntentStatusCompleted
	case GatewayStatusFailed:
		return PaymentIntentStatusFailed
	case GatewayStatusCancelled, GatewayStatusExpired:
		return PaymentIntentStatusCancelled
	default:
		return PaymentIntentStatusPending
	}
}

// PaymentStatusView is returned to users polling a payment
type PaymentStatusView struct {
	OrderRef           string              `json:"orderRef"`
	Status             PaymentIntentStatus `json:"status"`
	LinkedInvestmentID *uuid.UUID          `json:"linkedInvestmentId,omitempty"`
	Message            string              `json:"message,omitempty"`
}

// TransferVerification is a blockchain verifier's answer for a transaction
type TransferVerification struct {
	Valid     bool
	Amount    decimal.Decimal
	Recipient string
	Reason    string
}
