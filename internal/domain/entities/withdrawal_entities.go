package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalKind selects which balance a withdrawal draws from
type WithdrawalKind string

const (
	WithdrawalKindInterest  WithdrawalKind = "interest"
	WithdrawalKindPrincipal WithdrawalKind = "principal"
)

// IsValid checks if the kind is known
func (k WithdrawalKind) IsValid() bool {
	return k == WithdrawalKindInterest || k == WithdrawalKindPrincipal
}

// WithdrawalStatus represents the status of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
	WithdrawalStatusProcessed WithdrawalStatus = "processed"
	WithdrawalStatusCancelled WithdrawalStatus = "cancelled"
)

// ValidWithdrawalTransitions defines allowed status transitions
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:   {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:  {WithdrawalStatusProcessed, WithdrawalStatusCancelled},
	WithdrawalStatusRejected:  {}, // Terminal state
	WithdrawalStatusProcessed: {}, // Terminal state
	WithdrawalStatusCancelled: {}, // Terminal state
}

// IsValid checks if the status is a valid withdrawal status
func (s WithdrawalStatus) IsValid() bool {
	_, ok := ValidWithdrawalTransitions[s]
	return ok
}

// CanTransitionTo checks if transition to new status is allowed
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	for _, status := range ValidWithdrawalTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s WithdrawalStatus) IsTerminal() bool {
	return len(ValidWithdrawalTransitions[s]) == 0
}

// CountsTowardMonthlyLimit reports whether a request in this status uses up
// the owner's monthly interest withdrawal.
func (s WithdrawalStatus) CountsTowardMonthlyLimit() bool {
	return s == WithdrawalStatusPending || s == WithdrawalStatusApproved || s == WithdrawalStatusProcessed
}

// ValidateTransition validates and returns error if transition is invalid
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// WithdrawalRequest is a user's request to take funds out of the platform
type WithdrawalRequest struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	OwnerID            uuid.UUID        `json:"ownerId" db:"owner_id"`
	RequestedAmount    decimal.Decimal  `json:"requestedAmount" db:"requested_amount"`
	Kind               WithdrawalKind   `json:"kind" db:"kind"`
	DestinationAddress string           `json:"destinationAddress" db:"destination_address"`
	Status             WithdrawalStatus `json:"status" db:"status"`
	Note               *string          `json:"note,omitempty" db:"note"`
	DecidedBy          *uuid.UUID       `json:"decidedBy,omitempty" db:"decided_by"`
	PayoutTxHash       *string          `json:"payoutTxHash,omitempty" db:"payout_tx_hash"`
	RequestedAt        time.Time        `json:"requestedAt" db:"requested_at"`
	DecidedAt          *time.Time       `json:"decidedAt,omitempty" db:"decided_at"`
	ProcessedAt        *time.Time       `json:"processedAt,omitempty" db:"processed_at"`
	UpdatedAt          time.Time        `json:"updatedAt" db:"updated_at"`
}

// WithdrawalDecision is an admin action on a withdrawal request
type WithdrawalDecision string

const (
	WithdrawalDecisionApprove WithdrawalDecision = "approve"
	WithdrawalDecisionReject  WithdrawalDecision = "reject"
	WithdrawalDecisionProcess WithdrawalDecision = "process"
	WithdrawalDecisionCancel  WithdrawalDecision = "cancel"
)

// TargetStatus maps a decision to the status it moves the request into
func (d WithdrawalDecision) TargetStatus() (WithdrawalStatus, bool) {
	switch d {
	case WithdrawalDecisionApprove:
		return WithdrawalStatusApproved, true
	case WithdrawalDecisionReject:
		return WithdrawalStatusRejected, true
	case WithdrawalDecisionProcess:
		return WithdrawalStatusProcessed, true
	case WithdrawalDecisionCancel:
		return WithdrawalStatusCancelled, true
	}
	return "", false
}

// CreateWithdrawalRequest is the body of the withdrawal request endpoint
type CreateWithdrawalRequest struct {
	Amount             decimal.Decimal `json:"amount" validate:"required"`
	Kind               WithdrawalKind  `json:"kind" validate:"required,oneof=interest principal"`
	DestinationAddress string          `json:"destinationAddress" validate:"required,min=26,max=64"`
}

// DecideWithdrawalRequest is the body of the admin decision endpoint
type DecideWithdrawalRequest struct {
	Decision     WithdrawalDecision `json:"decision" validate:"required,oneof=approve reject process cancel"`
	Note         string             `json:"note" validate:"max=512"`
	PayoutTxHash string             `json:"payoutTxHash" validate:"max=128"`
}

// WithdrawalEligibility summarizes what an owner may withdraw right now
type WithdrawalEligibility struct {
	MeetsPrincipalMinimum   bool            `json:"meetsPrincipalMinimum"`
	InterestCap             decimal.Decimal `json:"interestCap"`
	InterestRequestedMonth  bool            `json:"interestRequestedThisMonth"`
	WithdrawablePrincipal   decimal.Decimal `json:"withdrawablePrincipal"`
	OutstandingPrincipal    decimal.Decimal `json:"outstandingPrincipal"`
	MinimumWithdrawalAmount decimal.Decimal `json:"minimumWithdrawalAmount"`
}
