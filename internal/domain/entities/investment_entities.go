package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvestmentOrigin tells direct deposits apart from referral income credits
type InvestmentOrigin string

const (
	InvestmentOriginDirect         InvestmentOrigin = "direct"
	InvestmentOriginReferralCredit InvestmentOrigin = "referral_credit"
)

// InvestmentStatus represents the status of an investment entry
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "pending"
	InvestmentStatusConfirmed InvestmentStatus = "confirmed"
	InvestmentStatusRejected  InvestmentStatus = "rejected"
)

// ValidInvestmentTransitions defines allowed status transitions
var ValidInvestmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	InvestmentStatusPending:   {InvestmentStatusConfirmed, InvestmentStatusRejected},
	InvestmentStatusConfirmed: {}, // Terminal state
	InvestmentStatusRejected:  {}, // Terminal state
}

// IsValid checks if the status is a valid investment status
func (s InvestmentStatus) IsValid() bool {
	_, ok := ValidInvestmentTransitions[s]
	return ok
}

// CanTransitionTo checks if transition to new status is allowed
func (s InvestmentStatus) CanTransitionTo(newStatus InvestmentStatus) bool {
	for _, status := range ValidInvestmentTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s InvestmentStatus) IsTerminal() bool {
	return s == InvestmentStatusConfirmed || s == InvestmentStatusRejected
}

// ValidateTransition validates and returns error if transition is invalid
func (s InvestmentStatus) ValidateTransition(newStatus InvestmentStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid investment status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Settlement triggers recorded on confirmed entries
const (
	TriggerAdmin          = "admin"
	TriggerUserManual     = "user_manual"
	TriggerChainVerifier  = "chain_verifier"
	TriggerChainPoller    = "chain_poller"
	TriggerGatewayWebhook = "gateway_webhook"
	TriggerGatewayPoll    = "gateway_user_poll"
	TriggerGatewayRecon   = "gateway_reconciler"
	TriggerReferral       = "referral_income"
	TriggerAdminGrant     = "admin_grant"
)

// InvestmentEntry is a single deposit or credit in an account's ledger
type InvestmentEntry struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	OwnerID            uuid.UUID        `json:"ownerId" db:"owner_id"`
	Amount             decimal.Decimal  `json:"amount" db:"amount"`
	Origin             InvestmentOrigin `json:"origin" db:"origin"`
	Status             InvestmentStatus `json:"status" db:"status"`
	ExternalRef        string           `json:"externalRef" db:"external_ref"`
	LockInDays         int              `json:"lockInDays" db:"lock_in_days"`
	LockInEndsAt       *time.Time       `json:"lockInEndsAt,omitempty" db:"lock_in_ends_at"`
	Withdrawable       bool             `json:"withdrawable" db:"withdrawable"`
	ConfirmedAt        *time.Time       `json:"confirmedAt,omitempty" db:"confirmed_at"`
	RejectionReason    *string          `json:"rejectionReason,omitempty" db:"rejection_reason"`
	SourceInvestmentID *uuid.UUID       `json:"sourceInvestmentId,omitempty" db:"source_investment_id"`
	SettledBy          *string          `json:"settledBy,omitempty" db:"settled_by"`
	CreatedAt          time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time        `json:"updatedAt" db:"updated_at"`
}

// IsConfirmed reports whether the entry has been credited
func (e *InvestmentEntry) IsConfirmed() bool {
	return e.Status == InvestmentStatusConfirmed
}

// ApplyLockIn sets the lock-in end from the confirmation time and recomputes
// withdrawable. A zero lock-in means the entry is withdrawable immediately.
func (e *InvestmentEntry) ApplyLockIn(confirmedAt, now time.Time) {
	if e.LockInDays <= 0 {
		e.LockInEndsAt = nil
		e.Withdrawable = true
		return
	}
	ends := confirmedAt.Add(time.Duration(e.LockInDays) * 24 * time.Hour)
	e.LockInEndsAt = &ends
	e.Withdrawable = !ends.After(now)
}

// RecomputeWithdrawable derives withdrawable from the current lock-in end
func (e *InvestmentEntry) RecomputeWithdrawable(now time.Time) {
	if !e.IsConfirmed() {
		e.Withdrawable = false
		return
	}
	e.Withdrawable = e.LockInEndsAt == nil || !e.LockInEndsAt.After(now)
}

// Prefixes of external references the service mints itself. User-submitted
// references may not start with any of them.
const (
	OrderRefPrefix    = "ord_"
	GrantRefPrefix    = "grant:"
	ReferralRefPrefix = "referral:"
)

var reservedRefPrefixes = []string{OrderRefPrefix, GrantRefPrefix, ReferralRefPrefix}

// IsReservedRef reports whether ref falls in a service-minted namespace
func IsReservedRef(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	for _, p := range reservedRefPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// ReferralCreditRef builds the unique external reference of the referral
// income credit derived from a source investment.
func ReferralCreditRef(sourceInvestmentID uuid.UUID) string {
	return ReferralRefPrefix + sourceInvestmentID.String()
}

// SubmitInvestmentRequest is the body of the investment submission endpoint
type SubmitInvestmentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	ExternalRef string          `json:"externalRef" validate:"required,min=8,max=128"`
}

// GrantInvestmentRequest is an admin credit without an external payment
type GrantInvestmentRequest struct {
	OwnerID    uuid.UUID       `json:"ownerId" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	LockInDays *int            `json:"lockInDays,omitempty" validate:"omitempty,min=0,max=3650"`
	Note       string          `json:"note" validate:"max=256"`
}

// RejectInvestmentRequest carries the admin's rejection reason
type RejectInvestmentRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// AdminUpdateInvestmentRequest is a partial admin correction of an entry
type AdminUpdateInvestmentRequest struct {
	Amount     *decimal.Decimal  `json:"amount,omitempty"`
	Status     *InvestmentStatus `json:"status,omitempty"`
	LockInDays *int              `json:"lockInDays,omitempty" validate:"omitempty,min=0,max=3650"`
}
