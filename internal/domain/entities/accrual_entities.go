package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccrualMarker records that an account was credited for a calendar day.
// (AccountID, AccrualDate) is unique.
type AccrualMarker struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	AccountID   uuid.UUID       `json:"accountId" db:"account_id"`
	AccrualDate time.Time       `json:"accrualDate" db:"accrual_date"`
	Rate        decimal.Decimal `json:"rate" db:"rate"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// AccrualFailure identifies an account the batch could not process
type AccrualFailure struct {
	AccountID uuid.UUID `json:"accountId"`
	Error     string    `json:"error"`
}

// AccrualRunReport summarizes one nightly accrual batch
type AccrualRunReport struct {
	AccrualDate     time.Time        `json:"accrualDate"`
	Processed       int              `json:"processed"`
	Credited        int              `json:"credited"`
	SkippedDormant  int              `json:"skippedDormant"`
	SkippedExisting int              `json:"skippedExisting"`
	SkippedOther    int              `json:"skippedOther"`
	TotalInterest   decimal.Decimal  `json:"totalInterest"`
	Failed          []AccrualFailure `json:"failed,omitempty"`
	Unlocked        int64            `json:"unlocked"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
}

// Partial reports whether some accounts failed while others succeeded
func (r *AccrualRunReport) Partial() bool {
	return len(r.Failed) > 0
}

// ReconcileReport summarizes one pass over pending payments or transfers
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}
