package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralStatus represents the status of a referral edge
type ReferralStatus string

const (
	ReferralStatusPending ReferralStatus = "pending"
	ReferralStatusActive  ReferralStatus = "active"
)

// ReferralEdge links a referred user to the user who referred them
type ReferralEdge struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ReferrerID       uuid.UUID       `json:"referrerId" db:"referrer_id"`
	ReferredID       uuid.UUID       `json:"referredId" db:"referred_id"`
	Status           ReferralStatus  `json:"status" db:"status"`
	ActivatedAt      *time.Time      `json:"activatedAt,omitempty" db:"activated_at"`
	CumulativeIncome decimal.Decimal `json:"cumulativeIncome" db:"cumulative_income"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether the edge earns income for the referrer
func (r *ReferralEdge) IsActive() bool {
	return r.Status == ReferralStatusActive
}
