package errors

import "errors"

// Ledger-specific errors. Each one is also matched by its category helper,
// e.g. IsConflict(ErrDuplicateReference) is true.
var (
	// Lookup errors
	ErrAccountNotFound       = newCategorized(errors.New("account not found"), ErrNotFound)
	ErrInvestmentNotFound    = newCategorized(errors.New("investment not found"), ErrNotFound)
	ErrWithdrawalNotFound    = newCategorized(errors.New("withdrawal not found"), ErrNotFound)
	ErrPaymentIntentNotFound = newCategorized(errors.New("payment intent not found"), ErrNotFound)
	ErrReferralNotFound      = newCategorized(errors.New("referral not found"), ErrNotFound)

	// Uniqueness and state errors
	ErrDuplicateReference = newCategorized(errors.New("duplicate external reference"), ErrConflict)
	ErrDuplicateReferral  = newCategorized(errors.New("user already has a referrer"), ErrConflict)
	ErrAccountExists      = newCategorized(errors.New("account already exists"), ErrConflict)
	ErrAlreadyRejected    = newCategorized(errors.New("investment already rejected"), ErrConflict)
	ErrInvalidTransition  = newCategorized(errors.New("invalid status transition"), ErrConflict)

	// Validation errors
	ErrSelfReferral           = newCategorized(errors.New("self referral is not allowed"), ErrInvalidInput)
	ErrInvalidReferralCode    = newCategorized(errors.New("invalid referral code"), ErrInvalidInput)
	ErrMinimumAmountNotMet    = newCategorized(errors.New("minimum amount not met"), ErrInvalidInput)
	ErrWithdrawalCapExceeded  = newCategorized(errors.New("withdrawal cap exceeded"), ErrInvalidInput)
	ErrInsufficientFunds      = newCategorized(errors.New("insufficient funds"), ErrInvalidInput)
	ErrNotEligible            = newCategorized(errors.New("not eligible"), ErrInvalidInput)
	ErrMonthlyWithdrawalTaken = newCategorized(errors.New("interest withdrawal already requested this month"), ErrInvalidInput)

	// Access errors
	ErrAccountFrozen = newCategorized(errors.New("account is frozen"), ErrForbidden)
	ErrNotOwner      = newCategorized(errors.New("resource belongs to another user"), ErrForbidden)

	// Transfer verification
	ErrTransferInvalid = newCategorized(errors.New("transfer verification failed"), ErrInvalidInput)
)

// DuplicateReferenceError reports an external reference that is already recorded
func DuplicateReferenceError(externalRef string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateReference,
		Code:    "DUPLICATE_REFERENCE",
		Message: "this transaction reference has already been submitted",
		Details: map[string]interface{}{
			"external_ref": externalRef,
		},
	}
}

// AlreadyRejectedError reports a confirmation attempt on a rejected entry
func AlreadyRejectedError(investmentID string) *DomainError {
	return &DomainError{
		Err:     ErrAlreadyRejected,
		Code:    "ALREADY_REJECTED",
		Message: "investment was rejected and cannot be confirmed",
		Details: map[string]interface{}{
			"investment_id": investmentID,
		},
	}
}

// InvalidTransitionError reports a forbidden status change
func InvalidTransitionError(resource, from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidTransition,
		Code:    "INVALID_TRANSITION",
		Message: "invalid " + resource + " status transition from " + from + " to " + to,
		Details: map[string]interface{}{
			"resource": resource,
			"from":     from,
			"to":       to,
		},
	}
}

// MinimumAmountError reports an amount under the allowed minimum
func MinimumAmountError(field, minimum, provided string) *DomainError {
	return &DomainError{
		Err:     ErrMinimumAmountNotMet,
		Code:    "MINIMUM_AMOUNT_NOT_MET",
		Message: field + " must be at least " + minimum,
		Details: map[string]interface{}{
			"field":    field,
			"minimum":  minimum,
			"provided": provided,
		},
	}
}

// WithdrawalCapError reports a withdrawal above the current cap
func WithdrawalCapError(kind, limit, requested string) *DomainError {
	return &DomainError{
		Err:     ErrWithdrawalCapExceeded,
		Code:    "WITHDRAWAL_CAP_EXCEEDED",
		Message: "requested amount exceeds the withdrawable " + kind + " amount",
		Details: map[string]interface{}{
			"kind":      kind,
			"limit":     limit,
			"requested": requested,
		},
	}
}

// InsufficientFundsError creates an insufficient funds error
func InsufficientFundsError(available, required string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds for this operation",
		Details: map[string]interface{}{
			"available": available,
			"required":  required,
		},
	}
}

// NotEligibleError reports an unmet eligibility rule
func NotEligibleError(reason string) *DomainError {
	return &DomainError{
		Err:     ErrNotEligible,
		Code:    "NOT_ELIGIBLE",
		Message: reason,
	}
}

// AccountFrozenError reports an operation on a frozen account
func AccountFrozenError(accountID string) *DomainError {
	return &DomainError{
		Err:     ErrAccountFrozen,
		Code:    "ACCOUNT_FROZEN",
		Message: "account is frozen",
		Details: map[string]interface{}{
			"account_id": accountID,
		},
	}
}

// TransferInvalidError reports a definitive verification failure
func TransferInvalidError(txRef, reason string) *DomainError {
	return &DomainError{
		Err:     ErrTransferInvalid,
		Code:    "TRANSFER_INVALID",
		Message: reason,
		Details: map[string]interface{}{
			"tx_ref": txRef,
		},
	}
}
