// Package money holds amount arithmetic used by the approval paths.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/apperror"
)

var (
	hundred = decimal.NewFromInt(100)
	// FullApproval is the percentage applied when none is given
	FullApproval = hundred
)

// SplitResult is the outcome of a partial approval
type SplitResult struct {
	Approved decimal.Decimal
	Rejected decimal.Decimal
}

// Split divides amount into an approved share of percentage (rounded half away
// from zero to cents) and the remainder. Approved + Rejected always equals amount.
func Split(amount, percentage decimal.Decimal) (SplitResult, error) {
	if !amount.IsPositive() {
		return SplitResult{}, apperror.Validation("amount must be positive, got %s", amount.String())
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return SplitResult{}, apperror.Validation("approval percentage must be within [0,100], got %s", percentage.String())
	}

	approved := amount.Mul(percentage).Div(hundred).Round(2)
	return SplitResult{
		Approved: approved,
		Rejected: amount.Sub(approved),
	}, nil
}

// IsFull reports whether percentage means full approval
func IsFull(percentage decimal.Decimal) bool {
	return percentage.Equal(hundred)
}
