package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlChars  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateCurrency checks for a three-letter upper-case ISO 4217 style code
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("currency must be a 3-letter code: %q", code)
	}
	return nil
}

// ValidateAmount checks that amount is positive, within max (when max is
// positive) and has at most two decimal places
func ValidateAmount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", amount.String())
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("amount exceeds maximum limit: %s", amount.String())
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("amount has more than two decimal places: %s", amount.String())
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
