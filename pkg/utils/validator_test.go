package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("USD"))
	assert.NoError(t, ValidateCurrency("CNY"))
	assert.Error(t, ValidateCurrency("usd"))
	assert.Error(t, ValidateCurrency("US"))
	assert.Error(t, ValidateCurrency(""))
}

func TestValidateAmount(t *testing.T) {
	max := decimal.NewFromInt(100000)
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"12.34", false},
		{"100000", false},
		{"0", true},
		{"-1", true},
		{"100000.01", true},
		{"1.234", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount), max)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}

	assert.NoError(t, ValidateAmount(decimal.RequireFromString("999999999"), decimal.Zero), "zero max means unlimited")
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Taxi to airport", SanitizeString("  Taxi\x00 to airport\x1f\n"))
}
