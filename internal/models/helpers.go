package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinorUnits is the wallet precision: amounts settle in hundredths.
const MinorUnits = 2

func GenerateRoundID() string {
	return uuid.NewString()
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s", uuid.NewString())
}

// RoundMoney rounds an amount half away from zero to wallet precision.
func RoundMoney(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(MinorUnits).Float64()
	return f
}

func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(MinorUnits)
}

func FormatCurrency(amount float64) string {
	return "$" + FormatAmount(amount)
}
