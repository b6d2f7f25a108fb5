package finance

import (
	"insaat-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	warningRatio   = decimal.RequireFromString("0.9")
	excellentRatio = decimal.RequireFromString("0.1")
)

// ClassifyFinancialStatus maps a project's spend against its budget. Rules are
// evaluated in order and the first match wins.
func ClassifyFinancialStatus(spent, totalBudget, estimatedSavings decimal.Decimal) models.FinancialStatus {
	switch {
	case !totalBudget.IsPositive():
		return models.FinancialStatusOnTrack
	case spent.GreaterThan(totalBudget):
		return models.FinancialStatusOverBudget
	case spent.GreaterThan(totalBudget.Mul(warningRatio)):
		return models.FinancialStatusWarning
	case estimatedSavings.GreaterThan(totalBudget.Mul(excellentRatio)):
		return models.FinancialStatusExcellent
	default:
		return models.FinancialStatusOnTrack
	}
}
