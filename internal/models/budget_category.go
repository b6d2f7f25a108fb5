package models

import (
	"time"

	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
)

type CategoryStatus string

const (
	CategoryStatusOnTrack    CategoryStatus = "on_track"
	CategoryStatusWarning    CategoryStatus = "warning"
	CategoryStatusOverBudget CategoryStatus = "over_budget"
)

// CategoryWarningPercentage is the utilization at which a category turns to warning.
var CategoryWarningPercentage = decimal.NewFromInt(85)

type BudgetCategory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ProjectID      uint            `gorm:"index;not null" json:"project_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	BudgetedAmount decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"budgeted_amount"`
	SpentAmount    decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"spent_amount"`
	// default tag yok: gorm false değerini default ile ezer
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Transactions []ProjectTransaction `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
}

func (c BudgetCategory) RemainingAmount() decimal.Decimal {
	return c.BudgetedAmount.Sub(c.SpentAmount)
}

func (c BudgetCategory) UtilizationPercentage() decimal.Decimal {
	return money.Percentage(c.SpentAmount, c.BudgetedAmount)
}

func (c BudgetCategory) Status() CategoryStatus {
	u := c.UtilizationPercentage()
	switch {
	case u.GreaterThan(decimal.NewFromInt(100)):
		return CategoryStatusOverBudget
	case u.GreaterThanOrEqual(CategoryWarningPercentage):
		return CategoryStatusWarning
	default:
		return CategoryStatusOnTrack
	}
}
