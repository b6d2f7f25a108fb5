package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FinancialStatus string

const (
	FinancialStatusOnTrack    FinancialStatus = "on_track"
	FinancialStatusWarning    FinancialStatus = "warning"
	FinancialStatusOverBudget FinancialStatus = "over_budget"
	FinancialStatusExcellent  FinancialStatus = "excellent"
)

// Project - inşaat projesi, bütçe kategorileri ve işlemlerin sahibi
type Project struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Code             string          `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name             string          `gorm:"size:150;not null" json:"name"`
	TotalBudget      decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"total_budget"`
	AllocatedBudget  decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"allocated_budget"`
	SpentAmount      decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"spent_amount"`
	EstimatedSavings decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"estimated_savings"`
	FinancialStatus  FinancialStatus `gorm:"size:20;not null;default:on_track" json:"financial_status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Categories   []BudgetCategory     `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Transactions []ProjectTransaction `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Savings      []ProjectSavings     `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// ProjectSavings - gerçekleşmiş tasarruf kaydı (ledger hesabına girmez)
type ProjectSavings struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ProjectID   uint            `gorm:"index;not null" json:"project_id"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	RealizedAt  time.Time       `gorm:"index;not null" json:"realized_at"`
	CreatedBy   uint            `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
