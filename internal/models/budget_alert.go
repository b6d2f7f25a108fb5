package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertTypeWarning    AlertType = "warning"
	AlertTypeCritical   AlertType = "critical"
	AlertTypeOverBudget AlertType = "over_budget"
)

// BudgetAlert - proje başına, tip başına en fazla bir aktif kayıt
type BudgetAlert struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	ProjectID           uint            `gorm:"index:idx_alert_project_type;not null" json:"project_id"`
	AlertType           AlertType       `gorm:"size:20;index:idx_alert_project_type;not null" json:"alert_type"`
	ThresholdPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"threshold_percentage"`
	CurrentPercentage   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"current_percentage"`
	Message             string          `gorm:"size:255" json:"message"`
	IsActive            bool            `gorm:"not null;index" json:"is_active"`
	TriggeredAt         time.Time       `gorm:"not null" json:"triggered_at"`
	ResolvedAt          *time.Time      `json:"resolved_at"`
	ResolvedBy          *uint           `json:"resolved_by"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
