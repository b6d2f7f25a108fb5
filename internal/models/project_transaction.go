package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeExpense    TransactionType = "expense"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeExpense, TransactionTypeRefund, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Signed applies the sign convention of the type: expenses are positive,
// refunds negative, adjustments keep the given sign.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	switch t {
	case TransactionTypeExpense:
		return amount.Abs()
	case TransactionTypeRefund:
		return amount.Abs().Neg()
	default:
		return amount
	}
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ProjectTransaction - proje gider/iade/düzeltme kaydı
type ProjectTransaction struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ProjectID         uint            `gorm:"index;not null" json:"project_id"`
	CategoryID        *uint           `gorm:"index" json:"category_id"`
	TransactionNumber string          `gorm:"size:20;uniqueIndex;not null" json:"transaction_number"`
	Type              TransactionType `gorm:"size:20;not null;index" json:"type"`
	Amount            decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Description       string          `gorm:"size:500" json:"description"`
	Vendor            string          `gorm:"size:150" json:"vendor"`
	TransactionDate   time.Time       `gorm:"index;not null" json:"transaction_date"`
	ApprovalStatus    ApprovalStatus  `gorm:"size:20;not null" json:"approval_status"`
	InvoiceURL        string          `gorm:"size:500" json:"invoice_url"`
	CreatedBy         uint            `json:"created_by"`
	UpdatedBy         *uint           `json:"updated_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TransactionSequence - günlük işlem numarası sayacı
type TransactionSequence struct {
	Day     string `gorm:"primaryKey;size:8"` // YYYYMMDD
	LastSeq int    `gorm:"not null"`
}
