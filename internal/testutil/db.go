// Package testutil provides database fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"insaat-backend/internal/database"
	"insaat-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database in the test's temp dir. The pool is
// limited to one connection so concurrent callers queue instead of hitting
// SQLITE_BUSY.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateProject inserts a project with the given total budget.
func CreateProject(t *testing.T, db *gorm.DB, code string, totalBudget string) *models.Project {
	t.Helper()
	p := &models.Project{
		Code:            code,
		Name:            "Project " + code,
		TotalBudget:     decimal.RequireFromString(totalBudget),
		FinancialStatus: models.FinancialStatusOnTrack,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

// CreateCategory inserts an active budget category.
func CreateCategory(t *testing.T, db *gorm.DB, projectID uint, name string, budgeted string) *models.BudgetCategory {
	t.Helper()
	c := &models.BudgetCategory{
		ProjectID:      projectID,
		Name:           name,
		BudgetedAmount: decimal.RequireFromString(budgeted),
		IsActive:       true,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

// InsertTransaction writes a ledger row directly, bypassing the cascade.
func InsertTransaction(t *testing.T, db *gorm.DB, number string, projectID uint, categoryID *uint, amount string) *models.ProjectTransaction {
	t.Helper()
	txn := &models.ProjectTransaction{
		ProjectID:         projectID,
		CategoryID:        categoryID,
		TransactionNumber: number,
		Type:              models.TransactionTypeExpense,
		Amount:            decimal.RequireFromString(amount),
		TransactionDate:   time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		ApprovalStatus:    models.ApprovalPending,
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	return txn
}
