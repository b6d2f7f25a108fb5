package finance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"insaat-backend/internal/models"

	"gorm.io/gorm"
)

// Snapshot is a consistent read of everything a project report needs.
type Snapshot struct {
	Project      models.Project              `json:"project"`
	Categories   []CategoryView              `json:"categories"`
	Transactions []models.ProjectTransaction `json:"transactions"`
	Savings      []models.ProjectSavings     `json:"savings"`
	Alerts       []models.BudgetAlert        `json:"alerts"`
	GeneratedAt  time.Time                   `json:"generated_at"`
}

// CategoryView adds the derived figures to a stored category.
type CategoryView struct {
	models.BudgetCategory
	RemainingAmount       string                `json:"remaining_amount"`
	UtilizationPercentage string                `json:"utilization_percentage"`
	Status                models.CategoryStatus `json:"status"`
}

func NewCategoryView(c models.BudgetCategory) CategoryView {
	return CategoryView{
		BudgetCategory:        c,
		RemainingAmount:       c.RemainingAmount().StringFixed(2),
		UtilizationPercentage: c.UtilizationPercentage().StringFixed(2),
		Status:                c.Status(),
	}
}

// Snapshot reads a project and its children inside one read-only transaction.
func (s *Service) Snapshot(ctx context.Context, projectID uint) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: s.now()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&snap.Project, projectID).Error; err != nil {
			return lookupErr(err, "project %d", projectID)
		}

		var cats []models.BudgetCategory
		if err := tx.Where("project_id = ?", projectID).Order("id").Find(&cats).Error; err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		snap.Categories = make([]CategoryView, 0, len(cats))
		for _, c := range cats {
			snap.Categories = append(snap.Categories, NewCategoryView(c))
		}

		if err := tx.Where("project_id = ?", projectID).
			Order("transaction_date").Order("id").
			Find(&snap.Transactions).Error; err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		if err := tx.Where("project_id = ?", projectID).Order("realized_at").Order("id").
			Find(&snap.Savings).Error; err != nil {
			return fmt.Errorf("load savings: %w", err)
		}
		if err := tx.Where("project_id = ?", projectID).Order("triggered_at DESC").Order("id DESC").
			Find(&snap.Alerts).Error; err != nil {
			return fmt.Errorf("load alerts: %w", err)
		}
		return nil
	}, snapshotTxOptions(s.db))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// snapshotTxOptions asks postgres for a repeatable-read snapshot. SQLite
// serializes transactions already and rejects isolation levels.
func snapshotTxOptions(db *gorm.DB) *sql.TxOptions {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}
