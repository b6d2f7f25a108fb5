package finance

import (
	"context"
	"fmt"
	"slices"

	"insaat-backend/internal/logging"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecomputeCategorySpent rebuilds a category's spent amount from the ledger.
func (s *Service) RecomputeCategorySpent(ctx context.Context, categoryID uint) (*models.BudgetCategory, error) {
	var out *models.BudgetCategory
	var projectID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := s.recomputeCategoryLocked(tx, categoryID)
		if err != nil {
			return err
		}
		out, projectID = cat, cat.ProjectID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{projectID}, nil)
	return out, nil
}

// RecomputeProjectSpent rebuilds a project's spent amount from the ledger.
func (s *Service) RecomputeProjectSpent(ctx context.Context, projectID uint) (*models.Project, error) {
	var out *models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		p := projects[projectID]
		if err := s.recomputeProjectSpent(tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{projectID}, nil)
	return out, nil
}

// RecomputeAllocatedBudget rebuilds a project's allocated budget from its
// active categories.
func (s *Service) RecomputeAllocatedBudget(ctx context.Context, projectID uint) (*models.Project, error) {
	var out *models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		p := projects[projectID]
		if err := recomputeAllocatedBudget(tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{projectID}, nil)
	return out, nil
}

// recomputeCategoryLocked locks the category's project before recomputing,
// for callers that do not hold the project lock yet.
func (s *Service) recomputeCategoryLocked(tx *gorm.DB, categoryID uint) (*models.BudgetCategory, error) {
	var owner models.BudgetCategory
	if err := tx.Select("id", "project_id").First(&owner, categoryID).Error; err != nil {
		return nil, lookupErr(err, "category %d", categoryID)
	}
	if _, err := lockProjects(tx, owner.ProjectID); err != nil {
		return nil, err
	}
	return s.recomputeCategorySpent(tx, categoryID)
}

// recomputeCategorySpent only counts transactions that belong to the
// category's own project. Rows pointing at a category of another project are
// left out and reported.
func (s *Service) recomputeCategorySpent(tx *gorm.DB, categoryID uint) (*models.BudgetCategory, error) {
	var cat models.BudgetCategory
	if err := tx.First(&cat, categoryID).Error; err != nil {
		return nil, lookupErr(err, "category %d", categoryID)
	}

	var txns []models.ProjectTransaction
	if err := tx.Select("id", "project_id", "amount").
		Where("category_id = ?", categoryID).
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("load category transactions: %w", err)
	}

	owned := make([]models.ProjectTransaction, 0, len(txns))
	for _, t := range txns {
		if t.ProjectID == cat.ProjectID {
			owned = append(owned, t)
		}
	}
	if mismatched := len(txns) - len(owned); mismatched > 0 {
		s.logger.Warn("transactions reference a category of another project",
			logging.FieldOperation, logging.OpRecompute,
			logging.FieldCategoryID, cat.ID,
			logging.FieldProjectID, cat.ProjectID,
			"mismatched", mismatched)
	}

	spent := money.NormalizeAmount(money.Sum(owned, func(t models.ProjectTransaction) decimal.Decimal { return t.Amount }))
	if err := tx.Model(&cat).Update("spent_amount", spent).Error; err != nil {
		return nil, fmt.Errorf("update category %d spent: %w", cat.ID, err)
	}
	cat.SpentAmount = spent
	return &cat, nil
}

func (s *Service) recomputeProjectSpent(tx *gorm.DB, p *models.Project) error {
	var amounts []decimal.Decimal
	if err := tx.Model(&models.ProjectTransaction{}).
		Where("project_id = ?", p.ID).
		Pluck("amount", &amounts).Error; err != nil {
		return fmt.Errorf("load project transactions: %w", err)
	}

	spent := money.NormalizeAmount(money.Sum(amounts, func(d decimal.Decimal) decimal.Decimal { return d }))
	if err := tx.Model(p).Update("spent_amount", spent).Error; err != nil {
		return fmt.Errorf("update project %d spent: %w", p.ID, err)
	}
	p.SpentAmount = spent
	return nil
}

func recomputeAllocatedBudget(tx *gorm.DB, p *models.Project) error {
	var budgets []decimal.Decimal
	if err := tx.Model(&models.BudgetCategory{}).
		Where("project_id = ? AND is_active = ?", p.ID, true).
		Pluck("budgeted_amount", &budgets).Error; err != nil {
		return fmt.Errorf("load category budgets: %w", err)
	}

	allocated := money.NormalizeAmount(money.Sum(budgets, func(d decimal.Decimal) decimal.Decimal { return d }))
	if err := tx.Model(p).Update("allocated_budget", allocated).Error; err != nil {
		return fmt.Errorf("update project %d allocated budget: %w", p.ID, err)
	}
	p.AllocatedBudget = allocated
	return nil
}

func refreshStatus(tx *gorm.DB, p *models.Project) error {
	status := ClassifyFinancialStatus(p.SpentAmount, p.TotalBudget, p.EstimatedSavings)
	if status == p.FinancialStatus {
		return nil
	}
	if err := tx.Model(p).Update("financial_status", status).Error; err != nil {
		return fmt.Errorf("update project %d status: %w", p.ID, err)
	}
	p.FinancialStatus = status
	return nil
}

// refreshProject runs the project half of the cascade: spent, allocated
// budget, status, alerts.
func (s *Service) refreshProject(tx *gorm.DB, p *models.Project) ([]AlertEvent, error) {
	if err := s.recomputeProjectSpent(tx, p); err != nil {
		return nil, err
	}
	if err := recomputeAllocatedBudget(tx, p); err != nil {
		return nil, err
	}
	if err := refreshStatus(tx, p); err != nil {
		return nil, err
	}
	return s.evaluateAlerts(tx, p)
}

// cascade recomputes the given categories and then the given projects, each
// at most once. Projects must already be locked by the caller.
func (s *Service) cascade(tx *gorm.DB, categoryIDs []uint, projects map[uint]*models.Project) ([]AlertEvent, error) {
	for _, id := range uniqueIDs(categoryIDs) {
		if _, err := s.recomputeCategorySpent(tx, id); err != nil {
			return nil, err
		}
	}

	var events []AlertEvent
	for _, id := range sortedKeys(projects) {
		ev, err := s.refreshProject(tx, projects[id])
		if err != nil {
			return nil, err
		}
		events = append(events, ev...)
	}
	return events, nil
}

// lockProjects loads the projects in ascending id order, taking row locks on
// postgres so concurrent cascades on the same project serialize.
func lockProjects(tx *gorm.DB, ids ...uint) (map[uint]*models.Project, error) {
	out := make(map[uint]*models.Project, len(ids))
	for _, id := range uniqueIDs(ids) {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var p models.Project
		if err := q.First(&p, id).Error; err != nil {
			return nil, lookupErr(err, "project %d", id)
		}
		out[id] = &p
	}
	return out, nil
}

// lockTransaction loads a ledger row, locking it on postgres. Update and
// delete take this lock before the project locks so that a concurrent move
// is seen with its committed project.
func lockTransaction(tx *gorm.DB, id uint) (*models.ProjectTransaction, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var txn models.ProjectTransaction
	if err := q.First(&txn, id).Error; err != nil {
		return nil, lookupErr(err, "transaction %d", id)
	}
	return &txn, nil
}

// uniqueIDs returns the non-zero ids sorted ascending without duplicates.
func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func sortedKeys(m map[uint]*models.Project) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
