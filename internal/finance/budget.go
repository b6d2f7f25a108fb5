package finance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"insaat-backend/internal/audit"
	"insaat-backend/internal/logging"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type CategoryBudget struct {
	ID             uint
	BudgetedAmount *decimal.Decimal
	IsActive       *bool
}

type BudgetUpdate struct {
	TotalBudget *decimal.Decimal
	Categories  []CategoryBudget
}

type CategoryInput struct {
	Name           string
	BudgetedAmount decimal.Decimal
	UserID         uint
}

type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped"`
}

// UpdateProjectBudget changes the total budget and category budgets, then
// refreshes allocated budget, status and alerts.
func (s *Service) UpdateProjectBudget(ctx context.Context, projectID uint, upd BudgetUpdate, userID uint) (*models.Project, error) {
	var project *models.Project
	var events []AlertEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		project = projects[projectID]
		before := *project

		if upd.TotalBudget != nil {
			total := money.NormalizeAmount(*upd.TotalBudget)
			if total.IsNegative() {
				return invalidInput("total budget cannot be negative")
			}
			if err := tx.Model(project).Update("total_budget", total).Error; err != nil {
				return fmt.Errorf("update total budget: %w", err)
			}
			project.TotalBudget = total
		}

		for _, cb := range upd.Categories {
			var cat models.BudgetCategory
			if err := tx.Where("id = ? AND project_id = ?", cb.ID, projectID).First(&cat).Error; err != nil {
				return lookupErr(err, "category %d in project %d", cb.ID, projectID)
			}
			updates := map[string]any{}
			if cb.BudgetedAmount != nil {
				amount := money.NormalizeAmount(*cb.BudgetedAmount)
				if amount.IsNegative() {
					return invalidInput("category %d budget cannot be negative", cb.ID)
				}
				updates["budgeted_amount"] = amount
			}
			if cb.IsActive != nil {
				updates["is_active"] = *cb.IsActive
			}
			if len(updates) == 0 {
				continue
			}
			if err := tx.Model(&cat).Updates(updates).Error; err != nil {
				return fmt.Errorf("update category %d: %w", cb.ID, err)
			}
		}

		if err := recomputeAllocatedBudget(tx, project); err != nil {
			return err
		}
		if err := refreshStatus(tx, project); err != nil {
			return err
		}
		if events, err = s.evaluateAlerts(tx, project); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &project.ID,
			UserID:      userID,
			EntityType:  audit.EntityProject,
			EntityID:    project.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("budget set to %s", project.TotalBudget.StringFixed(2)),
			Before:      before,
			After:       project,
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{projectID}, events)
	return project, nil
}

// CreateCategory adds an active budget category to a project.
func (s *Service) CreateCategory(ctx context.Context, projectID uint, in CategoryInput) (*models.BudgetCategory, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidInput("category name is required")
	}
	budgeted := money.NormalizeAmount(in.BudgetedAmount)
	if budgeted.IsNegative() {
		return nil, invalidInput("category budget cannot be negative")
	}

	var cat models.BudgetCategory
	var events []AlertEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		var dup int64
		if err := tx.Model(&models.BudgetCategory{}).
			Where("project_id = ? AND name = ?", projectID, name).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("check category name: %w", err)
		}
		if dup > 0 {
			return fmt.Errorf("%w: category %q already exists", ErrConflict, name)
		}

		cat = models.BudgetCategory{
			ProjectID:      projectID,
			Name:           name,
			BudgetedAmount: budgeted,
			IsActive:       true,
		}
		if err := tx.Create(&cat).Error; err != nil {
			return writeErr(err, "insert category")
		}
		if err := audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &cat.ProjectID,
			UserID:      in.UserID,
			EntityType:  audit.EntityCategory,
			EntityID:    cat.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("category %s created", cat.Name),
			After:       cat,
		}); err != nil {
			return err
		}

		p := projects[projectID]
		if err := recomputeAllocatedBudget(tx, p); err != nil {
			return err
		}
		if err := refreshStatus(tx, p); err != nil {
			return err
		}
		events, err = s.evaluateAlerts(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{projectID}, events)
	return &cat, nil
}

// ImportCategories reads name and budgeted amount pairs from the first sheet
// of an XLSX workbook and upserts them by name. A header row is skipped when
// its amount cell does not parse.
func (s *Service) ImportCategories(ctx context.Context, projectID uint, r io.Reader, userID uint) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, invalidInput("read workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, invalidInput("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, invalidInput("read sheet %q: %v", sheets[0], err)
	}

	res := &ImportResult{Skipped: []string{}}
	type line struct {
		name   string
		amount decimal.Decimal
	}
	var lines []line
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		name := strings.TrimSpace(row[0])
		var raw string
		if len(row) > 1 {
			raw = row[1]
		}
		if i == 0 && !looksNumeric(raw) {
			continue
		}
		amount := money.NormalizeAmount(raw)
		if amount.IsNegative() {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: negative budget for %q", i+1, name))
			continue
		}
		lines = append(lines, line{name: name, amount: amount})
	}
	if len(lines) == 0 {
		return nil, invalidInput("no category rows found")
	}

	var events []AlertEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			var cat models.BudgetCategory
			err := tx.Where("project_id = ? AND name = ?", projectID, l.name).First(&cat).Error
			switch {
			case err == nil:
				if err := tx.Model(&cat).Updates(map[string]any{
					"budgeted_amount": l.amount,
					"is_active":       true,
				}).Error; err != nil {
					return fmt.Errorf("update category %q: %w", l.name, err)
				}
				res.Updated++
			case errors.Is(err, gorm.ErrRecordNotFound):
				cat = models.BudgetCategory{ProjectID: projectID, Name: l.name, BudgetedAmount: l.amount, IsActive: true}
				if err := tx.Create(&cat).Error; err != nil {
					return writeErr(err, fmt.Sprintf("insert category %q", l.name))
				}
				res.Created++
			default:
				return fmt.Errorf("load category %q: %w", l.name, err)
			}
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &projectID,
			UserID:      userID,
			EntityType:  audit.EntityCategory,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("imported %d categories (%d new)", res.Created+res.Updated, res.Created),
			After:       res,
		}); err != nil {
			return err
		}

		p := projects[projectID]
		if err := recomputeAllocatedBudget(tx, p); err != nil {
			return err
		}
		if err := refreshStatus(tx, p); err != nil {
			return err
		}
		events, err = s.evaluateAlerts(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("categories imported",
		logging.FieldOperation, logging.OpImport,
		logging.FieldProjectID, projectID,
		"created", res.Created,
		"updated", res.Updated)
	s.afterCommit(ctx, []uint{projectID}, events)
	return res, nil
}

func looksNumeric(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
