package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"insaat-backend/internal/audit"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SavingsInput struct {
	ProjectID   uint
	Description string
	Amount      decimal.Decimal
	RealizedAt  time.Time
	UserID      uint
}

// RecordSavings stores a realized saving and refreshes the project's
// estimated savings and status. Savings do not touch the ledger.
func (s *Service) RecordSavings(ctx context.Context, in SavingsInput) (*models.ProjectSavings, error) {
	amount := money.NormalizeAmount(in.Amount)
	if !amount.IsPositive() {
		return nil, invalidInput("savings amount must be positive")
	}
	realized := in.RealizedAt
	if realized.IsZero() {
		realized = s.now()
	}

	var rec models.ProjectSavings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, in.ProjectID)
		if err != nil {
			return err
		}
		p := projects[in.ProjectID]

		rec = models.ProjectSavings{
			ProjectID:   in.ProjectID,
			Description: strings.TrimSpace(in.Description),
			Amount:      amount,
			RealizedAt:  realized,
			CreatedBy:   in.UserID,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return writeErr(err, "insert savings")
		}

		var amounts []decimal.Decimal
		if err := tx.Model(&models.ProjectSavings{}).
			Where("project_id = ?", p.ID).
			Pluck("amount", &amounts).Error; err != nil {
			return fmt.Errorf("load savings: %w", err)
		}
		total := money.NormalizeAmount(money.Sum(amounts, func(d decimal.Decimal) decimal.Decimal { return d }))
		if err := tx.Model(p).Update("estimated_savings", total).Error; err != nil {
			return fmt.Errorf("update estimated savings: %w", err)
		}
		p.EstimatedSavings = total

		if err := refreshStatus(tx, p); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &rec.ProjectID,
			UserID:      in.UserID,
			EntityType:  audit.EntitySavings,
			EntityID:    rec.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("savings %s recorded", rec.Amount.StringFixed(2)),
			After:       rec,
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{in.ProjectID}, nil)
	return &rec, nil
}
