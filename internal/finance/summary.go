package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insaat-backend/internal/logging"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
)

// Summary is the headline view of a project's finances.
type Summary struct {
	ProjectID             uint                   `json:"project_id"`
	ProjectCode           string                 `json:"project_code"`
	TotalBudget           decimal.Decimal        `json:"total_budget"`
	AllocatedBudget       decimal.Decimal        `json:"allocated_budget"`
	UnallocatedBudget     decimal.Decimal        `json:"unallocated_budget"`
	SpentAmount           decimal.Decimal        `json:"spent_amount"`
	RemainingBudget       decimal.Decimal        `json:"remaining_budget"`
	EstimatedSavings      decimal.Decimal        `json:"estimated_savings"`
	UtilizationPercentage decimal.Decimal        `json:"utilization_percentage"`
	FinancialStatus       models.FinancialStatus `json:"financial_status"`
	CategoryCount         int                    `json:"category_count"`
	TransactionCount      int64                  `json:"transaction_count"`
	ActiveAlerts          int64                  `json:"active_alerts"`
	GeneratedAt           time.Time              `json:"generated_at"`
}

// FinancialSummary serves from the cache when possible and fills it on a
// miss. Cache failures fall back to the database. A summary built while a
// mutation of the project committed is returned but not cached.
func (s *Service) FinancialSummary(ctx context.Context, projectID uint) (*Summary, error) {
	log := s.logger.WithComponent(logging.ComponentCache)
	version := s.version(projectID)

	if payload, ok, err := s.cache.Get(ctx, projectID); err != nil {
		log.Warn("summary cache read failed", logging.FieldProjectID, projectID, logging.FieldError, err)
	} else if ok {
		var cached Summary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}
		log.Warn("discarding undecodable cached summary", logging.FieldProjectID, projectID)
	}

	sum, err := s.buildSummary(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if s.version(projectID) != version {
		log.Debug("skipping summary cache fill after concurrent mutation", logging.FieldProjectID, projectID)
		return sum, nil
	}
	if payload, err := json.Marshal(sum); err == nil {
		if err := s.cache.Set(ctx, projectID, payload); err != nil {
			log.Warn("summary cache write failed", logging.FieldProjectID, projectID, logging.FieldError, err)
		}
		// a mutation that committed during Set may have invalidated first
		if s.version(projectID) != version {
			if err := s.cache.Invalidate(ctx, projectID); err != nil {
				log.Warn("summary cache invalidation failed", logging.FieldProjectID, projectID, logging.FieldError, err)
			}
		}
	}
	return sum, nil
}

func (s *Service) buildSummary(ctx context.Context, projectID uint) (*Summary, error) {
	db := s.db.WithContext(ctx)

	var p models.Project
	if err := db.First(&p, projectID).Error; err != nil {
		return nil, lookupErr(err, "project %d", projectID)
	}

	var categories int64
	if err := db.Model(&models.BudgetCategory{}).Where("project_id = ? AND is_active = ?", p.ID, true).Count(&categories).Error; err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	var txns int64
	if err := db.Model(&models.ProjectTransaction{}).Where("project_id = ?", p.ID).Count(&txns).Error; err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	var alerts int64
	if err := db.Model(&models.BudgetAlert{}).Where("project_id = ? AND is_active = ?", p.ID, true).Count(&alerts).Error; err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	return &Summary{
		ProjectID:             p.ID,
		ProjectCode:           p.Code,
		TotalBudget:           p.TotalBudget,
		AllocatedBudget:       p.AllocatedBudget,
		UnallocatedBudget:     money.NormalizeAmount(p.TotalBudget.Sub(p.AllocatedBudget)),
		SpentAmount:           p.SpentAmount,
		RemainingBudget:       money.NormalizeAmount(p.TotalBudget.Sub(p.SpentAmount)),
		EstimatedSavings:      p.EstimatedSavings,
		UtilizationPercentage: money.Percentage(p.SpentAmount, p.TotalBudget),
		FinancialStatus:       p.FinancialStatus,
		CategoryCount:         int(categories),
		TransactionCount:      txns,
		ActiveAlerts:          alerts,
		GeneratedAt:           s.now(),
	}, nil
}
