package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insaat-backend/internal/audit"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	warningThreshold    = decimal.NewFromInt(85)
	criticalThreshold   = decimal.NewFromInt(95)
	overBudgetThreshold = decimal.NewFromInt(100)
)

// AlertEvent describes an alert raised or refreshed by a cascade.
type AlertEvent struct {
	AlertID             uint             `json:"alert_id"`
	ProjectID           uint             `json:"project_id"`
	ProjectCode         string           `json:"project_code"`
	Type                models.AlertType `json:"alert_type"`
	ThresholdPercentage decimal.Decimal  `json:"threshold_percentage"`
	CurrentPercentage   decimal.Decimal  `json:"current_percentage"`
	SpentAmount         decimal.Decimal  `json:"spent_amount"`
	TotalBudget         decimal.Decimal  `json:"total_budget"`
	Message             string           `json:"message"`
	Created             bool             `json:"created"`
	TriggeredAt         time.Time        `json:"triggered_at"`
}

// EvaluateBudgetAlerts raises or refreshes the alerts of a project from its
// stored totals.
func (s *Service) EvaluateBudgetAlerts(ctx context.Context, projectID uint) ([]AlertEvent, error) {
	var events []AlertEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, projectID)
		if err != nil {
			return err
		}
		events, err = s.evaluateAlerts(tx, projects[projectID])
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, nil, events)
	return events, nil
}

// evaluateAlerts applies the threshold rules. Critical and warning are
// mutually exclusive per evaluation; over budget is checked independently.
// Existing alerts are never deactivated here.
func (s *Service) evaluateAlerts(tx *gorm.DB, p *models.Project) ([]AlertEvent, error) {
	utilization := money.Percentage(p.SpentAmount, p.TotalBudget)

	type rule struct {
		typ       models.AlertType
		threshold decimal.Decimal
	}
	var fire []rule
	switch {
	case utilization.GreaterThanOrEqual(criticalThreshold):
		fire = append(fire, rule{models.AlertTypeCritical, criticalThreshold})
	case utilization.GreaterThanOrEqual(warningThreshold):
		fire = append(fire, rule{models.AlertTypeWarning, warningThreshold})
	}
	if p.SpentAmount.GreaterThan(p.TotalBudget) {
		fire = append(fire, rule{models.AlertTypeOverBudget, overBudgetThreshold})
	}

	events := make([]AlertEvent, 0, len(fire))
	for _, r := range fire {
		ev, err := s.upsertAlert(tx, p, r.typ, r.threshold, utilization)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Service) upsertAlert(tx *gorm.DB, p *models.Project, typ models.AlertType, threshold, current decimal.Decimal) (AlertEvent, error) {
	now := s.now()
	msg := alertMessage(typ, current, threshold)

	ev := AlertEvent{
		ProjectID:           p.ID,
		ProjectCode:         p.Code,
		Type:                typ,
		ThresholdPercentage: threshold,
		CurrentPercentage:   current,
		SpentAmount:         p.SpentAmount,
		TotalBudget:         p.TotalBudget,
		Message:             msg,
		TriggeredAt:         now,
	}

	var existing models.BudgetAlert
	err := tx.Where("project_id = ? AND alert_type = ? AND is_active = ?", p.ID, typ, true).
		First(&existing).Error
	switch {
	case err == nil:
		if err := tx.Model(&existing).Updates(map[string]any{
			"current_percentage": current,
			"triggered_at":       now,
			"message":            msg,
		}).Error; err != nil {
			return AlertEvent{}, fmt.Errorf("update %s alert: %w", typ, err)
		}
		ev.AlertID = existing.ID
		return ev, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return AlertEvent{}, fmt.Errorf("load %s alert: %w", typ, err)
	}

	alert := models.BudgetAlert{
		ProjectID:           p.ID,
		AlertType:           typ,
		ThresholdPercentage: threshold,
		CurrentPercentage:   current,
		Message:             msg,
		IsActive:            true,
		TriggeredAt:         now,
	}
	if err := tx.Create(&alert).Error; err != nil {
		return AlertEvent{}, writeErr(err, fmt.Sprintf("insert %s alert", typ))
	}
	ev.AlertID = alert.ID
	ev.Created = true
	return ev, nil
}

func alertMessage(typ models.AlertType, current, threshold decimal.Decimal) string {
	switch typ {
	case models.AlertTypeOverBudget:
		return fmt.Sprintf("Project is over budget: %s%% of total budget spent", current.StringFixed(2))
	case models.AlertTypeCritical:
		return fmt.Sprintf("Critical: budget utilization at %s%% (threshold %s%%)", current.StringFixed(2), threshold.String())
	default:
		return fmt.Sprintf("Warning: budget utilization at %s%% (threshold %s%%)", current.StringFixed(2), threshold.String())
	}
}

// ResolveAlert closes an active alert by hand. Resolving an already resolved
// alert is a no-op that returns the stored row.
func (s *Service) ResolveAlert(ctx context.Context, alertID, userID uint) (*models.BudgetAlert, error) {
	var alert models.BudgetAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, alertID).Error; err != nil {
			return lookupErr(err, "alert %d", alertID)
		}
		if !alert.IsActive {
			return nil
		}
		before := alert

		now := s.now()
		if err := tx.Model(&alert).Updates(map[string]any{
			"is_active":   false,
			"resolved_at": now,
			"resolved_by": userID,
		}).Error; err != nil {
			return fmt.Errorf("resolve alert %d: %w", alert.ID, err)
		}
		alert.IsActive = false
		alert.ResolvedAt = &now
		alert.ResolvedBy = &userID

		return audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &alert.ProjectID,
			UserID:      userID,
			EntityType:  audit.EntityAlert,
			EntityID:    alert.ID,
			Action:      models.AuditActionResolve,
			Description: fmt.Sprintf("%s alert resolved", alert.AlertType),
			Before:      before,
			After:       alert,
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, []uint{alert.ProjectID}, nil)
	return &alert, nil
}

// ListAlerts returns a project's alerts, newest trigger first.
func (s *Service) ListAlerts(ctx context.Context, projectID uint, activeOnly bool) ([]models.BudgetAlert, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.Project{}, projectID).Error; err != nil {
		return nil, lookupErr(err, "project %d", projectID)
	}

	q := db.Where("project_id = ?", projectID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var alerts []models.BudgetAlert
	if err := q.Order("triggered_at DESC").Order("id DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}
