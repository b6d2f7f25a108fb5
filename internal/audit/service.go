package audit

import (
	"encoding/json"
	"fmt"

	"insaat-backend/internal/models"

	"gorm.io/gorm"
)

const (
	EntityTransaction = "project_transaction"
	EntityCategory    = "budget_category"
	EntityProject     = "project"
	EntityAlert       = "budget_alert"
	EntitySavings     = "project_savings"
)

type LogOptions struct {
	ProjectID   *uint
	UserID      uint
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog kaydı verilen tx üzerinde yazar; işlem geri alınırsa log da geri alınır.
func WriteLog(tx *gorm.DB, opts LogOptions) error {
	// jsonb için boş string yerine "null"
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		ProjectID:   opts.ProjectID,
		UserID:      opts.UserID,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log kaydedilemedi: %w", err)
	}
	return nil
}

// Filter - liste sorgusu filtreleri, sıfır değerler yok sayılır
type Filter struct {
	ProjectID  uint
	UserID     uint
	EntityType string
	EntityID   uint
	Limit      int
}

func List(db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.Model(&models.AuditLog{})
	if f.ProjectID > 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit logları listelenemedi: %w", err)
	}
	return logs, nil
}
