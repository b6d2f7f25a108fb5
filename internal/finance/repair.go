package finance

import (
	"context"
	"fmt"
	"sync"

	"insaat-backend/internal/logging"
	"insaat-backend/internal/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// RepairResult summarizes a bulk recompute. Item failures are collected and
// never abort the batch.
type RepairResult struct {
	Fixed  int      `json:"fixed"`
	Errors []string `json:"errors"`
}

type repairCollector struct {
	mu     sync.Mutex
	result RepairResult
}

func (c *repairCollector) ok() {
	c.mu.Lock()
	c.result.Fixed++
	c.mu.Unlock()
}

func (c *repairCollector) fail(msg string) {
	c.mu.Lock()
	c.result.Errors = append(c.result.Errors, msg)
	c.mu.Unlock()
}

func (c *repairCollector) done() RepairResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result.Errors == nil {
		c.result.Errors = []string{}
	}
	return c.result
}

// RecalculateAllCategories recomputes every category's spent amount, each in
// its own database transaction.
func (s *Service) RecalculateAllCategories(ctx context.Context) RepairResult {
	log := s.logger.WithComponent(logging.ComponentRepair)
	col := &repairCollector{}

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.BudgetCategory{}).Order("id").Pluck("id", &ids).Error; err != nil {
		col.fail(fmt.Sprintf("list categories: %v", err))
		return col.done()
	}

	var touched []uint
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			col.fail(fmt.Sprintf("category %d: %v", id, err))
			continue
		}
		var cat *models.BudgetCategory
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			cat, err = s.recomputeCategoryLocked(tx, id)
			return err
		})
		if err != nil {
			col.fail(fmt.Sprintf("category %d: %v", id, err))
			continue
		}
		touched = append(touched, cat.ProjectID)
		col.ok()
	}

	res := col.done()
	s.afterCommit(ctx, uniqueIDs(touched), nil)
	log.Info("categories recalculated",
		logging.FieldOperation, logging.OpRepair,
		logging.FieldFixed, res.Fixed,
		logging.FieldErrorsCount, len(res.Errors))
	return res
}

// RecalculateAllProjects recomputes spent, allocated budget, status and alerts
// of every project on a bounded pool of workers. Each project runs in its own
// database transaction.
func (s *Service) RecalculateAllProjects(ctx context.Context) RepairResult {
	log := s.logger.WithComponent(logging.ComponentRepair)
	col := &repairCollector{}

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Order("id").Pluck("id", &ids).Error; err != nil {
		col.fail(fmt.Sprintf("list projects: %v", err))
		return col.done()
	}

	var (
		mu      sync.Mutex
		events  []AlertEvent
		touched []uint
	)

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				col.fail(fmt.Sprintf("project %d: %v", id, err))
				return nil
			}
			var ev []AlertEvent
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				projects, err := lockProjects(tx, id)
				if err != nil {
					return err
				}
				ev, err = s.refreshProject(tx, projects[id])
				return err
			})
			if err != nil {
				log.Warn("project repair failed",
					logging.FieldProjectID, id,
					logging.FieldError, err)
				col.fail(fmt.Sprintf("project %d: %v", id, err))
				return nil
			}
			mu.Lock()
			events = append(events, ev...)
			touched = append(touched, id)
			mu.Unlock()
			col.ok()
			return nil
		})
	}
	_ = g.Wait()

	res := col.done()
	s.afterCommit(ctx, uniqueIDs(touched), events)
	log.Info("projects recalculated",
		logging.FieldOperation, logging.OpRepair,
		logging.FieldFixed, res.Fixed,
		logging.FieldErrorsCount, len(res.Errors))
	return res
}
