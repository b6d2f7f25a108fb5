// Package projects proje bütçesi, kategoriler, tasarruf, uyarılar ve raporlama uçları.
package projects

import (
	"strings"
	"time"

	"insaat-backend/internal/apierr"
	"insaat-backend/internal/auth"
	"insaat-backend/internal/finance"
	"insaat-backend/internal/money"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CategoryBudgetRequest struct {
	ID             uint             `json:"id"`
	BudgetedAmount *money.RawAmount `json:"budgeted_amount"`
	IsActive       *bool            `json:"is_active"`
}

type UpdateBudgetRequest struct {
	TotalBudget *money.RawAmount        `json:"total_budget"`
	Categories  []CategoryBudgetRequest `json:"categories"`
}

type CreateCategoryRequest struct {
	Name           string          `json:"name"`
	BudgetedAmount money.RawAmount `json:"budgeted_amount"`
}

type RecordSavingsRequest struct {
	Description string          `json:"description"`
	Amount      money.RawAmount `json:"amount"`
	RealizedAt  string          `json:"realized_at"` // "2026-10-17"
}

// PUT /api/projects/:id/budget
func UpdateBudgetHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body UpdateBudgetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		upd := finance.BudgetUpdate{TotalBudget: rawPtr(body.TotalBudget)}
		for _, cb := range body.Categories {
			if cb.ID == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Kategori id zorunlu")
			}
			upd.Categories = append(upd.Categories, finance.CategoryBudget{
				ID:             cb.ID,
				BudgetedAmount: rawPtr(cb.BudgetedAmount),
				IsActive:       cb.IsActive,
			})
		}

		project, err := svc.UpdateProjectBudget(c.UserContext(), projectID, upd, userID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(project)
	}
}

// POST /api/projects/:id/categories
func CreateCategoryHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body CreateCategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		cat, err := svc.CreateCategory(c.UserContext(), projectID, finance.CategoryInput{
			Name:           body.Name,
			BudgetedAmount: body.BudgetedAmount.Decimal(),
			UserID:         userID,
		})
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.Status(fiber.StatusCreated).JSON(finance.NewCategoryView(*cat))
	}
}

// POST /api/projects/:id/categories/import
// "file" alanında .xlsx: A sütunu kategori adı, B sütunu bütçe.
func ImportCategoriesHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dosya yüklenemedi: "+err.Error())
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Sadece .xlsx dosyaları yüklenebilir")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Dosya açılamadı: "+err.Error())
		}
		defer file.Close()

		res, err := svc.ImportCategories(c.UserContext(), projectID, file, userID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(res)
	}
}

// POST /api/projects/:id/savings
func RecordSavingsHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body RecordSavingsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		var realized time.Time
		if body.RealizedAt != "" {
			realized, err = time.Parse("2006-01-02", body.RealizedAt)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı YYYY-MM-DD olmalı")
			}
		}

		rec, err := svc.RecordSavings(c.UserContext(), finance.SavingsInput{
			ProjectID:   projectID,
			Description: body.Description,
			Amount:      body.Amount.Decimal(),
			RealizedAt:  realized,
			UserID:      userID,
		})
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

// GET /api/projects/:id/alerts?active=true
func ListAlertsHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		alerts, err := svc.ListAlerts(c.UserContext(), projectID, c.QueryBool("active", false))
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(alerts)
	}
}

// POST /api/alerts/:id/resolve
func ResolveAlertHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		alertID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		alert, err := svc.ResolveAlert(c.UserContext(), alertID, userID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(alert)
	}
}

// GET /api/projects/:id/snapshot
func SnapshotHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		snap, err := svc.Snapshot(c.UserContext(), projectID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(snap)
	}
}

// GET /api/projects/:id/financial-summary
func FinancialSummaryHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		sum, err := svc.FinancialSummary(c.UserContext(), projectID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(sum)
	}
}

// POST /api/recalculate-all
// Hatalar kalem bazında toplanır; cevap her zaman 200.
func RecalculateAllHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		categories := svc.RecalculateAllCategories(ctx)
		projects := svc.RecalculateAllProjects(ctx)
		return c.JSON(fiber.Map{
			"categories": categories,
			"projects":   projects,
		})
	}
}

func rawPtr(r *money.RawAmount) *decimal.Decimal {
	if r == nil || !r.IsSet() {
		return nil
	}
	d := r.Decimal()
	return &d
}
