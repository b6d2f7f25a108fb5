// Package ledger proje işlemleri (gider/iade/düzeltme) için HTTP handler'ları.
package ledger

import (
	"io"
	"strconv"
	"strings"
	"time"

	"insaat-backend/internal/apierr"
	"insaat-backend/internal/auth"
	"insaat-backend/internal/finance"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/gofiber/fiber/v2"
)

type CreateTransactionRequest struct {
	ProjectID       uint            `json:"project_id"`
	CategoryID      *uint           `json:"category_id"`
	Amount          money.RawAmount `json:"amount"`
	Type            string          `json:"type"`
	Description     string          `json:"description"`
	Vendor          string          `json:"vendor"`
	TransactionDate string          `json:"transaction_date"` // "2026-10-17" veya RFC3339
	ApprovalStatus  string          `json:"approval_status"`
}

type UpdateTransactionRequest struct {
	ProjectID       *uint            `json:"project_id"`
	CategoryID      *uint            `json:"category_id"`
	ClearCategory   bool             `json:"clear_category"`
	Amount          *money.RawAmount `json:"amount"`
	Type            *string          `json:"type"`
	Description     *string          `json:"description"`
	Vendor          *string          `json:"vendor"`
	TransactionDate *string          `json:"transaction_date"`
	ApprovalStatus  *string          `json:"approval_status"`
}

type TransactionResponse struct {
	ID                uint      `json:"id"`
	ProjectID         uint      `json:"project_id"`
	CategoryID        *uint     `json:"category_id"`
	TransactionNumber string    `json:"transaction_number"`
	Type              string    `json:"type"`
	Amount            string    `json:"amount"`
	Description       string    `json:"description"`
	Vendor            string    `json:"vendor"`
	TransactionDate   string    `json:"transaction_date"`
	ApprovalStatus    string    `json:"approval_status"`
	InvoiceURL        string    `json:"invoice_url,omitempty"`
	CreatedBy         uint      `json:"created_by"`
	UpdatedBy         *uint     `json:"updated_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toResponse(t *models.ProjectTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		ProjectID:         t.ProjectID,
		CategoryID:        t.CategoryID,
		TransactionNumber: t.TransactionNumber,
		Type:              string(t.Type),
		Amount:            t.Amount.StringFixed(2),
		Description:       t.Description,
		Vendor:            t.Vendor,
		TransactionDate:   t.TransactionDate.Format("2006-01-02"),
		ApprovalStatus:    string(t.ApprovalStatus),
		InvoiceURL:        t.InvoiceURL,
		CreatedBy:         t.CreatedBy,
		UpdatedBy:         t.UpdatedBy,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// POST /api/transactions
// JSON veya multipart/form-data (fatura için "invoice" alanı) kabul eder.
func CreateTransactionHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body CreateTransactionRequest
		var invoice *finance.Attachment
		if isMultipart(c) {
			body, invoice, err = parseMultipart(c)
			if err != nil {
				return err
			}
		} else if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		if body.ProjectID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "project_id zorunlu")
		}
		if !body.Amount.IsSet() {
			return fiber.NewError(fiber.StatusBadRequest, "amount zorunlu")
		}
		date, err := parseDate(body.TransactionDate)
		if err != nil {
			return err
		}

		txn, err := svc.CreateTransaction(c.UserContext(), finance.CreateTransactionInput{
			ProjectID:       body.ProjectID,
			CategoryID:      body.CategoryID,
			Amount:          body.Amount.Decimal(),
			Type:            models.TransactionType(strings.ToLower(strings.TrimSpace(body.Type))),
			Description:     body.Description,
			Vendor:          body.Vendor,
			TransactionDate: date,
			ApprovalStatus:  models.ApprovalStatus(strings.ToLower(strings.TrimSpace(body.ApprovalStatus))),
			UserID:          userID,
			Invoice:         invoice,
		})
		if err != nil {
			return apierr.FromFinance(err)
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(txn))
	}
}

// GET /api/transactions?project_id=1&category_id=2&type=expense&from=2026-01-01&to=2026-12-31
func ListTransactionsHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.QueryID(c, "project_id")
		if err != nil {
			return err
		}
		categoryID, err := apierr.QueryID(c, "category_id")
		if err != nil {
			return err
		}

		f := finance.TransactionFilter{
			ProjectID:  projectID,
			CategoryID: categoryID,
			Type:       models.TransactionType(strings.ToLower(c.Query("type"))),
		}
		if s := c.Query("from"); s != "" {
			d, err := parseDate(s)
			if err != nil {
				return err
			}
			f.From = &d
		}
		if s := c.Query("to"); s != "" {
			d, err := parseDate(s)
			if err != nil {
				return err
			}
			// gün sonuna kadar dahil
			end := d.Add(24*time.Hour - time.Nanosecond)
			f.To = &end
		}

		txns, err := svc.ListTransactions(c.UserContext(), f)
		if err != nil {
			return apierr.FromFinance(err)
		}

		resp := make([]TransactionResponse, 0, len(txns))
		for i := range txns {
			resp = append(resp, toResponse(&txns[i]))
		}
		return c.JSON(resp)
	}
}

// PUT/PATCH /api/transactions/:id
// JSON veya multipart/form-data; yeni "invoice" eskisinin yerine geçer.
func UpdateTransactionHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body UpdateTransactionRequest
		var invoice *finance.Attachment
		if isMultipart(c) {
			body, invoice, err = parseUpdateMultipart(c)
			if err != nil {
				return err
			}
		} else if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		patch := finance.TransactionPatch{
			ProjectID:     body.ProjectID,
			CategoryID:    body.CategoryID,
			ClearCategory: body.ClearCategory,
			Description:   body.Description,
			Vendor:        body.Vendor,
			Invoice:       invoice,
		}
		if body.Amount != nil && body.Amount.IsSet() {
			d := body.Amount.Decimal()
			patch.Amount = &d
		}
		if body.Type != nil {
			t := models.TransactionType(strings.ToLower(strings.TrimSpace(*body.Type)))
			patch.Type = &t
		}
		if body.ApprovalStatus != nil {
			s := models.ApprovalStatus(strings.ToLower(strings.TrimSpace(*body.ApprovalStatus)))
			patch.ApprovalStatus = &s
		}
		if body.TransactionDate != nil && *body.TransactionDate != "" {
			d, err := parseDate(*body.TransactionDate)
			if err != nil {
				return err
			}
			patch.TransactionDate = &d
		}

		txn, err := svc.UpdateTransaction(c.UserContext(), id, patch, userID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(toResponse(txn))
	}
}

// DELETE /api/transactions/:id
func DeleteTransactionHandler(svc *finance.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		res, err := svc.DeleteTransaction(c.UserContext(), id, userID)
		if err != nil {
			return apierr.FromFinance(err)
		}
		return c.JSON(res)
	}
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

func parseMultipart(c *fiber.Ctx) (CreateTransactionRequest, *finance.Attachment, error) {
	var body CreateTransactionRequest

	pid, err := strconv.ParseUint(c.FormValue("project_id"), 10, 64)
	if err != nil {
		return body, nil, fiber.NewError(fiber.StatusBadRequest, "project_id geçersiz")
	}
	body.ProjectID = uint(pid)
	if s := c.FormValue("category_id"); s != "" {
		cid, err := strconv.ParseUint(s, 10, 64)
		if err != nil || cid == 0 {
			return body, nil, fiber.NewError(fiber.StatusBadRequest, "category_id geçersiz")
		}
		id := uint(cid)
		body.CategoryID = &id
	}
	body.Amount = money.RawAmount(c.FormValue("amount"))
	body.Type = c.FormValue("type")
	body.Description = c.FormValue("description")
	body.Vendor = c.FormValue("vendor")
	body.TransactionDate = c.FormValue("transaction_date")
	body.ApprovalStatus = c.FormValue("approval_status")

	invoice, err := readInvoice(c)
	if err != nil {
		return body, nil, err
	}
	return body, invoice, nil
}

// parseUpdateMultipart sadece formda gönderilen alanları doldurur.
func parseUpdateMultipart(c *fiber.Ctx) (UpdateTransactionRequest, *finance.Attachment, error) {
	var body UpdateTransactionRequest

	form, err := c.MultipartForm()
	if err != nil {
		return body, nil, fiber.NewError(fiber.StatusBadRequest, "Geçersiz form verisi")
	}
	value := func(key string) *string {
		if v, ok := form.Value[key]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}

	if s := value("project_id"); s != nil {
		pid, err := strconv.ParseUint(*s, 10, 64)
		if err != nil || pid == 0 {
			return body, nil, fiber.NewError(fiber.StatusBadRequest, "project_id geçersiz")
		}
		id := uint(pid)
		body.ProjectID = &id
	}
	if s := value("category_id"); s != nil && *s != "" {
		cid, err := strconv.ParseUint(*s, 10, 64)
		if err != nil || cid == 0 {
			return body, nil, fiber.NewError(fiber.StatusBadRequest, "category_id geçersiz")
		}
		id := uint(cid)
		body.CategoryID = &id
	}
	if s := value("clear_category"); s != nil {
		body.ClearCategory, _ = strconv.ParseBool(*s)
	}
	if s := value("amount"); s != nil {
		raw := money.RawAmount(*s)
		body.Amount = &raw
	}
	body.Type = value("type")
	body.Description = value("description")
	body.Vendor = value("vendor")
	body.TransactionDate = value("transaction_date")
	body.ApprovalStatus = value("approval_status")

	invoice, err := readInvoice(c)
	if err != nil {
		return body, nil, err
	}
	return body, invoice, nil
}

// readInvoice "invoice" alanındaki dosyayı okur; alan yoksa nil döner.
func readInvoice(c *fiber.Ctx) (*finance.Attachment, error) {
	fh, err := c.FormFile("invoice")
	if err != nil {
		// fatura opsiyonel
		return nil, nil
	}
	if fh.Size > finance.MaxInvoiceSize {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Fatura en fazla 10 MB olabilir")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Fatura okunamadı")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, finance.MaxInvoiceSize+1))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Fatura okunamadı")
	}

	return &finance.Attachment{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "Tarih formatı YYYY-MM-DD olmalı")
}
