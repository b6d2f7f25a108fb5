package finance

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"insaat-backend/internal/audit"
	"insaat-backend/internal/logging"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MaxInvoiceSize     = 10 << 20
	InvoiceContentType = "application/pdf"
)

// Attachment is an uploaded invoice.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type CreateTransactionInput struct {
	ProjectID       uint
	CategoryID      *uint
	Amount          decimal.Decimal
	Type            models.TransactionType
	Description     string
	Vendor          string
	TransactionDate time.Time
	ApprovalStatus  models.ApprovalStatus
	UserID          uint
	Invoice         *Attachment
}

// TransactionPatch holds the fields of an update; nil means unchanged.
type TransactionPatch struct {
	ProjectID       *uint
	CategoryID      *uint
	ClearCategory   bool
	Amount          *decimal.Decimal
	Type            *models.TransactionType
	Description     *string
	Vendor          *string
	TransactionDate *time.Time
	ApprovalStatus  *models.ApprovalStatus
	Invoice         *Attachment
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type TransactionFilter struct {
	ProjectID  uint
	CategoryID uint
	Type       models.TransactionType
	From       *time.Time
	To         *time.Time
}

// CreateTransaction records a ledger entry and cascades it to the category,
// the project, its status and its alerts in one database transaction.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*models.ProjectTransaction, error) {
	if !in.Type.Valid() {
		return nil, invalidInput("unknown transaction type %q", in.Type)
	}
	approval := in.ApprovalStatus
	if approval == "" {
		approval = models.ApprovalPending
	} else if !approval.Valid() {
		return nil, invalidInput("unknown approval status %q", approval)
	}
	if err := validateAttachment(in.Invoice); err != nil {
		return nil, err
	}

	now := s.now()
	date := in.TransactionDate
	if date.IsZero() {
		date = now
	}
	amount := in.Type.Signed(money.NormalizeAmount(in.Amount))

	invoiceURL, err := s.storeInvoice(ctx, in.Invoice, now)
	if err != nil {
		return nil, err
	}

	var txn models.ProjectTransaction
	var events []AlertEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects, err := lockProjects(tx, in.ProjectID)
		if err != nil {
			return err
		}
		if in.CategoryID != nil {
			if err := checkCategory(tx, *in.CategoryID, in.ProjectID); err != nil {
				return err
			}
		}

		number, err := nextTransactionNumber(tx, now)
		if err != nil {
			return err
		}

		txn = models.ProjectTransaction{
			ProjectID:         in.ProjectID,
			CategoryID:        in.CategoryID,
			TransactionNumber: number,
			Type:              in.Type,
			Amount:            amount,
			Description:       strings.TrimSpace(in.Description),
			Vendor:            strings.TrimSpace(in.Vendor),
			TransactionDate:   date,
			ApprovalStatus:    approval,
			InvoiceURL:        invoiceURL,
			CreatedBy:         in.UserID,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return writeErr(err, "insert transaction")
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &txn.ProjectID,
			UserID:      in.UserID,
			EntityType:  audit.EntityTransaction,
			EntityID:    txn.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s %s %s", txn.TransactionNumber, txn.Type, txn.Amount.StringFixed(2)),
			After:       txn,
		}); err != nil {
			return err
		}

		events, err = s.cascade(tx, categoryIDs(in.CategoryID), projects)
		return err
	})
	if err != nil {
		s.discardInvoice(ctx, invoiceURL)
		return nil, err
	}

	s.logger.Info("transaction created",
		logging.FieldOperation, logging.OpCreate,
		logging.FieldTxnID, txn.ID,
		logging.FieldTxnNumber, txn.TransactionNumber,
		logging.FieldProjectID, txn.ProjectID)
	s.afterCommit(ctx, []uint{txn.ProjectID}, events)
	return &txn, nil
}

// UpdateTransaction applies patch and recomputes the old and new category and
// project. The transaction number is never changed.
func (s *Service) UpdateTransaction(ctx context.Context, id uint, patch TransactionPatch, userID uint) (*models.ProjectTransaction, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, invalidInput("unknown transaction type %q", *patch.Type)
	}
	if patch.ApprovalStatus != nil && !patch.ApprovalStatus.Valid() {
		return nil, invalidInput("unknown approval status %q", *patch.ApprovalStatus)
	}
	if err := validateAttachment(patch.Invoice); err != nil {
		return nil, err
	}

	invoiceURL, err := s.storeInvoice(ctx, patch.Invoice, s.now())
	if err != nil {
		return nil, err
	}

	var txn models.ProjectTransaction
	var events []AlertEvent
	var touched []uint
	var replacedInvoice string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		txn = *locked
		before := txn

		newProjectID := txn.ProjectID
		if patch.ProjectID != nil {
			newProjectID = *patch.ProjectID
		}
		projects, err := lockProjects(tx, before.ProjectID, newProjectID)
		if err != nil {
			return err
		}

		newCategoryID := txn.CategoryID
		switch {
		case patch.ClearCategory:
			newCategoryID = nil
		case patch.CategoryID != nil:
			newCategoryID = patch.CategoryID
		}
		if newCategoryID != nil {
			if err := checkCategory(tx, *newCategoryID, newProjectID); err != nil {
				return err
			}
		}

		typ := txn.Type
		if patch.Type != nil {
			typ = *patch.Type
		}
		amount := txn.Amount
		if patch.Amount != nil {
			amount = *patch.Amount
		}

		txn.ProjectID = newProjectID
		txn.CategoryID = newCategoryID
		txn.Type = typ
		txn.Amount = typ.Signed(money.NormalizeAmount(amount))
		if patch.Description != nil {
			txn.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Vendor != nil {
			txn.Vendor = strings.TrimSpace(*patch.Vendor)
		}
		if patch.TransactionDate != nil && !patch.TransactionDate.IsZero() {
			txn.TransactionDate = *patch.TransactionDate
		}
		if patch.ApprovalStatus != nil {
			txn.ApprovalStatus = *patch.ApprovalStatus
		}
		if invoiceURL != "" {
			replacedInvoice = txn.InvoiceURL
			txn.InvoiceURL = invoiceURL
		}
		txn.UpdatedBy = &userID

		if err := tx.Model(&txn).Select(
			"project_id", "category_id", "type", "amount", "description", "vendor",
			"transaction_date", "approval_status", "invoice_url", "updated_by",
		).Updates(&txn).Error; err != nil {
			return writeErr(err, "update transaction")
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &txn.ProjectID,
			UserID:      userID,
			EntityType:  audit.EntityTransaction,
			EntityID:    txn.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated", txn.TransactionNumber),
			Before:      before,
			After:       txn,
		}); err != nil {
			return err
		}

		touched = uniqueIDs([]uint{before.ProjectID, newProjectID})
		events, err = s.cascade(tx, categoryIDs(before.CategoryID, newCategoryID), projects)
		return err
	})
	if err != nil {
		s.discardInvoice(ctx, invoiceURL)
		return nil, err
	}

	s.discardInvoice(ctx, replacedInvoice)
	s.logger.Info("transaction updated",
		logging.FieldOperation, logging.OpUpdate,
		logging.FieldTxnID, txn.ID,
		logging.FieldTxnNumber, txn.TransactionNumber,
		logging.FieldProjectID, txn.ProjectID)
	s.afterCommit(ctx, touched, events)
	return &txn, nil
}

// DeleteTransaction removes a ledger entry and recomputes its former category
// and project.
func (s *Service) DeleteTransaction(ctx context.Context, id, userID uint) (DeleteResult, error) {
	var txn models.ProjectTransaction
	var events []AlertEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		txn = *locked
		projects, err := lockProjects(tx, txn.ProjectID)
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.ProjectTransaction{}, txn.ID).Error; err != nil {
			return fmt.Errorf("delete transaction %d: %w", txn.ID, err)
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			ProjectID:   &txn.ProjectID,
			UserID:      userID,
			EntityType:  audit.EntityTransaction,
			EntityID:    txn.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted", txn.TransactionNumber),
			Before:      txn,
		}); err != nil {
			return err
		}

		events, err = s.cascade(tx, categoryIDs(txn.CategoryID), projects)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.discardInvoice(ctx, txn.InvoiceURL)
	s.logger.Info("transaction deleted",
		logging.FieldOperation, logging.OpDelete,
		logging.FieldTxnID, txn.ID,
		logging.FieldTxnNumber, txn.TransactionNumber,
		logging.FieldProjectID, txn.ProjectID)
	s.afterCommit(ctx, []uint{txn.ProjectID}, events)
	return DeleteResult{
		Success: true,
		Message: fmt.Sprintf("Transaction %s deleted", txn.TransactionNumber),
	}, nil
}

// ListTransactions returns ledger rows ordered by transaction date, then id.
func (s *Service) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.ProjectTransaction, error) {
	q := s.db.WithContext(ctx).Model(&models.ProjectTransaction{})
	if f.ProjectID > 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.CategoryID > 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Type != "" {
		if !f.Type.Valid() {
			return nil, invalidInput("unknown transaction type %q", f.Type)
		}
		q = q.Where("type = ?", f.Type)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("transaction_date <= ?", *f.To)
	}

	var out []models.ProjectTransaction
	if err := q.Order("transaction_date ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func checkCategory(tx *gorm.DB, categoryID, projectID uint) error {
	var cat models.BudgetCategory
	if err := tx.Select("id", "project_id").First(&cat, categoryID).Error; err != nil {
		return lookupErr(err, "category %d", categoryID)
	}
	if cat.ProjectID != projectID {
		return notFound("category %d in project %d", categoryID, projectID)
	}
	return nil
}

func categoryIDs(ids ...*uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}

func validateAttachment(a *Attachment) error {
	if a == nil {
		return nil
	}
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != InvoiceContentType {
		return invalidInput("invoice must be %s, got %q", InvoiceContentType, a.ContentType)
	}
	if len(a.Data) == 0 {
		return invalidInput("invoice is empty")
	}
	if len(a.Data) > MaxInvoiceSize {
		return invalidInput("invoice exceeds %d bytes", MaxInvoiceSize)
	}
	return nil
}

// InvoiceFileName builds the stored name: <unixnano>-<sanitized original>.
func InvoiceFileName(now time.Time, original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		name = "invoice.pdf"
	}
	return fmt.Sprintf("%d-%s", now.UnixNano(), name)
}

func (s *Service) storeInvoice(ctx context.Context, a *Attachment, now time.Time) (string, error) {
	if a == nil {
		return "", nil
	}
	if s.files == nil {
		return "", invalidInput("invoice uploads are not configured")
	}
	url, err := s.files.Save(ctx, InvoiceFileName(now, a.FileName), a.Data)
	if err != nil {
		return "", fmt.Errorf("store invoice: %w", err)
	}
	return url, nil
}

func (s *Service) discardInvoice(ctx context.Context, url string) {
	if url == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(ctx, url); err != nil {
		s.logger.Warn("invoice cleanup failed",
			logging.FieldFile, url,
			logging.FieldError, err)
	}
}
