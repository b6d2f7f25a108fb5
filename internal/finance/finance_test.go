package finance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"insaat-backend/internal/models"
	"insaat-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type memCache struct {
	mu          sync.Mutex
	data        map[uint][]byte
	invalidated []uint
	gets        int

	// run before the cache is touched, outside the lock
	beforeGet func()
	beforeSet func()
}

func newMemCache() *memCache { return &memCache{data: map[uint][]byte{}} }

func (c *memCache) Get(_ context.Context, id uint) ([]byte, bool, error) {
	if hook := c.beforeGet; hook != nil {
		c.beforeGet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.data[id]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, id uint, payload []byte) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = payload
	return nil
}

func (c *memCache) Invalidate(_ context.Context, ids ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.data, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (n *recordingNotifier) PublishAlerts(_ context.Context, events []AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return nil
}

type memStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func (m *memStore) Save(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	url := "/uploads/invoices/" + name
	m.saved[url] = data
	return url, nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	delete(m.saved, url)
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	cache    *memCache
	notifier *recordingNotifier
	files    *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       testutil.NewDB(t),
		cache:    newMemCache(),
		notifier: &recordingNotifier{},
		files:    &memStore{},
	}
	f.svc = NewService(f.db,
		WithSummaryCache(f.cache),
		WithAlertNotifier(f.notifier),
		WithFileStore(f.files),
		WithClock(func() time.Time { return fixedNow }),
		WithRepairWorkers(2),
	)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func (f *fixture) project(t *testing.T, id uint) models.Project {
	t.Helper()
	var p models.Project
	if err := f.db.First(&p, id).Error; err != nil {
		t.Fatalf("load project %d: %v", id, err)
	}
	return p
}

func (f *fixture) category(t *testing.T, id uint) models.BudgetCategory {
	t.Helper()
	var c models.BudgetCategory
	if err := f.db.First(&c, id).Error; err != nil {
		t.Fatalf("load category %d: %v", id, err)
	}
	return c
}

func (f *fixture) txn(t *testing.T, id uint) models.ProjectTransaction {
	t.Helper()
	var txn models.ProjectTransaction
	if err := f.db.First(&txn, id).Error; err != nil {
		t.Fatal(err)
	}
	return txn
}

func (f *fixture) alerts(t *testing.T, projectID uint) []models.BudgetAlert {
	t.Helper()
	var out []models.BudgetAlert
	if err := f.db.Where("project_id = ?", projectID).Order("id").Find(&out).Error; err != nil {
		t.Fatalf("load alerts: %v", err)
	}
	return out
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got.String())
	}
}

func TestClassifyFinancialStatus(t *testing.T) {
	tests := []struct {
		name    string
		spent   string
		budget  string
		savings string
		want    models.FinancialStatus
	}{
		{"zero budget", "500", "0", "0", models.FinancialStatusOnTrack},
		{"negative budget", "500", "-10", "0", models.FinancialStatusOnTrack},
		{"over budget wins over savings", "1100", "1000", "200", models.FinancialStatusOverBudget},
		{"warning above ninety percent", "901", "1000", "500", models.FinancialStatusWarning},
		{"exactly ninety percent is not warning", "900", "1000", "0", models.FinancialStatusOnTrack},
		{"excellent savings", "100", "1000", "101", models.FinancialStatusExcellent},
		{"savings at ten percent is on track", "100", "1000", "100", models.FinancialStatusOnTrack},
		{"exactly at budget is warning", "1000", "1000", "0", models.FinancialStatusWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFinancialStatus(dec(tt.spent), dec(tt.budget), dec(tt.savings))
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCreateTransaction_CriticalScenario(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "P-1", "10000000")
	c := testutil.CreateCategory(t, f.db, p.ID, "Concrete", "10000000")

	txn, err := f.svc.CreateTransaction(context.Background(), CreateTransactionInput{
		ProjectID:  p.ID,
		CategoryID: &c.ID,
		Amount:     dec("9600000"),
		Type:       models.TransactionTypeExpense,
		UserID:     1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if txn.TransactionNumber != "TXN202610170001" {
		t.Errorf("unexpected number %s", txn.TransactionNumber)
	}

	assertDecimal(t, "category spent", f.category(t, c.ID).SpentAmount, "9600000")
	got := f.project(t, p.ID)
	assertDecimal(t, "project spent", got.SpentAmount, "9600000")
	assertDecimal(t, "allocated", got.AllocatedBudget, "10000000")
	if got.FinancialStatus != models.FinancialStatusWarning {
		t.Errorf("expected warning, got %s", got.FinancialStatus)
	}

	alerts := f.alerts(t, p.ID)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.AlertType != models.AlertTypeCritical || !a.IsActive {
		t.Errorf("unexpected alert %+v", a)
	}
	assertDecimal(t, "threshold", a.ThresholdPercentage, "95")
	assertDecimal(t, "current", a.CurrentPercentage, "96")

	if len(f.notifier.events) != 1 || !f.notifier.events[0].Created {
		t.Errorf("expected one created event, got %+v", f.notifier.events)
	}
	if len(f.cache.invalidated) == 0 || f.cache.invalidated[0] != p.ID {
		t.Errorf("expected cache invalidation for project %d, got %v", p.ID, f.cache.invalidated)
	}
}

func TestAlertUpsertKeepsSingleActiveRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "100")

	for _, amount := range []string{"96", "1"} {
		if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{
			ProjectID: p.ID,
			Amount:    dec(amount),
			Type:      models.TransactionTypeExpense,
		}); err != nil {
			t.Fatalf("create %s: %v", amount, err)
		}
	}

	alerts := f.alerts(t, p.ID)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert row, got %d", len(alerts))
	}
	assertDecimal(t, "current", alerts[0].CurrentPercentage, "97")
	if len(f.notifier.events) != 2 || f.notifier.events[1].Created {
		t.Errorf("expected second event to be an update, got %+v", f.notifier.events)
	}
}

func TestAlerts_WarningAndOverBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("850"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	alerts := f.alerts(t, p.ID)
	if len(alerts) != 1 || alerts[0].AlertType != models.AlertTypeWarning {
		t.Fatalf("expected one warning alert, got %+v", alerts)
	}

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("300"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	types := map[models.AlertType]bool{}
	for _, a := range f.alerts(t, p.ID) {
		types[a.AlertType] = a.IsActive
	}
	if !types[models.AlertTypeWarning] || !types[models.AlertTypeCritical] || !types[models.AlertTypeOverBudget] {
		t.Errorf("expected warning, critical and over_budget to be active, got %v", types)
	}
	if got := f.project(t, p.ID).FinancialStatus; got != models.FinancialStatusOverBudget {
		t.Errorf("expected over_budget, got %s", got)
	}
}

func TestAlerts_ZeroBudgetRaisesOverBudgetOnly(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "P-1", "0")

	if _, err := f.svc.CreateTransaction(context.Background(), CreateTransactionInput{ProjectID: p.ID, Amount: dec("500"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	alerts := f.alerts(t, p.ID)
	if len(alerts) != 1 || alerts[0].AlertType != models.AlertTypeOverBudget || !alerts[0].IsActive {
		t.Fatalf("expected a single active over_budget alert, got %+v", alerts)
	}
	assertDecimal(t, "threshold", alerts[0].ThresholdPercentage, "100")
	assertDecimal(t, "current", alerts[0].CurrentPercentage, "0")
	if got := f.project(t, p.ID).FinancialStatus; got != models.FinancialStatusOnTrack {
		t.Errorf("expected on_track, got %s", got)
	}
}

func TestAlerts_ZeroBudgetNoSpendRaisesNothing(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "P-1", "0")

	if _, err := f.svc.EvaluateBudgetAlerts(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(f.alerts(t, p.ID)); n != 0 {
		t.Errorf("expected no alerts, got %d", n)
	}
}

func TestDeleteTransaction_ResetsSpent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	c := testutil.CreateCategory(t, f.db, p.ID, "Steel", "500")

	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, CategoryID: &c.ID, Amount: dec("120.50"), Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.DeleteTransaction(ctx, txn.ID, 1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}
	assertDecimal(t, "category spent", f.category(t, c.ID).SpentAmount, "0")
	assertDecimal(t, "project spent", f.project(t, p.ID).SpentAmount, "0")

	if _, err := f.svc.DeleteTransaction(ctx, txn.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUpdateTransaction_MovesBetweenProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateProject(t, f.db, "A", "1000")
	b := testutil.CreateProject(t, f.db, "B", "1000")
	ca := testutil.CreateCategory(t, f.db, a.ID, "Labor", "1000")
	cb := testutil.CreateCategory(t, f.db, b.ID, "Labor", "1000")

	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: a.ID, CategoryID: &ca.ID, Amount: dec("200"), Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.svc.UpdateTransaction(ctx, txn.ID, TransactionPatch{
		ProjectID:  &b.ID,
		CategoryID: &cb.ID,
		Amount:     ptr(dec("250")),
	}, 2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TransactionNumber != txn.TransactionNumber {
		t.Errorf("transaction number changed from %s to %s", txn.TransactionNumber, updated.TransactionNumber)
	}
	if updated.UpdatedBy == nil || *updated.UpdatedBy != 2 {
		t.Errorf("expected updated_by 2, got %v", updated.UpdatedBy)
	}

	assertDecimal(t, "old category", f.category(t, ca.ID).SpentAmount, "0")
	assertDecimal(t, "old project", f.project(t, a.ID).SpentAmount, "0")
	assertDecimal(t, "new category", f.category(t, cb.ID).SpentAmount, "250")
	assertDecimal(t, "new project", f.project(t, b.ID).SpentAmount, "250")
}

// assertLedgerTotals checks that stored project and category spent amounts
// match a fresh sum of the ledger.
func assertLedgerTotals(t *testing.T, db *gorm.DB, projectIDs ...uint) {
	t.Helper()
	for _, id := range projectIDs {
		var amounts []decimal.Decimal
		if err := db.Model(&models.ProjectTransaction{}).Where("project_id = ?", id).Pluck("amount", &amounts).Error; err != nil {
			t.Fatal(err)
		}
		want := decimal.Zero
		for _, a := range amounts {
			want = want.Add(a)
		}
		var p models.Project
		if err := db.First(&p, id).Error; err != nil {
			t.Fatal(err)
		}
		if !p.SpentAmount.Equal(want) {
			t.Errorf("project %d: stored spent %s, ledger sum %s", id, p.SpentAmount, want)
		}

		var cats []models.BudgetCategory
		db.Where("project_id = ?", id).Find(&cats)
		for _, c := range cats {
			var camounts []decimal.Decimal
			db.Model(&models.ProjectTransaction{}).Where("category_id = ? AND project_id = ?", c.ID, id).Pluck("amount", &camounts)
			cwant := decimal.Zero
			for _, a := range camounts {
				cwant = cwant.Add(a)
			}
			if !c.SpentAmount.Equal(cwant) {
				t.Errorf("category %d: stored spent %s, ledger sum %s", c.ID, c.SpentAmount, cwant)
			}
		}
	}
}

func TestConcurrentMoveAndDeleteKeepTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateProject(t, f.db, "A", "1000")
	b := testutil.CreateProject(t, f.db, "B", "1000")
	c := testutil.CreateProject(t, f.db, "C", "1000")
	ca := testutil.CreateCategory(t, f.db, a.ID, "Labor", "1000")
	cb := testutil.CreateCategory(t, f.db, b.ID, "Labor", "1000")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: a.ID, CategoryID: &ca.ID, Amount: dec("50"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}

	for round := 0; round < 5; round++ {
		x, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: a.ID, CategoryID: &ca.ID, Amount: dec("100"), Type: models.TransactionTypeExpense})
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateTransaction(ctx, x.ID, TransactionPatch{ProjectID: &b.ID, CategoryID: &cb.ID}, 1)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateTransaction(ctx, x.ID, TransactionPatch{ProjectID: &c.ID, ClearCategory: true}, 1)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.DeleteTransaction(ctx, x.ID, 1)
			errs <- err
		}()
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil && !errors.Is(err, ErrNotFound) {
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		assertLedgerTotals(t, f.db, a.ID, b.ID, c.ID)
	}
}

func TestUpdateAndDelete_MissingTransaction(t *testing.T) {
	f := newFixture(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := lockTransaction(tx, 999)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTransaction_AmountOnlyRecomputesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("100"), Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateTransaction(ctx, txn.ID, TransactionPatch{Amount: ptr(dec("950"))}, 1); err != nil {
		t.Fatal(err)
	}
	got := f.project(t, p.ID)
	assertDecimal(t, "project spent", got.SpentAmount, "950")
	if got.FinancialStatus != models.FinancialStatusWarning {
		t.Errorf("expected warning, got %s", got.FinancialStatus)
	}
}

func TestUpdateTransaction_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	other := testutil.CreateProject(t, f.db, "P-2", "1000")
	foreign := testutil.CreateCategory(t, f.db, other.ID, "Other", "10")

	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("10"), Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		id    uint
		patch TransactionPatch
	}{
		{"missing transaction", 9999, TransactionPatch{}},
		{"missing project", txn.ID, TransactionPatch{ProjectID: ptr(uint(9999))}},
		{"missing category", txn.ID, TransactionPatch{CategoryID: ptr(uint(9999))}},
		{"category of another project", txn.ID, TransactionPatch{CategoryID: &foreign.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateTransaction(ctx, tt.id, tt.patch, 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	other := testutil.CreateProject(t, f.db, "P-2", "1000")
	foreign := testutil.CreateCategory(t, f.db, other.ID, "Other", "10")

	tests := []struct {
		name    string
		in      CreateTransactionInput
		wantErr error
	}{
		{"unknown type", CreateTransactionInput{ProjectID: p.ID, Amount: dec("1"), Type: "gift"}, ErrInvalidInput},
		{"unknown approval", CreateTransactionInput{ProjectID: p.ID, Amount: dec("1"), Type: models.TransactionTypeExpense, ApprovalStatus: "maybe"}, ErrInvalidInput},
		{"missing project", CreateTransactionInput{ProjectID: 9999, Amount: dec("1"), Type: models.TransactionTypeExpense}, ErrNotFound},
		{"missing category", CreateTransactionInput{ProjectID: p.ID, CategoryID: ptr(uint(9999)), Amount: dec("1"), Type: models.TransactionTypeExpense}, ErrNotFound},
		{"foreign category", CreateTransactionInput{ProjectID: p.ID, CategoryID: &foreign.ID, Amount: dec("1"), Type: models.TransactionTypeExpense}, ErrNotFound},
		{"non pdf invoice", CreateTransactionInput{
			ProjectID: p.ID, Amount: dec("1"), Type: models.TransactionTypeExpense,
			Invoice: &Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte("x")},
		}, ErrInvalidInput},
		{"oversized invoice", CreateTransactionInput{
			ProjectID: p.ID, Amount: dec("1"), Type: models.TransactionTypeExpense,
			Invoice: &Attachment{FileName: "a.pdf", ContentType: "application/pdf", Data: make([]byte, MaxInvoiceSize+1)},
		}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	var count int64
	f.db.Model(&models.ProjectTransaction{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no transactions, got %d", count)
	}
}

func TestCreateTransaction_InvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	pdf := &Attachment{FileName: "../fatura 1.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}
	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("10"), Type: models.TransactionTypeExpense, Invoice: pdf})
	if err != nil {
		t.Fatal(err)
	}
	want := "/uploads/invoices/" + InvoiceFileName(fixedNow, "../fatura 1.pdf")
	if txn.InvoiceURL != want {
		t.Errorf("expected invoice url %s, got %s", want, txn.InvoiceURL)
	}

	// Missing project: the stored file must be removed again.
	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: 9999, Amount: dec("10"), Type: models.TransactionTypeExpense, Invoice: pdf}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.files.deleted) != 1 {
		t.Errorf("expected one cleanup delete, got %v", f.files.deleted)
	}

	if _, err := f.svc.DeleteTransaction(ctx, txn.ID, 1); err != nil {
		t.Fatal(err)
	}
	if len(f.files.saved) != 0 {
		t.Errorf("expected all invoices removed, got %v", f.files.saved)
	}
}

func TestUpdateTransaction_ReplacesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	other := testutil.CreateProject(t, f.db, "P-2", "1000")
	foreign := testutil.CreateCategory(t, f.db, other.ID, "Steel", "100")

	first := &Attachment{FileName: "first.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 a")}
	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("10"), Type: models.TransactionTypeExpense, Invoice: first})
	if err != nil {
		t.Fatal(err)
	}
	oldURL := txn.InvoiceURL

	second := &Attachment{FileName: "second.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 b")}
	updated, err := f.svc.UpdateTransaction(ctx, txn.ID, TransactionPatch{Invoice: second}, 1)
	if err != nil {
		t.Fatal(err)
	}
	newURL := "/uploads/invoices/" + InvoiceFileName(fixedNow, "second.pdf")
	if updated.InvoiceURL != newURL {
		t.Errorf("expected invoice url %s, got %s", newURL, updated.InvoiceURL)
	}
	if _, ok := f.files.saved[oldURL]; ok {
		t.Errorf("replaced invoice %s should be deleted", oldURL)
	}
	if _, ok := f.files.saved[newURL]; !ok {
		t.Errorf("new invoice %s missing", newURL)
	}

	third := &Attachment{FileName: "third.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 c")}
	if _, err := f.svc.UpdateTransaction(ctx, txn.ID, TransactionPatch{CategoryID: &foreign.ID, Invoice: third}, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	thirdURL := "/uploads/invoices/" + InvoiceFileName(fixedNow, "third.pdf")
	if _, ok := f.files.saved[thirdURL]; ok {
		t.Errorf("invoice of failed update should be deleted")
	}
	if _, ok := f.files.saved[newURL]; !ok {
		t.Errorf("current invoice must survive a failed update")
	}
	if got := f.txn(t, txn.ID).InvoiceURL; got != newURL {
		t.Errorf("failed update changed invoice url to %s", got)
	}
}

func TestInvoiceFileName(t *testing.T) {
	now := time.Unix(0, 42)
	tests := map[string]string{
		"fatura.pdf":          "42-fatura.pdf",
		"../../etc/passwd":    "42-passwd",
		"C:\\docs\\ödeme.pdf": "42-deme.pdf",
		"":                    "42-invoice.pdf",
		"my invoice (1).pdf":  "42-my_invoice__1_.pdf",
	}
	for in, want := range tests {
		if got := InvoiceFileName(now, in); got != want {
			t.Errorf("InvoiceFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransactionSigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	tests := []struct {
		typ    models.TransactionType
		amount string
		want   string
	}{
		{models.TransactionTypeExpense, "-100", "100"},
		{models.TransactionTypeRefund, "40", "-40"},
		{models.TransactionTypeAdjustment, "-5.555", "-5.56"},
	}
	for _, tt := range tests {
		txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec(tt.amount), Type: tt.typ})
		if err != nil {
			t.Fatal(err)
		}
		assertDecimal(t, string(tt.typ), txn.Amount, tt.want)
	}
	assertDecimal(t, "project spent", f.project(t, p.ID).SpentAmount, "54.44")
}

func TestTransactionNumbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	testutil.InsertTransaction(t, f.db, "TXN202610170007", p.ID, nil, "1")

	var numbers []string
	for i := 0; i < 3; i++ {
		txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("1"), Type: models.TransactionTypeExpense})
		if err != nil {
			t.Fatal(err)
		}
		numbers = append(numbers, txn.TransactionNumber)
	}
	want := []string{"TXN202610170008", "TXN202610170009", "TXN202610170010"}
	for i := range want {
		if numbers[i] != want[i] {
			t.Errorf("number %d: expected %s, got %s", i, want[i], numbers[i])
		}
	}
}

func TestRecomputeCategorySpent_IgnoresOtherProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateProject(t, f.db, "A", "1000")
	b := testutil.CreateProject(t, f.db, "B", "1000")
	c := testutil.CreateCategory(t, f.db, a.ID, "Labor", "1000")

	testutil.InsertTransaction(t, f.db, "TXN202610170001", a.ID, &c.ID, "100.10")
	testutil.InsertTransaction(t, f.db, "TXN202610170002", b.ID, &c.ID, "900")

	for i := 0; i < 2; i++ {
		cat, err := f.svc.RecomputeCategorySpent(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		assertDecimal(t, "returned spent", cat.SpentAmount, "100.10")
		assertDecimal(t, "stored spent", f.category(t, c.ID).SpentAmount, "100.10")
	}

	if _, err := f.svc.RecomputeCategorySpent(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecomputeCategorySpent_ConcurrentWithLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "100000")
	c := testutil.CreateCategory(t, f.db, p.ID, "Labor", "100000")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, CategoryID: &c.ID, Amount: dec("12.34"), Type: models.TransactionTypeExpense})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.RecomputeCategorySpent(ctx, c.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	assertDecimal(t, "category spent", f.category(t, c.ID).SpentAmount, "123.4")
	assertLedgerTotals(t, f.db, p.ID)
}

func TestRecomputeProject_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	testutil.CreateCategory(t, f.db, p.ID, "A", "300")
	inactive := testutil.CreateCategory(t, f.db, p.ID, "B", "200")
	f.db.Model(inactive).Update("is_active", false)
	testutil.InsertTransaction(t, f.db, "TXN202610170001", p.ID, nil, "10.005")

	for i := 0; i < 2; i++ {
		if _, err := f.svc.RecomputeProjectSpent(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.RecomputeAllocatedBudget(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		got := f.project(t, p.ID)
		assertDecimal(t, "spent", got.SpentAmount, "10.01")
		assertDecimal(t, "allocated", got.AllocatedBudget, "300")
	}

	if _, err := f.svc.RecomputeProjectSpent(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var categories []uint
	for _, code := range []string{"A", "B", "C"} {
		p := testutil.CreateProject(t, f.db, code, "100")
		c := testutil.CreateCategory(t, f.db, p.ID, "Main", "100")
		categories = append(categories, c.ID)
		testutil.InsertTransaction(t, f.db, "TXN2026101700"+code, p.ID, &c.ID, "96")
	}

	cats := f.svc.RecalculateAllCategories(ctx)
	if cats.Fixed != 3 || len(cats.Errors) != 0 {
		t.Errorf("unexpected category result %+v", cats)
	}
	projects := f.svc.RecalculateAllProjects(ctx)
	if projects.Fixed != 3 || len(projects.Errors) != 0 {
		t.Errorf("unexpected project result %+v", projects)
	}

	for _, id := range categories {
		assertDecimal(t, "category spent", f.category(t, id).SpentAmount, "96")
	}
	var projs []models.Project
	f.db.Find(&projs)
	for _, p := range projs {
		assertDecimal(t, "project spent", p.SpentAmount, "96")
		if p.FinancialStatus != models.FinancialStatusWarning {
			t.Errorf("project %s: expected warning, got %s", p.Code, p.FinancialStatus)
		}
		if n := len(f.alerts(t, p.ID)); n != 1 {
			t.Errorf("project %s: expected 1 alert, got %d", p.Code, n)
		}
	}

	// Running again changes nothing and raises no new rows.
	f.svc.RecalculateAllProjects(ctx)
	var alertCount int64
	f.db.Model(&models.BudgetAlert{}).Count(&alertCount)
	if alertCount != 3 {
		t.Errorf("expected 3 alerts after second run, got %d", alertCount)
	}
}

func TestResolveAndListAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "100")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("90"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	active, err := f.svc.ListAlerts(ctx, p.ID, true)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active alert, got %v (%v)", active, err)
	}

	resolved, err := f.svc.ResolveAlert(ctx, active[0].ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.IsActive || resolved.ResolvedBy == nil || *resolved.ResolvedBy != 7 {
		t.Errorf("unexpected resolved alert %+v", resolved)
	}

	// A later cascade raises a fresh row beside the resolved one.
	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("1"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	all, err := f.svc.ListAlerts(ctx, p.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(all))
	}

	if _, err := f.svc.ResolveAlert(ctx, 9999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.ListAlerts(ctx, 9999, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProjectBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	c := testutil.CreateCategory(t, f.db, p.ID, "A", "400")
	testutil.CreateCategory(t, f.db, p.ID, "B", "100")
	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("880"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.UpdateProjectBudget(ctx, p.ID, BudgetUpdate{
		TotalBudget: ptr(dec("900")),
		Categories:  []CategoryBudget{{ID: c.ID, BudgetedAmount: ptr(dec("600")), IsActive: ptr(true)}},
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "total", got.TotalBudget, "900")
	assertDecimal(t, "allocated", got.AllocatedBudget, "700")
	if got.FinancialStatus != models.FinancialStatusWarning {
		t.Errorf("expected warning, got %s", got.FinancialStatus)
	}
	types := map[models.AlertType]bool{}
	for _, a := range f.alerts(t, p.ID) {
		types[a.AlertType] = true
	}
	if !types[models.AlertTypeCritical] {
		t.Errorf("expected critical alert after budget cut, got %v", types)
	}

	if _, err := f.svc.UpdateProjectBudget(ctx, p.ID, BudgetUpdate{TotalBudget: ptr(dec("-1"))}, 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.UpdateProjectBudget(ctx, p.ID, BudgetUpdate{Categories: []CategoryBudget{{ID: 9999}}}, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	c, err := f.svc.CreateCategory(ctx, p.ID, CategoryInput{Name: " Excavation ", BudgetedAmount: dec("250.255")})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Excavation" || !c.IsActive {
		t.Errorf("unexpected category %+v", c)
	}
	assertDecimal(t, "budgeted", c.BudgetedAmount, "250.26")
	assertDecimal(t, "allocated", f.project(t, p.ID).AllocatedBudget, "250.26")

	if _, err := f.svc.CreateCategory(ctx, p.ID, CategoryInput{Name: "Excavation"}); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, err := f.svc.CreateCategory(ctx, p.ID, CategoryInput{Name: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.CreateCategory(ctx, 9999, CategoryInput{Name: "X"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordSavings_Excellent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	for _, amount := range []string{"60", "50"} {
		if _, err := f.svc.RecordSavings(ctx, SavingsInput{ProjectID: p.ID, Amount: dec(amount), Description: "rebar discount"}); err != nil {
			t.Fatal(err)
		}
	}
	got := f.project(t, p.ID)
	assertDecimal(t, "estimated savings", got.EstimatedSavings, "110")
	if got.FinancialStatus != models.FinancialStatusExcellent {
		t.Errorf("expected excellent, got %s", got.FinancialStatus)
	}

	if _, err := f.svc.RecordSavings(ctx, SavingsInput{ProjectID: p.ID, Amount: dec("0")}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFinancialSummary_UsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("250"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.FinancialSummary(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "utilization", first.UtilizationPercentage, "25")
	assertDecimal(t, "remaining", first.RemainingBudget, "750")
	if first.TransactionCount != 1 {
		t.Errorf("expected 1 transaction, got %d", first.TransactionCount)
	}
	if _, ok := f.cache.data[p.ID]; !ok {
		t.Fatal("expected summary to be cached")
	}

	// Writing behind the service's back is invisible until invalidation.
	f.db.Model(&models.Project{}).Where("id = ?", p.ID).Update("spent_amount", dec("999"))
	cached, err := f.svc.FinancialSummary(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "cached spent", cached.SpentAmount, "250")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec("50"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	fresh, err := f.svc.FinancialSummary(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "fresh spent", fresh.SpentAmount, "300")

	if _, err := f.svc.FinancialSummary(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFinancialSummary_MutationDuringFillIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")

	spend := func(amount string) func() {
		return func() {
			if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, Amount: dec(amount), Type: models.TransactionTypeExpense}); err != nil {
				t.Error(err)
			}
		}
	}

	// Mutation commits between the version read and the cache fill.
	f.cache.beforeGet = spend("100")
	if _, err := f.svc.FinancialSummary(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cache.data[p.ID]; ok {
		t.Error("summary built across a mutation must not be cached")
	}

	// Mutation commits while the fill is being written.
	f.cache.beforeSet = spend("50")
	if _, err := f.svc.FinancialSummary(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cache.data[p.ID]; ok {
		t.Error("stale fill must be invalidated")
	}

	sum, err := f.svc.FinancialSummary(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "spent", sum.SpentAmount, "150")
	if _, ok := f.cache.data[p.ID]; !ok {
		t.Error("expected a quiet fill to be cached")
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "100")
	c := testutil.CreateCategory(t, f.db, p.ID, "Main", "50")

	if _, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{ProjectID: p.ID, CategoryID: &c.ID, Amount: dec("45"), Type: models.TransactionTypeExpense}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RecordSavings(ctx, SavingsInput{ProjectID: p.ID, Amount: dec("5")}); err != nil {
		t.Fatal(err)
	}

	snap, err := f.svc.Snapshot(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Categories) != 1 || len(snap.Transactions) != 1 || len(snap.Savings) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d categories, %d transactions, %d savings",
			len(snap.Categories), len(snap.Transactions), len(snap.Savings))
	}
	cv := snap.Categories[0]
	if cv.UtilizationPercentage != "90.00" || cv.Status != models.CategoryStatusWarning || cv.RemainingAmount != "5.00" {
		t.Errorf("unexpected category view %+v", cv)
	}
	if !snap.GeneratedAt.Equal(fixedNow) {
		t.Errorf("unexpected generated_at %v", snap.GeneratedAt)
	}

	if _, err := f.svc.Snapshot(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testutil.CreateProject(t, f.db, "P-1", "1000")
	other := testutil.CreateProject(t, f.db, "P-2", "1000")

	for _, in := range []CreateTransactionInput{
		{ProjectID: p.ID, Amount: dec("10"), Type: models.TransactionTypeExpense, TransactionDate: fixedNow.AddDate(0, 0, -1)},
		{ProjectID: p.ID, Amount: dec("5"), Type: models.TransactionTypeRefund, TransactionDate: fixedNow.AddDate(0, 0, -2)},
		{ProjectID: other.ID, Amount: dec("1"), Type: models.TransactionTypeExpense},
	} {
		if _, err := f.svc.CreateTransaction(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.svc.ListTransactions(ctx, TransactionFilter{ProjectID: p.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Type != models.TransactionTypeRefund {
		t.Errorf("expected refund first by date, got %+v", all)
	}

	refunds, err := f.svc.ListTransactions(ctx, TransactionFilter{Type: models.TransactionTypeRefund})
	if err != nil {
		t.Fatal(err)
	}
	if len(refunds) != 1 {
		t.Errorf("expected 1 refund, got %d", len(refunds))
	}

	if _, err := f.svc.ListTransactions(ctx, TransactionFilter{Type: "bogus"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
