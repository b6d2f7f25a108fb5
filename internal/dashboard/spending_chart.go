package dashboard

import (
	"strconv"
	"time"

	"insaat-backend/internal/apierr"
	"insaat-backend/internal/finance"
	"insaat-backend/internal/models"
	"insaat-backend/internal/money"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

type SpendingChartPoint struct {
	Label      string          `json:"label"` // gün / hafta başlangıcı (pazartesi) / ay başlangıcı
	Expense    decimal.Decimal `json:"expense"`
	Refund     decimal.Decimal `json:"refund"` // pozitif yazılır, net'ten düşülür
	Adjustment decimal.Decimal `json:"adjustment"`
	Net        decimal.Decimal `json:"net"`
}

type SpendingChartTotals struct {
	Expense    decimal.Decimal `json:"expense"`
	Refund     decimal.Decimal `json:"refund"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Net        decimal.Decimal `json:"net"`
}

type SpendingChartResponse struct {
	ProjectID   uint                 `json:"project_id"`
	Period      string               `json:"period"` // daily | weekly | monthly
	From        string               `json:"from"`
	To          string               `json:"to"`
	Points      []SpendingChartPoint `json:"points"`
	GrandTotals SpendingChartTotals  `json:"grand_totals"`
}

// GET /api/projects/:id/spending-chart?period=daily&count=7
func SpendingChartHandler(svc *finance.Service, now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		projectID, err := apierr.ParamID(c, "id")
		if err != nil {
			return err
		}

		period := c.Query("period", PeriodDaily)
		count, err := parseCount(c.Query("count"), period)
		if err != nil {
			return err
		}

		start, end := Window(now(), period, count)
		// end dahil: son kovanın son anına kadar
		last := end.Add(-time.Nanosecond)
		txns, err := svc.ListTransactions(c.UserContext(), finance.TransactionFilter{
			ProjectID: projectID,
			From:      &start,
			To:        &last,
		})
		if err != nil {
			return apierr.FromFinance(err)
		}

		resp := BuildSpendingChart(txns, period, start, end)
		resp.ProjectID = projectID
		return c.JSON(resp)
	}
}

func parseCount(raw, period string) (int, error) {
	if raw == "" {
		switch period {
		case PeriodWeekly:
			return 8, nil
		case PeriodMonthly:
			return 12, nil
		default:
			return 7, nil
		}
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 || count > 366 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "count geçersiz")
	}
	return count, nil
}

// Window count kovalık aralığın başını ve (hariç) sonunu döndürür. Bilinmeyen
// period günlük sayılır.
func Window(now time.Time, period string, count int) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case PeriodWeekly:
		monday := bucketStart(today, PeriodWeekly)
		return monday.AddDate(0, 0, -7*(count-1)), monday.AddDate(0, 0, 7)
	case PeriodMonthly:
		first := bucketStart(today, PeriodMonthly)
		return first.AddDate(0, -(count - 1), 0), first.AddDate(0, 1, 0)
	default:
		return today.AddDate(0, 0, -(count - 1)), today.AddDate(0, 0, 1)
	}
}

func bucketStart(t time.Time, period string) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // pazartesi = 0
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

func nextBucket(t time.Time, period string) time.Time {
	switch period {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// BuildSpendingChart işlemleri kovalara dağıtır. Boş kovalar da sıfır olarak
// döner; aralık dışındaki işlemler yok sayılır.
func BuildSpendingChart(txns []models.ProjectTransaction, period string, start, end time.Time) SpendingChartResponse {
	switch period {
	case PeriodWeekly, PeriodMonthly:
	default:
		period = PeriodDaily
	}

	index := map[time.Time]int{}
	var points []SpendingChartPoint
	for b := start; b.Before(end); b = nextBucket(b, period) {
		index[b] = len(points)
		points = append(points, SpendingChartPoint{Label: b.Format("2006-01-02")})
	}

	for _, t := range txns {
		i, ok := index[bucketStart(t.TransactionDate.In(start.Location()), period)]
		if !ok {
			continue
		}
		p := &points[i]
		signed := t.Type.Signed(t.Amount)
		switch t.Type {
		case models.TransactionTypeExpense:
			p.Expense = p.Expense.Add(signed)
		case models.TransactionTypeRefund:
			p.Refund = p.Refund.Add(signed.Neg())
		default:
			p.Adjustment = p.Adjustment.Add(signed)
		}
		p.Net = p.Net.Add(signed)
	}

	var grand SpendingChartTotals
	for i := range points {
		p := &points[i]
		p.Expense = money.NormalizeAmount(p.Expense)
		p.Refund = money.NormalizeAmount(p.Refund)
		p.Adjustment = money.NormalizeAmount(p.Adjustment)
		p.Net = money.NormalizeAmount(p.Net)

		grand.Expense = grand.Expense.Add(p.Expense)
		grand.Refund = grand.Refund.Add(p.Refund)
		grand.Adjustment = grand.Adjustment.Add(p.Adjustment)
		grand.Net = grand.Net.Add(p.Net)
	}

	return SpendingChartResponse{
		Period:      period,
		From:        start.Format("2006-01-02"),
		To:          end.AddDate(0, 0, -1).Format("2006-01-02"),
		Points:      points,
		GrandTotals: grand,
	}
}
