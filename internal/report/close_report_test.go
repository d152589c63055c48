package report

import (
	"testing"
	"time"

	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func ptr[T any](v T) *T { return &v }

func TestCloseReport_Build(t *testing.T) {
	trt := time.FixedZone("TRT", 3*60*60)
	opened := time.Date(2025, 3, 14, 9, 0, 0, 0, trt)
	closed := opened.Add(10 * time.Hour)
	cashier := uint(7)

	r := CloseReport{
		Session: &models.CashSession{
			ID:                       42,
			RestaurantID:             1,
			CashierID:                &cashier,
			TerminalID:               "T1",
			InitialFloat:             50_000,
			State:                    models.SessionStateClosed,
			OpenedAt:                 opened,
			ClosedAt:                 &closed,
			CalculatedClosingBalance: ptr(int64(140_000)),
			ReportedClosingBalance:   ptr(int64(138_000)),
			Discrepancy:              ptr(int64(-2_000)),
			DiscrepancyTier:          "normal",
		},
		Totals: metrics.Totals{
			TotalSales:    150_000,
			TotalCash:     120_000,
			TotalCard:     30_000,
			TotalExpenses: 30_000,
			CashExpenses:  30_000,
			Transactions: []models.Transaction{
				{ID: 1, PaymentMethod: models.PaymentMethodCash, Amount: 120_000, PostedAt: opened.Add(time.Hour)},
				{ID: 2, PaymentMethod: models.PaymentMethodCard, Amount: 30_000, PostedAt: opened.Add(2 * time.Hour)},
			},
		},
		Expenses: []models.Expense{
			{ID: 5, Category: "tedarik", PaymentMethod: models.PaymentMethodCash, Amount: 30_000, PostedAt: opened.Add(3 * time.Hour)},
		},
		Location: trt,
	}

	buf, err := r.Build()
	require.NoError(t, err)
	assert.Equal(t, "kasa-42.xlsx", r.FileName())

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetSales, SheetExpenses}, f.GetSheetList())

	v, err := f.GetCellValue(SheetSummary, "B15")
	require.NoError(t, err)
	assert.Equal(t, "-2000", v)

	v, err = f.GetCellValue(SheetSummary, "B4")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14 09:00", v)

	sales, err := f.GetRows(SheetSales)
	require.NoError(t, err)
	assert.Len(t, sales, 3)
	assert.Equal(t, "card", sales[2][2])

	exps, err := f.GetRows(SheetExpenses)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "tedarik", exps[1][2])
}

func TestCloseReport_OpenSessionLeavesCloseFieldsEmpty(t *testing.T) {
	r := CloseReport{
		Session: &models.CashSession{ID: 3, State: models.SessionStateOpen, OpenedAt: time.Now()},
		Totals:  metrics.Totals{ExpensesDegraded: true},
	}
	buf, err := r.Build()
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	v, _ := f.GetCellValue(SheetSummary, "B13")
	assert.Equal(t, "", v)
	v, _ = f.GetCellValue(SheetSummary, "A19")
	assert.Equal(t, "Uyarı", v)
}

func TestCloseReport_NilSession(t *testing.T) {
	_, err := CloseReport{}.Build()
	assert.Error(t, err)
}
