// Package report kapanmış kasa oturumu için Excel raporu üretir.
package report

import (
	"bytes"
	"fmt"
	"time"

	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary  = "Özet"
	SheetSales    = "Satışlar"
	SheetExpenses = "Giderler"

	timeLayout = "2006-01-02 15:04"
)

type CloseReport struct {
	Session  *models.CashSession
	Totals   metrics.Totals
	Expenses []models.Expense
	Location *time.Location
}

func (r CloseReport) FileName() string {
	return fmt.Sprintf("kasa-%d.xlsx", r.Session.ID)
}

// Build raporu xlsx olarak yazar. Açık oturum için kapanış alanları boş kalır.
func (r CloseReport) Build() (*bytes.Buffer, error) {
	if r.Session == nil {
		return nil, fmt.Errorf("build close report: session is nil")
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := r.writeSummary(f, loc); err != nil {
		return nil, err
	}
	if err := r.writeSales(f, loc); err != nil {
		return nil, err
	}
	if err := r.writeExpenses(f, loc); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf, nil
}

func (r CloseReport) writeSummary(f *excelize.File, loc *time.Location) error {
	s := r.Session
	rows := [][]any{
		{"Oturum", s.ID},
		{"Terminal", s.TerminalID},
		{"Durum", string(s.State)},
		{"Açılış", s.OpenedAt.In(loc).Format(timeLayout)},
		{"Kapanış", formatTime(s.ClosedAt, loc)},
		{"Açılış nakdi", s.InitialFloat},
		{"Nakit satış", r.Totals.TotalCash},
		{"Kart satış", r.Totals.TotalCard},
		{"Dijital satış", r.Totals.TotalDigital},
		{"Toplam satış", r.Totals.TotalSales},
		{"Toplam gider", r.Totals.TotalExpenses},
		{"Nakit gider", r.Totals.CashExpenses},
		{"Hesaplanan bakiye", optional(s.CalculatedClosingBalance)},
		{"Sayılan bakiye", optional(s.ReportedClosingBalance)},
		{"Fark", optional(s.Discrepancy)},
		{"Fark seviyesi", s.DiscrepancyTier},
		{"Açıklama", s.ClosingJustification},
		{"Kapanış notu", s.ClosingNotes},
	}
	if r.Totals.ExpensesDegraded {
		rows = append(rows, []any{"Uyarı", "Giderler okunamadı, toplamlar eksik olabilir"})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(SheetSummary, "A", "A", 22)
}

func (r CloseReport) writeSales(f *excelize.File, loc *time.Location) error {
	if _, err := f.NewSheet(SheetSales); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	header := []any{"No", "Zaman", "Ödeme", "Tutar", "Para üstü"}
	if err := f.SetSheetRow(SheetSales, "A1", &header); err != nil {
		return err
	}
	for i, t := range r.Totals.Transactions {
		row := []any{t.ID, t.PostedAt.In(loc).Format(timeLayout), string(t.PaymentMethod), t.Amount, t.ChangeGiven}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetSales, cell, &row); err != nil {
			return fmt.Errorf("write sale row %d: %w", i+2, err)
		}
	}
	return nil
}

func (r CloseReport) writeExpenses(f *excelize.File, loc *time.Location) error {
	if _, err := f.NewSheet(SheetExpenses); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	header := []any{"No", "Zaman", "Kategori", "Ödeme", "Tutar", "Açıklama"}
	if err := f.SetSheetRow(SheetExpenses, "A1", &header); err != nil {
		return err
	}
	for i, e := range r.Expenses {
		row := []any{e.ID, e.PostedAt.In(loc).Format(timeLayout), e.Category, string(e.PaymentMethod), e.Amount, e.Description}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetExpenses, cell, &row); err != nil {
			return fmt.Errorf("write expense row %d: %w", i+2, err)
		}
	}
	return nil
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}

func optional(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
