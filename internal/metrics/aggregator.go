// Package metrics kasa oturumu veya tarih aralığı için satış/gider toplamlarını üretir.
// Sadece okur, hiçbir kaydı değiştirmez.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"
)

// Filter: SessionID sıfırsa tarih aralığı [From, To) kullanılır.
type Filter struct {
	RestaurantID uint
	SessionID    uint
	From         time.Time
	To           time.Time
}

// Source satış ve gider kayıtlarının okunduğu dış kaynak.
type Source interface {
	ListTransactions(ctx context.Context, f Filter) ([]models.Transaction, error)
	ListExpenses(ctx context.Context, f Filter) ([]models.Expense, error)
	SumActiveOrders(ctx context.Context, restaurantID uint) (int64, error)
}

type Totals struct {
	TotalSales    int64 `json:"total_sales"`
	TotalCash     int64 `json:"total_cash"`
	TotalCard     int64 `json:"total_card"`
	TotalDigital  int64 `json:"total_digital"`
	TotalExpenses int64 `json:"total_expenses"`
	CashExpenses  int64 `json:"cash_expenses"`

	// Sadece oturum toplamlarında dolu: açılış + nakit satış - nakit gider
	RunningBalance *int64 `json:"running_balance,omitempty"`

	// Gider sorgusu başarısız olduysa giderler 0 sayılır ve bu alan true olur
	ExpensesDegraded bool `json:"expenses_degraded"`

	Transactions []models.Transaction `json:"transactions"`
}

type Aggregator struct {
	src    Source
	loc    *time.Location
	logger *slog.Logger
}

func NewAggregator(src Source, loc *time.Location, logger *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{src: src, loc: loc, logger: logger}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// SessionTotals oturuma işlenmiş kayıtların toplamları ve anlık kasa bakiyesi.
func (a *Aggregator) SessionTotals(ctx context.Context, session *models.CashSession) (Totals, error) {
	f := Filter{RestaurantID: session.RestaurantID, SessionID: session.ID}
	totals, exps, err := a.collect(ctx, f)
	if err != nil {
		return Totals{}, err
	}

	balance := reconcile.CalculateBalance(session.InitialFloat, totals.Transactions, exps)
	totals.RunningBalance = &balance
	return totals, nil
}

func (a *Aggregator) PeriodTotals(ctx context.Context, restaurantID uint, p Period) (Totals, error) {
	totals, _, err := a.collect(ctx, Filter{RestaurantID: restaurantID, From: p.From, To: p.To})
	return totals, err
}

func (a *Aggregator) collect(ctx context.Context, f Filter) (Totals, []models.Expense, error) {
	txns, err := a.src.ListTransactions(ctx, f)
	if err != nil {
		return Totals{}, nil, fmt.Errorf("list transactions: %w", err)
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].PostedAt.Before(txns[j].PostedAt) })

	byMethod := reconcile.SumByMethod(txns)
	totals := Totals{
		TotalSales:   byMethod.Total(),
		TotalCash:    byMethod.Cash,
		TotalCard:    byMethod.Card,
		TotalDigital: byMethod.Digital,
		Transactions: txns,
	}
	if totals.Transactions == nil {
		totals.Transactions = []models.Transaction{}
	}

	// satış verisi öncelikli: gider sorgusu tek başına patlarsa toplamı düşürmüyoruz
	exps, err := a.src.ListExpenses(ctx, f)
	if err != nil {
		a.logger.Warn("gider toplamı alınamadı, 0 kabul ediliyor",
			"restaurant_id", f.RestaurantID, "session_id", f.SessionID, "error", err)
		totals.ExpensesDegraded = true
		return totals, nil, nil
	}
	totals.TotalExpenses, totals.CashExpenses = reconcile.SumExpenses(exps)
	return totals, exps, nil
}

// Receivable açık masalardaki tahsil edilmemiş sipariş toplamı ("por cobrar").
func (a *Aggregator) Receivable(ctx context.Context, restaurantID uint) (int64, error) {
	total, err := a.src.SumActiveOrders(ctx, restaurantID)
	if err != nil {
		return 0, fmt.Errorf("sum active orders: %w", err)
	}
	return total, nil
}
