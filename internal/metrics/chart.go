package metrics

import (
	"context"
	"fmt"
	"time"

	"kasa-backend/internal/models"
)

type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// DefaultCount granülerliğe göre varsayılan nokta sayısı
func (g Granularity) DefaultCount() int {
	switch g {
	case GranularityWeekly:
		return 8
	case GranularityMonthly:
		return 12
	}
	return 7
}

type ChartPoint struct {
	Label    string `json:"label"` // tarih / hafta başlangıcı / ay başlangıcı
	Cash     int64  `json:"cash"`
	Card     int64  `json:"card"`
	Digital  int64  `json:"digital"`
	Total    int64  `json:"total"`
	Expenses int64  `json:"expenses"`
}

type Chart struct {
	Granularity      Granularity  `json:"granularity"`
	From             string       `json:"from"`
	To               string       `json:"to"`
	Points           []ChartPoint `json:"points"`
	GrandTotals      ChartPoint   `json:"grand_totals"`
	ExpensesDegraded bool         `json:"expenses_degraded"`
}

// Chart now'a kadar olan son count dilimin satış dağılımını döner.
func (a *Aggregator) Chart(ctx context.Context, restaurantID uint, gran Granularity, count int, now time.Time) (Chart, error) {
	if count <= 0 {
		count = gran.DefaultCount()
	}

	var from, to time.Time
	switch gran {
	case GranularityWeekly:
		wp := WeekPeriod(now, a.loc)
		from, to = wp.From.AddDate(0, 0, -7*(count-1)), wp.To
	case GranularityMonthly:
		mp := MonthPeriod(now, a.loc)
		from, to = mp.From.AddDate(0, -(count-1), 0), mp.To
	case GranularityDaily:
		dp := DayPeriod(now, a.loc)
		from, to = dp.From.AddDate(0, 0, -(count-1)), dp.To
	default:
		return Chart{}, fmt.Errorf("%w: bilinmeyen granülerlik %q", ErrInvalidPeriod, gran)
	}

	f := Filter{RestaurantID: restaurantID, From: from, To: to}
	txns, err := a.src.ListTransactions(ctx, f)
	if err != nil {
		return Chart{}, fmt.Errorf("list transactions: %w", err)
	}

	chart := Chart{
		Granularity: gran,
		From:        from.Format(dateLayout),
		To:          to.AddDate(0, 0, -1).Format(dateLayout),
	}

	exps, err := a.src.ListExpenses(ctx, f)
	if err != nil {
		a.logger.Warn("grafik için giderler alınamadı", "restaurant_id", restaurantID, "error", err)
		chart.ExpensesDegraded = true
		exps = nil
	}

	chart.Points = a.bucket(gran, from, to, txns, exps)
	for _, p := range chart.Points {
		chart.GrandTotals.Cash += p.Cash
		chart.GrandTotals.Card += p.Card
		chart.GrandTotals.Digital += p.Digital
		chart.GrandTotals.Total += p.Total
		chart.GrandTotals.Expenses += p.Expenses
	}
	chart.GrandTotals.Label = "total"
	return chart, nil
}

func (a *Aggregator) bucketKey(gran Granularity, t time.Time) string {
	switch gran {
	case GranularityWeekly:
		return WeekPeriod(t, a.loc).From.Format(dateLayout)
	case GranularityMonthly:
		return MonthPeriod(t, a.loc).From.Format(dateLayout)
	}
	return LocalDate(t, a.loc)
}

func (a *Aggregator) bucket(gran Granularity, from, to time.Time, txns []models.Transaction, exps []models.Expense) []ChartPoint {
	var points []ChartPoint
	index := make(map[string]int)
	for cur := from; cur.Before(to); {
		label := cur.Format(dateLayout)
		index[label] = len(points)
		points = append(points, ChartPoint{Label: label})

		switch gran {
		case GranularityWeekly:
			cur = cur.AddDate(0, 0, 7)
		case GranularityMonthly:
			cur = cur.AddDate(0, 1, 0)
		default:
			cur = cur.AddDate(0, 0, 1)
		}
	}

	for _, t := range txns {
		i, ok := index[a.bucketKey(gran, t.PostedAt)]
		if !ok {
			continue
		}
		switch t.PaymentMethod {
		case models.PaymentMethodCash:
			points[i].Cash += t.Amount
		case models.PaymentMethodCard:
			points[i].Card += t.Amount
		case models.PaymentMethodDigital:
			points[i].Digital += t.Amount
		}
	}
	for _, e := range exps {
		if i, ok := index[a.bucketKey(gran, e.PostedAt)]; ok {
			points[i].Expenses += e.Amount
		}
	}
	for i := range points {
		points[i].Total = points[i].Cash + points[i].Card + points[i].Digital
	}
	return points
}
