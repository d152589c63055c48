// Package reconcile kasa kapanışındaki beklenen nakit hesabını ve sayım farkı
// sınıflandırmasını içerir. Paketteki fonksiyonlar saf: I/O yok, saat yok.
package reconcile

import "kasa-backend/internal/models"

// CalculateBalance kasada olması gereken nakdi döner:
// açılış nakdi + nakit satışlar - nakit giderler.
// Kart ve dijital ödemeler çekmeceye girmediği için hesaba katılmaz.
func CalculateBalance(initialFloat int64, txns []models.Transaction, expenses []models.Expense) int64 {
	balance := initialFloat
	for _, t := range txns {
		if t.PaymentMethod == models.PaymentMethodCash {
			balance += t.Amount
		}
	}
	for _, e := range expenses {
		if e.PaymentMethod == models.PaymentMethodCash {
			balance -= e.Amount
		}
	}
	return balance
}

// MethodTotals ödeme yöntemi bazında satış toplamları.
type MethodTotals struct {
	Cash    int64
	Card    int64
	Digital int64
}

func (m MethodTotals) Total() int64 {
	return m.Cash + m.Card + m.Digital
}

func SumByMethod(txns []models.Transaction) MethodTotals {
	var out MethodTotals
	for _, t := range txns {
		switch t.PaymentMethod {
		case models.PaymentMethodCash:
			out.Cash += t.Amount
		case models.PaymentMethodCard:
			out.Card += t.Amount
		case models.PaymentMethodDigital:
			out.Digital += t.Amount
		}
	}
	return out
}

// SumExpenses tüm giderlerin ve sadece nakit giderlerin toplamını döner.
func SumExpenses(expenses []models.Expense) (total, cash int64) {
	for _, e := range expenses {
		total += e.Amount
		if e.PaymentMethod == models.PaymentMethodCash {
			cash += e.Amount
		}
	}
	return total, cash
}
