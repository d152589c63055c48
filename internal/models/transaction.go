package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"    // nakit
	PaymentMethodCard    PaymentMethod = "card"    // kart / pos
	PaymentMethodDigital PaymentMethod = "digital" // dijital (online, cüzdan)
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodDigital:
		return true
	}
	return false
}

// Transaction: kasa oturumuna işlenmiş tamamlanmış satış. Değiştirilmez, silinmez.
type Transaction struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	SessionID     uint          `gorm:"index;not null" json:"session_id"`
	RestaurantID  uint          `gorm:"index;not null" json:"restaurant_id"`
	PaymentMethod PaymentMethod `gorm:"size:20;not null" json:"payment_method"`
	Amount        int64         `gorm:"not null" json:"amount"`                 // net satış tutarı
	ChangeGiven   int64         `gorm:"not null;default:0" json:"change_given"` // sadece nakit, bilgi amaçlı
	PostedAt      time.Time     `gorm:"index;not null" json:"posted_at"`
	CreatedAt     time.Time     `json:"-"`
}
