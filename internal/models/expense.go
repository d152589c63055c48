package models

import "time"

// Expense: oturuma işlenmiş gider. Nakit ödenen giderler kasadan düşer.
type Expense struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	SessionID     uint          `gorm:"index;not null" json:"session_id"`
	RestaurantID  uint          `gorm:"index;not null" json:"restaurant_id"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Category      string        `gorm:"size:100;not null" json:"category"`
	PaymentMethod PaymentMethod `gorm:"size:20;not null;default:'cash'" json:"payment_method"`
	Description   string        `gorm:"size:255" json:"description"`
	PostedAt      time.Time     `gorm:"index;not null" json:"posted_at"`
	CreatedAt     time.Time     `json:"-"`
}
