package models

import "time"

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order sipariş modülüne aittir, burada sadece okunur.
// open/served durumundaki siparişler kasa kapanışını engeller.
type Order struct {
	ID           uint        `gorm:"primaryKey"`
	RestaurantID uint        `gorm:"index;not null"`
	TableLabel   string      `gorm:"size:50"`
	Status       OrderStatus `gorm:"size:20;not null;index"`
	Total        int64       `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusOpen, OrderStatusServed}
}
