package reconcile

import (
	"errors"
	"fmt"
)

// DefaultMaxAmount tek bir tutar girişi için iş kuralı üst sınırı.
const DefaultMaxAmount int64 = 10_000_000

var ErrInvalidAmount = errors.New("invalid amount")

// AmountError aralık dışı bir tutarı açıklar.
type AmountError struct {
	Field string
	Value int64
	Min   int64
	Max   int64
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%s %d geçersiz: %d ile %d arasında olmalı", e.Field, e.Value, e.Min, e.Max)
}

func (e *AmountError) Unwrap() error {
	return ErrInvalidAmount
}

// ValidateAmount tutarın [0, max] aralığında olduğunu kontrol eder.
func ValidateAmount(field string, value, max int64) error {
	if max <= 0 {
		max = DefaultMaxAmount
	}
	if value < 0 || value > max {
		return &AmountError{Field: field, Value: value, Min: 0, Max: max}
	}
	return nil
}

// ValidatePositiveAmount satış/gider kayıtları için: sıfır kabul edilmez.
func ValidatePositiveAmount(field string, value, max int64) error {
	if max <= 0 {
		max = DefaultMaxAmount
	}
	if value <= 0 || value > max {
		return &AmountError{Field: field, Value: value, Min: 1, Max: max}
	}
	return nil
}
