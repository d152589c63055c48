package models

import "time"

type SessionState string

const (
	SessionStateOpen   SessionState = "open"
	SessionStateClosed SessionState = "closed"
)

// CashSession: bir kasanın açılıştan kapanışa kadarki muhasebe dönemi.
// Hesaplanan/sayılan bakiye ve fark sadece kapanışla birlikte yazılır.
type CashSession struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	RestaurantID uint         `gorm:"not null;index;index:idx_cash_sessions_one_open,unique,where:state = 'open'" json:"restaurant_id"`
	CashierID    *uint        `json:"cashier_id"`
	TerminalID   string       `gorm:"size:64" json:"terminal_id"`
	InitialFloat int64        `gorm:"not null" json:"initial_float"`       // açılış nakdi
	State        SessionState `gorm:"size:10;not null;index" json:"state"` // open / closed
	OpenedAt     time.Time    `gorm:"not null" json:"opened_at"`
	ClosedAt     *time.Time   `json:"closed_at"`
	OpeningNotes string       `gorm:"size:500" json:"opening_notes"`
	ClosingNotes string       `gorm:"size:500" json:"closing_notes"`

	CalculatedClosingBalance *int64 `json:"calculated_closing_balance"` // sistemin hesapladığı beklenen nakit
	ReportedClosingBalance   *int64 `json:"reported_closing_balance"`   // kasiyerin saydığı nakit
	Discrepancy              *int64 `json:"discrepancy"`                // reported - calculated
	DiscrepancyTier          string `gorm:"size:20" json:"discrepancy_tier,omitempty"`
	ClosingJustification     string `gorm:"size:500" json:"closing_justification,omitempty"`
	ClosedBy                 *uint  `json:"closed_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *CashSession) IsOpen() bool {
	return s != nil && s.State == SessionStateOpen
}
