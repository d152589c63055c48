package cashsession

import (
	"context"
	"time"

	"kasa-backend/internal/models"
)

// Actor kimlik sağlayıcıdan gelen işlemi yapan kullanıcı. Çekirdek için opaktır.
type Actor struct {
	UserID       uint
	Name         string
	Role         models.UserRole
	RestaurantID uint
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type OpenCommand struct {
	RestaurantID uint
	CashierID    uint
	TerminalID   string
	InitialFloat int64
	OpeningNotes string
	OpenedAt     time.Time
}

// CloseCommand kapanışta yazılacak alanlar. Atomik komut bakiyeyi sunucuda yeniden
// hesaplar ve CalculatedBalance'tan farklıysa ErrBalanceChanged ile reddeder; eşik
// kontrolü bu bakiyeye göre yapılmıştır. Doğrudan güncelleme değerleri olduğu gibi yazar.
type CloseCommand struct {
	SessionID         uint
	ActorID           uint
	ReportedBalance   int64
	CalculatedBalance int64
	Discrepancy       int64
	Tier              string
	ClosingNotes      string
	Justification     string
	ClosedAt          time.Time
}

type Blocker struct {
	Kind        string `json:"kind"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description"`
}

// Store kalıcı oturum kaydı. İlk blok her backend'de bulunmalı; atomik komutlar
// yoksa adaptör KindNotImplemented döner ve yönetici yedek yola geçer.
type Store interface {
	GetSession(ctx context.Context, id uint) (*models.CashSession, error)
	// açık oturum yoksa nil, nil
	FindOpenSession(ctx context.Context, restaurantID uint) (*models.CashSession, error)
	InsertSession(ctx context.Context, s *models.CashSession) error
	// sadece hâlâ açık olan satırı günceller, etkilenen satır sayısını döner
	UpdateSessionClosed(ctx context.Context, cmd CloseCommand) (int64, error)
	CountActiveOrders(ctx context.Context, restaurantID uint) (int64, error)

	OpenSessionAtomic(ctx context.Context, cmd OpenCommand) (*models.CashSession, error)
	// satır görünmüyor ya da güncellenmediyse nil, nil (satır güvenliği)
	CloseSessionAtomic(ctx context.Context, cmd CloseCommand) (*models.CashSession, error)
	ValidateClose(ctx context.Context, sessionID uint) ([]Blocker, error)
	ForceCloseSession(ctx context.Context, cmd CloseCommand) (*models.CashSession, error)
}

// Capabilities backend'de hangi atomik komutların kurulu olduğu. Açılışta bir kez
// çözülür ve yöneticiye verilir.
type Capabilities struct {
	AtomicOpen    bool `json:"atomic_open"`
	AtomicClose   bool `json:"atomic_close"`
	ValidateClose bool `json:"validate_close"`
	ForceClose    bool `json:"force_close"`
}

func AllCapabilities() Capabilities {
	return Capabilities{AtomicOpen: true, AtomicClose: true, ValidateClose: true, ForceClose: true}
}
