// Package postgres kasa oturumu kayıtlarını GORM üzerinden PostgreSQL'de tutar.
// Atomik komutlar (cash_open_session, cash_close_session, ...) goose migration'ları
// ile kurulan plpgsql fonksiyonlarıdır; kurulu değillerse KindNotImplemented döner.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

var (
	_ cashsession.Store = (*Store)(nil)
	_ metrics.Source    = (*Store)(nil)
)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ---- baseline okuma/yazma ----

func (s *Store) GetSession(ctx context.Context, id uint) (*models.CashSession, error) {
	var cs models.CashSession
	if err := s.db.WithContext(ctx).First(&cs, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %d: %w", id, cashsession.ErrSessionNotFound)
		}
		return nil, classifyError("get session", err)
	}
	return &cs, nil
}

func (s *Store) FindOpenSession(ctx context.Context, restaurantID uint) (*models.CashSession, error) {
	var cs models.CashSession
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ? AND state = ?", restaurantID, models.SessionStateOpen).
		Order("opened_at DESC").
		Take(&cs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classifyError("find open session", err)
	}
	return &cs, nil
}

func (s *Store) InsertSession(ctx context.Context, cs *models.CashSession) error {
	if err := s.db.WithContext(ctx).Create(cs).Error; err != nil {
		return classifyError("insert session", err)
	}
	return nil
}

// UpdateSessionClosed sadece hâlâ açık satırı günceller. Satır güvenliği politikası
// güncellemeyi engellerse hata dönmez, 0 satır etkilenir.
func (s *Store) UpdateSessionClosed(ctx context.Context, cmd cashsession.CloseCommand) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.CashSession{}).
		Where("id = ? AND state = ?", cmd.SessionID, models.SessionStateOpen).
		Updates(map[string]interface{}{
			"state":                      models.SessionStateClosed,
			"closed_at":                  cmd.ClosedAt,
			"closing_notes":              cmd.ClosingNotes,
			"closing_justification":      cmd.Justification,
			"reported_closing_balance":   cmd.ReportedBalance,
			"calculated_closing_balance": cmd.CalculatedBalance,
			"discrepancy":                cmd.Discrepancy,
			"discrepancy_tier":           cmd.Tier,
			"closed_by":                  cmd.ActorID,
		})
	if res.Error != nil {
		return 0, classifyError("update session closed", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) CountActiveOrders(ctx context.Context, restaurantID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("restaurant_id = ? AND status IN ?", restaurantID, models.ActiveOrderStatuses()).
		Count(&n).Error
	if err != nil {
		return 0, classifyError("count active orders", err)
	}
	return n, nil
}

// ---- atomik komutlar ----

func (s *Store) OpenSessionAtomic(ctx context.Context, cmd cashsession.OpenCommand) (*models.CashSession, error) {
	var rows []models.CashSession
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM cash_open_session(?, ?, ?, ?, ?, ?)",
			cmd.RestaurantID, cmd.CashierID, cmd.TerminalID, cmd.InitialFloat, cmd.OpeningNotes, cmd.OpenedAt).
		Scan(&rows).Error
	if err != nil {
		return nil, classifyError("cash_open_session", err)
	}
	if len(rows) == 0 {
		return nil, cashsession.NewStoreError("cash_open_session", cashsession.KindUnknown, errors.New("no row returned"))
	}
	return &rows[0], nil
}

func (s *Store) CloseSessionAtomic(ctx context.Context, cmd cashsession.CloseCommand) (*models.CashSession, error) {
	var rows []models.CashSession
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM cash_close_session(?, ?, ?, ?, ?, ?, ?, ?)",
			cmd.SessionID, cmd.ActorID, cmd.ReportedBalance, cmd.CalculatedBalance, cmd.ClosingNotes, cmd.Justification, cmd.Tier, cmd.ClosedAt).
		Scan(&rows).Error
	// satır güvenliği satırı gizlediyse ya da güncellemeye izin vermediyse
	// hata yok sayılır; yönetici tekrar okuyup teşhis eder
	if noDataFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyError("cash_close_session", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) ValidateClose(ctx context.Context, sessionID uint) ([]cashsession.Blocker, error) {
	var blockers []cashsession.Blocker
	err := s.db.WithContext(ctx).
		Raw("SELECT kind, reference, description FROM cash_validate_close(?)", sessionID).
		Scan(&blockers).Error
	if err != nil {
		return nil, classifyError("cash_validate_close", err)
	}
	return blockers, nil
}

func (s *Store) ForceCloseSession(ctx context.Context, cmd cashsession.CloseCommand) (*models.CashSession, error) {
	var rows []models.CashSession
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM cash_force_close_session(?, ?, ?, ?, ?, ?, ?, ?)",
			cmd.SessionID, cmd.ActorID, cmd.ReportedBalance, cmd.CalculatedBalance, cmd.ClosingNotes, cmd.Justification, cmd.Tier, cmd.ClosedAt).
		Scan(&rows).Error
	if err != nil {
		return nil, classifyError("cash_force_close_session", err)
	}
	if len(rows) == 0 {
		return nil, cashsession.NewStoreError("cash_force_close_session", cashsession.KindUnknown, errors.New("no row returned"))
	}
	return &rows[0], nil
}

// ---- metrics.Source ----

func (s *Store) ListTransactions(ctx context.Context, f metrics.Filter) ([]models.Transaction, error) {
	var txns []models.Transaction
	q := s.db.WithContext(ctx).Where("restaurant_id = ?", f.RestaurantID)
	if f.SessionID != 0 {
		q = q.Where("session_id = ?", f.SessionID)
	} else {
		q = q.Where("posted_at >= ? AND posted_at < ?", f.From, f.To)
	}
	if err := q.Order("posted_at ASC").Order("id ASC").Find(&txns).Error; err != nil {
		return nil, classifyError("list transactions", err)
	}
	return txns, nil
}

func (s *Store) ListExpenses(ctx context.Context, f metrics.Filter) ([]models.Expense, error) {
	var exps []models.Expense
	q := s.db.WithContext(ctx).Where("restaurant_id = ?", f.RestaurantID)
	if f.SessionID != 0 {
		q = q.Where("session_id = ?", f.SessionID)
	} else {
		q = q.Where("posted_at >= ? AND posted_at < ?", f.From, f.To)
	}
	if err := q.Order("posted_at ASC").Order("id ASC").Find(&exps).Error; err != nil {
		return nil, classifyError("list expenses", err)
	}
	return exps, nil
}

func (s *Store) SumActiveOrders(ctx context.Context, restaurantID uint) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0)").
		Where("restaurant_id = ? AND status IN ?", restaurantID, models.ActiveOrderStatuses()).
		Scan(&sum).Error
	if err != nil {
		return 0, classifyError("sum active orders", err)
	}
	return sum, nil
}

// ---- hareket kaydı ----

func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return classifyError("insert transaction", err)
	}
	return nil
}

func (s *Store) InsertExpense(ctx context.Context, e *models.Expense) error {
	if e.PaymentMethod == "" {
		e.PaymentMethod = models.PaymentMethodCash
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return classifyError("insert expense", err)
	}
	return nil
}
