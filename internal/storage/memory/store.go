// Package memory cashsession.Store, metrics.Source ve hareket kaydı için
// süreç içi bir backend sağlar. Testlerde ve yerel denemelerde kullanılır.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"
)

type Store struct {
	mu   sync.Mutex
	caps cashsession.Capabilities

	nextID   uint
	sessions map[uint]*models.CashSession
	txns     []models.Transaction
	exps     []models.Expense
	orders   map[uint]*models.Order

	// oturum kayıtlarına yapılan yazma sayısı
	mutations int

	// Doğrudan güncelleme ve atomik kapanış sadece oturumun kasiyerine izin verir
	// (satır güvenliği gibi). Uymayan istek hata vermez, hiçbir satırı etkilemez.
	restrictToCashier bool

	expenseErr error
	orderErr   error
	readFails  int
	hook       func(op string)
}

var (
	_ cashsession.Store = (*Store)(nil)
	_ metrics.Source    = (*Store)(nil)
)

// New verilen atomik komutları destekleyen bir store döner; desteklenmeyenler
// KindNotImplemented ile reddedilir.
func New(caps cashsession.Capabilities) *Store {
	return &Store{
		caps:     caps,
		sessions: make(map[uint]*models.CashSession),
		orders:   make(map[uint]*models.Order),
	}
}

func (s *Store) Capabilities() cashsession.Capabilities {
	return s.caps
}

// ---- test ayarları ----

func (s *Store) RestrictToCashier(on bool) {
	s.mu.Lock()
	s.restrictToCashier = on
	s.mu.Unlock()
}

func (s *Store) FailExpenses(err error) {
	s.mu.Lock()
	s.expenseErr = err
	s.mu.Unlock()
}

func (s *Store) FailOrders(err error) {
	s.mu.Lock()
	s.orderErr = err
	s.mu.Unlock()
}

// FailReads sonraki n GetSession çağrısını geçici hatayla döndürür.
func (s *Store) FailReads(n int) {
	s.mu.Lock()
	s.readFails = n
	s.mu.Unlock()
}

// SetHook her store çağrısının başında, kilit dışında çağrılır.
func (s *Store) SetHook(fn func(op string)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

func (s *Store) enter(op string) {
	s.mu.Lock()
	h := s.hook
	s.mu.Unlock()
	if h != nil {
		h(op)
	}
}

// PutSession kaydı olduğu gibi yerleştirir (seed).
func (s *Store) PutSession(cs models.CashSession) *models.CashSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == 0 {
		s.nextID++
		cs.ID = s.nextID
	} else if cs.ID > s.nextID {
		s.nextID = cs.ID
	}
	stored := cs
	s.sessions[cs.ID] = &stored
	out := stored
	return &out
}

func (s *Store) PutOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = uint(len(s.orders) + 1)
	}
	s.orders[o.ID] = &o
}

// ---- cashsession.Store ----

func (s *Store) GetSession(ctx context.Context, id uint) (*models.CashSession, error) {
	s.enter("GetSession")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readFails > 0 {
		s.readFails--
		return nil, fmt.Errorf("read session %d: transient failure", id)
	}
	cs, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, cashsession.ErrSessionNotFound)
	}
	out := *cs
	return &out, nil
}

func (s *Store) FindOpenSession(ctx context.Context, restaurantID uint) (*models.CashSession, error) {
	s.enter("FindOpenSession")
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs := s.openLocked(restaurantID); cs != nil {
		out := *cs
		return &out, nil
	}
	return nil, nil
}

func (s *Store) openLocked(restaurantID uint) *models.CashSession {
	for _, cs := range s.sessions {
		if cs.RestaurantID == restaurantID && cs.IsOpen() {
			return cs
		}
	}
	return nil
}

func (s *Store) InsertSession(ctx context.Context, cs *models.CashSession) error {
	s.enter("InsertSession")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openLocked(cs.RestaurantID) != nil {
		return cashsession.NewStoreError("insert session", cashsession.KindBusinessRejection, cashsession.ErrAlreadyOpen)
	}
	s.nextID++
	cs.ID = s.nextID
	stored := *cs
	s.sessions[cs.ID] = &stored
	s.mutations++
	return nil
}

func (s *Store) UpdateSessionClosed(ctx context.Context, cmd cashsession.CloseCommand) (int64, error) {
	s.enter("UpdateSessionClosed")
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[cmd.SessionID]
	if !ok || !cs.IsOpen() {
		return 0, nil
	}
	if s.restrictToCashier && (cs.CashierID == nil || *cs.CashierID != cmd.ActorID) {
		return 0, nil
	}
	applyClose(cs, cmd, cmd.CalculatedBalance, cmd.Discrepancy)
	s.mutations++
	return 1, nil
}

func (s *Store) CountActiveOrders(ctx context.Context, restaurantID uint) (int64, error) {
	s.enter("CountActiveOrders")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.orderErr != nil {
		return 0, s.orderErr
	}
	return int64(len(s.activeOrdersLocked(restaurantID))), nil
}

func (s *Store) activeOrdersLocked(restaurantID uint) []*models.Order {
	var out []*models.Order
	for _, o := range s.orders {
		if o.RestaurantID != restaurantID {
			continue
		}
		for _, st := range models.ActiveOrderStatuses() {
			if o.Status == st {
				out = append(out, o)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func notImplemented(op string) error {
	return cashsession.NewStoreError(op, cashsession.KindNotImplemented, fmt.Errorf("%s is not available", op))
}

func (s *Store) OpenSessionAtomic(ctx context.Context, cmd cashsession.OpenCommand) (*models.CashSession, error) {
	s.enter("OpenSessionAtomic")
	if !s.caps.AtomicOpen {
		return nil, notImplemented("cash_open_session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.openLocked(cmd.RestaurantID); existing != nil {
		return nil, cashsession.NewStoreError("cash_open_session", cashsession.KindBusinessRejection,
			fmt.Errorf("session %d: %w", existing.ID, cashsession.ErrAlreadyOpen))
	}
	cashier := cmd.CashierID
	s.nextID++
	cs := &models.CashSession{
		ID:           s.nextID,
		RestaurantID: cmd.RestaurantID,
		CashierID:    &cashier,
		TerminalID:   cmd.TerminalID,
		InitialFloat: cmd.InitialFloat,
		State:        models.SessionStateOpen,
		OpenedAt:     cmd.OpenedAt,
		OpeningNotes: cmd.OpeningNotes,
		CreatedAt:    cmd.OpenedAt,
		UpdatedAt:    cmd.OpenedAt,
	}
	s.sessions[cs.ID] = cs
	s.mutations++
	out := *cs
	return &out, nil
}

// CloseSessionAtomic bakiyeyi kayıtlardan kendisi hesaplar.
func (s *Store) CloseSessionAtomic(ctx context.Context, cmd cashsession.CloseCommand) (*models.CashSession, error) {
	s.enter("CloseSessionAtomic")
	if !s.caps.AtomicClose {
		return nil, notImplemented("cash_close_session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs, ok := s.sessions[cmd.SessionID]; ok && s.restrictToCashier &&
		(cs.CashierID == nil || *cs.CashierID != cmd.ActorID) {
		return nil, nil
	}
	cs, err := s.closableLocked("cash_close_session", cmd.SessionID)
	if err != nil {
		return nil, err
	}
	calculated, err := s.expectedLocked("cash_close_session", cs, cmd)
	if err != nil {
		return nil, err
	}
	applyClose(cs, cmd, calculated, cmd.ReportedBalance-calculated)
	s.mutations++
	out := *cs
	return &out, nil
}

func (s *Store) ValidateClose(ctx context.Context, sessionID uint) ([]cashsession.Blocker, error) {
	s.enter("ValidateClose")
	if !s.caps.ValidateClose {
		return nil, notImplemented("cash_validate_close")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, cashsession.ErrSessionNotFound)
	}
	var blockers []cashsession.Blocker
	for _, o := range s.activeOrdersLocked(cs.RestaurantID) {
		blockers = append(blockers, cashsession.Blocker{
			Kind:        "active_order",
			Reference:   fmt.Sprintf("order:%d", o.ID),
			Description: fmt.Sprintf("table %s has an unsettled order", o.TableLabel),
		})
	}
	return blockers, nil
}

func (s *Store) ForceCloseSession(ctx context.Context, cmd cashsession.CloseCommand) (*models.CashSession, error) {
	s.enter("ForceCloseSession")
	if !s.caps.ForceClose {
		return nil, notImplemented("cash_force_close_session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.closableLocked("cash_force_close_session", cmd.SessionID)
	if err != nil {
		return nil, err
	}
	calculated, err := s.expectedLocked("cash_force_close_session", cs, cmd)
	if err != nil {
		return nil, err
	}
	if cs.CashierID == nil {
		actor := cmd.ActorID
		cs.CashierID = &actor
	}
	applyClose(cs, cmd, calculated, cmd.ReportedBalance-calculated)
	s.mutations++
	out := *cs
	return &out, nil
}

func (s *Store) closableLocked(op string, id uint) (*models.CashSession, error) {
	cs, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, cashsession.ErrSessionNotFound)
	}
	if !cs.IsOpen() {
		return nil, cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
			fmt.Errorf("session %d: %w", id, cashsession.ErrAlreadyClosed))
	}
	return cs, nil
}

// expectedLocked bakiyeyi yeniden hesaplar; eşik kontrolünden sonra hareket
// eklendiyse kapanışı reddeder.
func (s *Store) expectedLocked(op string, cs *models.CashSession, cmd cashsession.CloseCommand) (int64, error) {
	calculated := s.balanceLocked(cs)
	if calculated != cmd.CalculatedBalance {
		return 0, cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
			fmt.Errorf("session %d: expected %d, now %d: %w", cs.ID, cmd.CalculatedBalance, calculated, cashsession.ErrBalanceChanged))
	}
	return calculated, nil
}

func (s *Store) balanceLocked(cs *models.CashSession) int64 {
	var txns []models.Transaction
	for _, t := range s.txns {
		if t.SessionID == cs.ID {
			txns = append(txns, t)
		}
	}
	var exps []models.Expense
	for _, e := range s.exps {
		if e.SessionID == cs.ID {
			exps = append(exps, e)
		}
	}
	return reconcile.CalculateBalance(cs.InitialFloat, txns, exps)
}

func applyClose(cs *models.CashSession, cmd cashsession.CloseCommand, calculated, discrepancy int64) {
	closedAt := cmd.ClosedAt
	reported := cmd.ReportedBalance
	actor := cmd.ActorID

	cs.State = models.SessionStateClosed
	cs.ClosedAt = &closedAt
	cs.ClosingNotes = cmd.ClosingNotes
	cs.ClosingJustification = cmd.Justification
	cs.ReportedClosingBalance = &reported
	cs.CalculatedClosingBalance = &calculated
	cs.Discrepancy = &discrepancy
	cs.DiscrepancyTier = cmd.Tier
	cs.ClosedBy = &actor
	cs.UpdatedAt = closedAt
}

// ---- metrics.Source ----

func (s *Store) ListTransactions(ctx context.Context, f metrics.Filter) ([]models.Transaction, error) {
	s.enter("ListTransactions")
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, t := range s.txns {
		if t.RestaurantID != f.RestaurantID {
			continue
		}
		if f.SessionID != 0 {
			if t.SessionID != f.SessionID {
				continue
			}
		} else if t.PostedAt.Before(f.From) || !t.PostedAt.Before(f.To) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ListExpenses(ctx context.Context, f metrics.Filter) ([]models.Expense, error) {
	s.enter("ListExpenses")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expenseErr != nil {
		return nil, s.expenseErr
	}
	var out []models.Expense
	for _, e := range s.exps {
		if e.RestaurantID != f.RestaurantID {
			continue
		}
		if f.SessionID != 0 {
			if e.SessionID != f.SessionID {
				continue
			}
		} else if e.PostedAt.Before(f.From) || !e.PostedAt.Before(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SumActiveOrders(ctx context.Context, restaurantID uint) (int64, error) {
	s.enter("SumActiveOrders")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.orderErr != nil {
		return 0, s.orderErr
	}
	var sum int64
	for _, o := range s.activeOrdersLocked(restaurantID) {
		sum += o.Total
	}
	return sum, nil
}

// ---- hareket kaydı ----

func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	s.enter("InsertTransaction")
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uint(len(s.txns) + 1)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.PostedAt
	}
	s.txns = append(s.txns, *t)
	return nil
}

func (s *Store) InsertExpense(ctx context.Context, e *models.Expense) error {
	s.enter("InsertExpense")
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uint(len(s.exps) + 1)
	if e.PaymentMethod == "" {
		e.PaymentMethod = models.PaymentMethodCash
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.PostedAt
	}
	s.exps = append(s.exps, *e)
	return nil
}
