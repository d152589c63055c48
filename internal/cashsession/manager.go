// Package cashsession bir restoran terminalinin kasa oturumu yaşam döngüsünü yönetir:
// açılış, kapanış mutabakatı, doğrulama ve dış değişikliklerin abonelere yayını.
//
// Yerel durum sadece store'daki kayıt doğrulandıktan sonra ilerler. Kapanış
// doğrulanamazsa oturum OPEN kalır.
package cashsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kasa-backend/internal/audit"
	"kasa-backend/internal/events"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"

	"github.com/sethvargo/go-retry"
)

type State string

const (
	StateNoSession State = "NO_SESSION"
	StateOpen      State = "OPEN"
	StateClosing   State = "CLOSING" // sadece yerel, store'a yazılmaz
	StateClosed    State = "CLOSED"
)

// CommitPath kapanışın hangi komutla kalıcı hale geldiği.
type CommitPath string

const (
	PathAtomic   CommitPath = "atomic"
	PathFallback CommitPath = "fallback"
	PathForce    CommitPath = "force"
)

// Snapshot abonelere iletilen anlık durum.
type Snapshot struct {
	State        State               `json:"state"`
	RestaurantID uint                `json:"restaurant_id"`
	TerminalID   string              `json:"terminal_id"`
	Session      *models.CashSession `json:"session,omitempty"`
	LastClosedID uint                `json:"last_closed_id,omitempty"`

	// Açık oturum önceki bir iş gününde açıldı; sayım yapılmadan kapatılmaz
	RequiresManualReconciliation bool `json:"requires_manual_reconciliation"`

	// Snapshot'ı tetikleyen dış olay, varsa
	Event events.Type `json:"event,omitempty"`
}

type Auditor interface {
	WriteLog(ctx context.Context, opts audit.LogOptions) error
}

type Options struct {
	Capabilities          Capabilities
	Thresholds            reconcile.Thresholds
	MaxAmount             int64
	Location              *time.Location
	StrictCloseValidation bool

	Clock   func() time.Time
	Logger  *slog.Logger
	Auditor Auditor

	// kapanış sonrası tekrar okuma, geçici okuma hatalarında
	VerifyRetries uint64
	VerifyDelay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Thresholds == (reconcile.Thresholds{}) {
		o.Thresholds = reconcile.DefaultThresholds()
	}
	if o.MaxAmount <= 0 {
		o.MaxAmount = reconcile.DefaultMaxAmount
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.VerifyRetries == 0 {
		o.VerifyRetries = 2
	}
	if o.VerifyDelay <= 0 {
		o.VerifyDelay = 150 * time.Millisecond
	}
	return o
}

type OpenInput struct {
	InitialFloat int64
	OpeningNotes string
}

type CloseInput struct {
	SessionID       uint // 0 ise yöneticinin tuttuğu oturum
	ReportedBalance *int64
	ClosingNotes    string
	Acknowledgement reconcile.Acknowledgement

	// Yönetici yolu: açık iş kontrolünü atlar. Sadece admin kullanabilir.
	AdminOverride bool
}

type CloseResult struct {
	Session     *models.CashSession          `json:"session,omitempty"`
	Discrepancy *reconcile.DiscrepancyResult `json:"discrepancy,omitempty"`
	Idempotent  bool                         `json:"idempotent"`
	Path        CommitPath                   `json:"path,omitempty"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

// Manager tek bir (restoran, terminal) çifti için oturum durumunu tutar.
type Manager struct {
	store        Store
	agg          *metrics.Aggregator
	hub          *events.Hub
	restaurantID uint
	terminalID   string
	opts         Options
	logger       *slog.Logger

	mu           sync.Mutex
	state        State
	session      *models.CashSession
	lastClosedID uint
	closed       map[uint]*models.CashSession // kapanışı doğrulanmış oturumlar
	closing      bool
	opening      bool
	staleChecked map[uint]bool
	stale        bool

	unwatch      func()
	unwatchRest  func()
	listeners    map[int]func(Snapshot)
	nextListener int
}

func NewManager(store Store, agg *metrics.Aggregator, hub *events.Hub, restaurantID uint, terminalID string, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		store:        store,
		agg:          agg,
		hub:          hub,
		restaurantID: restaurantID,
		terminalID:   terminalID,
		opts:         opts,
		logger:       opts.Logger.With("restaurant_id", restaurantID, "terminal_id", terminalID),
		state:        StateNoSession,
		closed:       make(map[uint]*models.CashSession),
		staleChecked: make(map[uint]bool),
		listeners:    make(map[int]func(Snapshot)),
	}
	if hub != nil {
		m.unwatchRest = hub.Subscribe(events.RestaurantKey(restaurantID), m.onRestaurantEvent)
	}
	return m
}

func (m *Manager) RestaurantID() uint { return m.restaurantID }
func (m *Manager) TerminalID() string { return m.terminalID }

func (m *Manager) now() time.Time {
	return m.opts.Clock()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:                        m.state,
		RestaurantID:                 m.restaurantID,
		TerminalID:                   m.terminalID,
		LastClosedID:                 m.lastClosedID,
		RequiresManualReconciliation: m.stale,
	}
	if m.session != nil {
		s := *m.session
		snap.Session = &s
	}
	return snap
}

// Subscribe durum değişikliklerini dinler. Dönen fonksiyon aboneliği bitirir.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.Lock()
	fns := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Close'dan bağımsız: yönetici kapatılırken abonelikler bırakılır.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	unwatch, unwatchRest := m.unwatch, m.unwatchRest
	m.unwatch, m.unwatchRest = nil, nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if unwatchRest != nil {
		unwatchRest()
	}
}

// Load store'daki açık oturumu okur ve yerel durumu onunla eşitler.
func (m *Manager) Load(ctx context.Context) (Snapshot, error) {
	open, err := m.store.FindOpenSession(ctx, m.restaurantID)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("load open session: %w", err)
	}

	m.mu.Lock()
	if !m.closing {
		switch {
		case open != nil:
			if _, latched := m.closed[open.ID]; !latched {
				if m.session == nil || m.session.ID != open.ID {
					m.stale = false
				}
				m.session = open
				m.state = StateOpen
			}
		case m.session != nil:
			// yerelde açık görünen oturum başka yerden kapatılmış
			m.logger.Info("oturum başka bir terminalden kapatılmış", "session_id", m.session.ID)
			m.markClosedLocked(m.session.ID, nil)
		case m.state != StateClosed:
			m.state = StateNoSession
		}
	}
	var watchID uint
	if m.session != nil {
		watchID = m.session.ID
	}
	m.mu.Unlock()

	if watchID != 0 {
		m.watch(watchID)
	} else {
		m.stopWatch()
	}
	m.CheckStale()

	snap := m.Snapshot()
	m.notify(snap)
	return snap, nil
}

// CheckStale açık oturumun önceki bir iş gününde açılıp açılmadığına bakar.
// Her oturum için bir kez çalışır; sonraki çağrılar önceki sonucu döner.
func (m *Manager) CheckStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil || m.state != StateOpen {
		return false
	}
	if m.staleChecked[s.ID] {
		return m.stale
	}
	m.staleChecked[s.ID] = true

	opened := metrics.LocalDate(s.OpenedAt, m.opts.Location)
	today := metrics.LocalDate(m.now(), m.opts.Location)
	m.stale = opened < today
	if m.stale {
		m.logger.Warn("oturum önceki iş gününden kalmış, manuel mutabakat gerekli",
			"session_id", s.ID, "opened_on", opened, "today", today)
	}
	return m.stale
}

// Get oturumu store'dan okur; başka restorana ait oturum bulunamamış sayılır.
func (m *Manager) Get(ctx context.Context, id uint) (*models.CashSession, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.RestaurantID != m.restaurantID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ---- Open ----

func (m *Manager) Open(ctx context.Context, actor Actor, in OpenInput) (*models.CashSession, error) {
	if actor.RestaurantID != m.restaurantID {
		return nil, ErrForbidden
	}
	if err := reconcile.ValidateAmount("initial_float", in.InitialFloat, m.opts.MaxAmount); err != nil {
		return nil, err
	}

	// Yerel oturum sadece bir ipucu: kapanış olayı bu node'a ulaşmamış olabilir.
	m.mu.Lock()
	hint := m.session != nil && !m.opening
	m.mu.Unlock()
	if hint {
		if _, err := m.Load(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if m.opening {
		m.mu.Unlock()
		return nil, ErrOpenInProgress
	}
	if m.session != nil {
		id := m.session.ID
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session %d", ErrAlreadyOpen, id)
	}
	m.opening = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.opening = false
		m.mu.Unlock()
	}()

	cmd := OpenCommand{
		RestaurantID: m.restaurantID,
		CashierID:    actor.UserID,
		TerminalID:   m.terminalID,
		InitialFloat: in.InitialFloat,
		OpeningNotes: in.OpeningNotes,
		OpenedAt:     m.now(),
	}

	session, path, err := m.open(ctx, cmd)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.state = StateOpen
	m.stale = false
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.watch(session.ID)
	m.logger.Info("kasa oturumu açıldı", "session_id", session.ID, "path", path, "initial_float", session.InitialFloat)

	m.publish(ctx, events.SessionOpened, session.ID)
	m.writeAudit(ctx, actor, session.ID, models.AuditActionOpen,
		fmt.Sprintf("Kasa açıldı (terminal %s, açılış %d)", m.terminalID, session.InitialFloat), nil, session)
	m.notify(snap)

	return session, nil
}

func (m *Manager) open(ctx context.Context, cmd OpenCommand) (*models.CashSession, CommitPath, error) {
	if m.opts.Capabilities.AtomicOpen {
		s, err := m.store.OpenSessionAtomic(ctx, cmd)
		if err == nil {
			return s, PathAtomic, nil
		}
		if !IsNotImplemented(err) {
			return nil, "", err
		}
		m.logger.Warn("atomik açılış komutu yok, yedek yola geçiliyor", "error", err)
	}

	// Kontrol et, sonra ekle. Atomik değil; aynı anda iki ekleme arasında kalan
	// pencereyi store'daki tekil açık oturum index'i kapatır.
	existing, err := m.store.FindOpenSession(ctx, cmd.RestaurantID)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", fmt.Errorf("%w: session %d", ErrAlreadyOpen, existing.ID)
	}

	cashierID := cmd.CashierID
	s := &models.CashSession{
		RestaurantID: cmd.RestaurantID,
		CashierID:    &cashierID,
		TerminalID:   cmd.TerminalID,
		InitialFloat: cmd.InitialFloat,
		State:        models.SessionStateOpen,
		OpenedAt:     cmd.OpenedAt,
		OpeningNotes: cmd.OpeningNotes,
	}
	if err := m.store.InsertSession(ctx, s); err != nil {
		return nil, "", err
	}
	return s, PathFallback, nil
}

// ---- Close ----

func (m *Manager) Close(ctx context.Context, actor Actor, in CloseInput) (*CloseResult, error) {
	m.mu.Lock()

	id := in.SessionID
	if id == 0 {
		switch {
		case m.session != nil:
			id = m.session.ID
		case m.state == StateClosed:
			id = m.lastClosedID
		}
	}
	if id == 0 {
		m.mu.Unlock()
		return nil, ErrNoOpenSession
	}

	// 1. bu yönetici kapanışı zaten doğruladıysa komut tekrar gönderilmez
	if s, ok := m.closed[id]; ok {
		m.mu.Unlock()
		m.logger.Debug("kapanış tekrarı, işlem yapılmadı", "session_id", id)
		return &CloseResult{Session: s, Idempotent: true, Discrepancy: serverDiscrepancy(s, m.opts.Thresholds)}, nil
	}

	// 2. aynı anda ikinci kapanış kuyruğa alınmaz
	if m.closing {
		m.mu.Unlock()
		return nil, ErrCloseInProgress
	}

	// store'a gitmeden önce girdi doğrulaması
	if in.ReportedBalance == nil {
		m.mu.Unlock()
		return nil, ErrReportedBalanceRequired
	}
	if err := reconcile.ValidateAmount("reported_closing_balance", *in.ReportedBalance, m.opts.MaxAmount); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if actor.RestaurantID != m.restaurantID || (in.AdminOverride && !actor.IsAdmin()) {
		m.mu.Unlock()
		return nil, ErrForbidden
	}

	m.closing = true
	prev := m.state
	m.state = StateClosing
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	res, err := m.close(ctx, actor, id, in)

	m.mu.Lock()
	m.closing = false
	if err != nil {
		if _, latched := m.closed[id]; !latched && m.state == StateClosing {
			m.state = prev
		}
	}
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	if err != nil {
		return nil, err
	}

	m.stopWatch()
	m.logger.Info("kasa oturumu kapatıldı", "session_id", id, "path", res.Path,
		"discrepancy", discrepancyValue(res.Discrepancy))
	m.publish(ctx, events.SessionClosed, id)
	m.writeAudit(ctx, actor, id, models.AuditActionClose, closeDescription(res), nil, res.Session)

	return res, nil
}

func (m *Manager) close(ctx context.Context, actor Actor, id uint, in CloseInput) (*CloseResult, error) {
	// 3. sunucu durumu ön kontrolü
	current, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pre-check session %d: %w", id, err)
	}
	if current.RestaurantID != m.restaurantID {
		return nil, ErrSessionNotFound
	}
	if !current.IsOpen() {
		m.markClosed(id, current)
		return nil, fmt.Errorf("%w: session %d", ErrAlreadyClosed, id)
	}

	// 4. açık işler
	var warnings []string
	if in.AdminOverride {
		m.logger.Warn("açık iş kontrolü yönetici tarafından atlandı", "session_id", id, "actor_id", actor.UserID)
		warnings = append(warnings, "blocker validation skipped by admin override")
	} else {
		w, err := m.checkBlockers(ctx, current)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	// 5. mutabakat: beklenen bakiye ve sayım farkı eşiği
	totals, err := m.agg.SessionTotals(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}
	if totals.ExpensesDegraded || totals.RunningBalance == nil {
		return nil, fmt.Errorf("%w: expenses could not be read", ErrBalanceUnavailable)
	}
	calculated := *totals.RunningBalance

	disc := reconcile.Classify(calculated, in.ReportedBalance, m.opts.Thresholds)
	if err := reconcile.Gate(disc, in.Acknowledgement); err != nil {
		return nil, &GateError{Discrepancy: disc, Err: err}
	}

	cmd := CloseCommand{
		SessionID:         id,
		ActorID:           actor.UserID,
		ReportedBalance:   *in.ReportedBalance,
		CalculatedBalance: calculated,
		Discrepancy:       disc.Value,
		Tier:              string(disc.Tier),
		ClosingNotes:      in.ClosingNotes,
		Justification:     in.Acknowledgement.Justification,
		ClosedAt:          m.now(),
	}

	// 6. commit
	rows, path, err := m.commit(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyClosed):
			m.markClosed(id, nil)
		case errors.Is(err, ErrBalanceChanged):
			m.logger.Warn("beklenen bakiye kapanış sırasında değişti", "session_id", id, "expected", calculated)
		}
		return nil, err
	}

	// 7. doğrulama
	final, err := m.reread(ctx, id)
	if err != nil {
		m.logger.Error("kapanış doğrulanamadı", "session_id", id, "error", err)
		return nil, &CloseError{Code: CodeCloseUnverified, SessionID: id, Detail: "verification read failed", Err: err}
	}

	if final.IsOpen() {
		final, err = m.recoverUnapplied(ctx, actor, final, cmd)
		if err != nil {
			return nil, err
		}
		path = PathForce
	} else if rows == 0 {
		// güncelleme bize ait değil: oturumu başka biri kapatmış
		m.markClosed(id, final)
		return nil, fmt.Errorf("%w: session %d", ErrAlreadyClosed, id)
	}

	// 8. ancak şimdi CLOSED
	m.markClosed(id, final)

	res := &CloseResult{Session: final, Path: path, Warnings: warnings}
	res.Discrepancy = serverDiscrepancy(final, m.opts.Thresholds)
	if res.Discrepancy == nil {
		res.Discrepancy = disc
	}
	return res, nil
}

// checkBlockers önce sunucu tarafı kontrol komutunu, yoksa aktif sipariş sorgusunu
// dener. İkisi de yoksa uyarıyla devam eder; katı modda kapanış reddedilir.
func (m *Manager) checkBlockers(ctx context.Context, s *models.CashSession) ([]string, error) {
	if m.opts.Capabilities.ValidateClose {
		blockers, err := m.store.ValidateClose(ctx, s.ID)
		switch {
		case err == nil:
			if len(blockers) > 0 {
				return nil, &BlockersError{Blockers: blockers}
			}
			return nil, nil
		case !IsNotImplemented(err):
			return nil, err
		}
		m.logger.Warn("kapanış kontrol komutu yok, aktif sipariş sorgusuna geçiliyor", "session_id", s.ID)
	}

	n, err := m.store.CountActiveOrders(ctx, s.RestaurantID)
	if err == nil {
		if n > 0 {
			return nil, &BlockersError{Blockers: []Blocker{{
				Kind:        "active_orders",
				Description: fmt.Sprintf("%d active order(s) must be settled before closing", n),
			}}}
		}
		return nil, nil
	}

	if m.opts.StrictCloseValidation {
		return nil, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}
	m.logger.Warn("açık iş kontrolü yapılamadı, kapanışa devam ediliyor", "session_id", s.ID, "error", err)
	return []string{"blocker validation unavailable"}, nil
}

func (m *Manager) commit(ctx context.Context, cmd CloseCommand) (int64, CommitPath, error) {
	if m.opts.Capabilities.AtomicClose {
		s, err := m.store.CloseSessionAtomic(ctx, cmd)
		if err == nil {
			if s == nil {
				return 0, PathAtomic, nil
			}
			return 1, PathAtomic, nil
		}
		if !IsNotImplemented(err) {
			return 0, "", err
		}
		m.logger.Warn("atomik kapanış komutu yok, doğrudan güncellemeye geçiliyor", "session_id", cmd.SessionID)
	}

	rows, err := m.store.UpdateSessionClosed(ctx, cmd)
	if err != nil {
		return 0, "", err
	}
	return rows, PathFallback, nil
}

// recoverUnapplied commit hatasız döndüğü halde kayıt hâlâ açıksa çalışır.
// Sahiplik sorununu teşhis eder ve yetkili kapanışı bir kez dener.
func (m *Manager) recoverUnapplied(ctx context.Context, actor Actor, current *models.CashSession, cmd CloseCommand) (*models.CashSession, error) {
	code, detail := diagnose(current, actor)
	m.logger.Warn("kapanış kayda yansımadı", "session_id", current.ID, "code", code, "detail", detail)

	if !m.opts.Capabilities.ForceClose || code == CodeCloseUnverified {
		return nil, &CloseError{Code: code, SessionID: current.ID, Detail: detail}
	}

	if _, err := m.store.ForceCloseSession(ctx, cmd); err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			m.markClosed(current.ID, nil)
			return nil, fmt.Errorf("%w: session %d", ErrAlreadyClosed, current.ID)
		}
		if k := KindOf(err); k == KindBusinessRejection || k == KindPermissionDenied {
			code = CodeForceCloseRejected
		}
		m.logger.Error("yetkili kapanış başarısız", "session_id", current.ID, "code", code, "error", err)
		return nil, &CloseError{Code: code, SessionID: current.ID, Detail: detail, Err: err}
	}

	final, err := m.reread(ctx, current.ID)
	if err != nil {
		return nil, &CloseError{Code: code, SessionID: current.ID, Detail: "verification read failed after force close", Err: err}
	}
	if final.IsOpen() {
		m.logger.Error("yetkili kapanış sonrası oturum hâlâ açık", "session_id", current.ID, "code", code)
		return nil, &CloseError{Code: code, SessionID: current.ID, Detail: detail + "; still open after force close"}
	}
	return final, nil
}

func diagnose(s *models.CashSession, actor Actor) (Code, string) {
	switch {
	case s.CashierID == nil:
		return CodeCashierUnassigned, "session has no assigned cashier"
	case *s.CashierID != actor.UserID:
		return CodeOwnershipMismatch, fmt.Sprintf("session cashier %d differs from actor %d", *s.CashierID, actor.UserID)
	}
	return CodeCloseUnverified, "update affected no rows"
}

// reread geçici okuma hatalarında sabit aralıkla tekrar dener.
func (m *Manager) reread(ctx context.Context, id uint) (*models.CashSession, error) {
	var out *models.CashSession
	b := retry.WithMaxRetries(m.opts.VerifyRetries, retry.NewConstant(m.opts.VerifyDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		s, err := m.store.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) || KindOf(err) == KindPermissionDenied {
				return err
			}
			return retry.RetryableError(err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) markClosed(id uint, s *models.CashSession) {
	m.mu.Lock()
	m.markClosedLocked(id, s)
	m.mu.Unlock()
}

func (m *Manager) markClosedLocked(id uint, s *models.CashSession) {
	if prev, ok := m.closed[id]; !ok || prev == nil {
		m.closed[id] = s
	}
	if m.session != nil && m.session.ID == id {
		m.session = nil
		m.stale = false
	}
	m.lastClosedID = id
	m.state = StateClosed
}

// ---- olaylar ----

func (m *Manager) watch(id uint) {
	if m.hub == nil {
		return
	}
	unsub := m.hub.Subscribe(events.SessionKey(id), m.onSessionEvent)

	m.mu.Lock()
	prev := m.unwatch
	m.unwatch = unsub
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (m *Manager) stopWatch() {
	m.mu.Lock()
	prev := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (m *Manager) onSessionEvent(e events.Event) {
	if e.Type != events.SessionClosed {
		return
	}

	m.mu.Lock()
	if _, latched := m.closed[e.SessionID]; latched {
		m.mu.Unlock()
		return
	}
	m.logger.Info("oturum başka bir terminalden kapatıldı", "session_id", e.SessionID, "origin", e.Origin, "source_terminal", e.TerminalID)
	m.markClosedLocked(e.SessionID, nil)
	snap := m.snapshotLocked()
	snap.Event = e.Type
	m.mu.Unlock()

	m.stopWatch()
	m.notify(snap)
}

func (m *Manager) onRestaurantEvent(e events.Event) {
	// oturum kapanışı oturum anahtarından işlenir
	if e.Type == events.SessionClosed {
		return
	}
	if e.Type == events.SessionOpened && e.TerminalID == m.terminalID {
		return
	}
	snap := m.Snapshot()
	snap.Event = e.Type
	m.notify(snap)
}

func (m *Manager) publish(ctx context.Context, t events.Type, sessionID uint) {
	if m.hub == nil {
		return
	}
	err := m.hub.Publish(ctx, events.Event{
		Type:         t,
		RestaurantID: m.restaurantID,
		SessionID:    sessionID,
		TerminalID:   m.terminalID,
	})
	if err != nil {
		// yerel teslim yapıldı, sadece relay başarısız
		m.logger.Warn("olay dışarı iletilemedi", "type", t, "session_id", sessionID, "error", err)
	}
}

func (m *Manager) writeAudit(ctx context.Context, actor Actor, sessionID uint, action models.AuditAction, desc string, before, after any) {
	if m.opts.Auditor == nil {
		return
	}
	rid := m.restaurantID
	err := m.opts.Auditor.WriteLog(ctx, audit.LogOptions{
		RestaurantID: &rid,
		UserID:       actor.UserID,
		UserName:     actor.Name,
		EntityType:   "cash_session",
		EntityID:     sessionID,
		Action:       action,
		Description:  desc,
		Before:       before,
		After:        after,
	})
	if err != nil {
		m.logger.Error("audit log yazılamadı", "session_id", sessionID, "error", err)
	}
}

// serverDiscrepancy kayda yazılmış değerlerden sonucu yeniden üretir.
func serverDiscrepancy(s *models.CashSession, th reconcile.Thresholds) *reconcile.DiscrepancyResult {
	if s == nil || s.CalculatedClosingBalance == nil || s.ReportedClosingBalance == nil {
		return nil
	}
	return reconcile.Classify(*s.CalculatedClosingBalance, s.ReportedClosingBalance, th)
}

func discrepancyValue(d *reconcile.DiscrepancyResult) int64 {
	if d == nil {
		return 0
	}
	return d.Value
}

func closeDescription(res *CloseResult) string {
	if res.Discrepancy == nil {
		return "Kasa kapatıldı"
	}
	return fmt.Sprintf("Kasa kapatıldı (fark %d, %s)", res.Discrepancy.Value, res.Discrepancy.Tier)
}
