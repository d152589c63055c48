package cashflow

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"kasa-backend/internal/auth"
	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/events"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"
	"kasa-backend/internal/report"
	"kasa-backend/internal/validator"

	"github.com/gofiber/fiber/v2"
)

const (
	TerminalHeader  = "X-Terminal-ID"
	defaultTerminal = "default"
)

// MovementWriter satış ve giderlerin kaydedildiği yer.
type MovementWriter interface {
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	InsertExpense(ctx context.Context, e *models.Expense) error
}

type Handler struct {
	registry *cashsession.Registry
	source   metrics.Source
	writer   MovementWriter
	hub      *events.Hub

	opts   cashsession.Options
	logger *slog.Logger
}

// hub nil olabilir; o durumda hareket olayları yayınlanmaz.
func NewHandler(reg *cashsession.Registry, src metrics.Source, writer MovementWriter, hub *events.Hub) *Handler {
	opts := reg.Options()
	return &Handler{
		registry: reg,
		source:   src,
		writer:   writer,
		hub:      hub,
		opts:     opts,
		logger:   opts.Logger.With("component", "cashflow"),
	}
}

func (h *Handler) now() time.Time {
	return h.opts.Clock()
}

func (h *Handler) agg() *metrics.Aggregator {
	return h.registry.Aggregator()
}

// Yardımcı: token'daki kullanıcıyı çekirdeğin Actor tipine çevirir
func actorFromCtx(c *fiber.Ctx) (cashsession.Actor, error) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok || userID == 0 {
		return cashsession.Actor{}, fiber.NewError(fiber.StatusForbidden, "Kullanıcı bilgisi alınamadı")
	}
	role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if !ok {
		return cashsession.Actor{}, fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
	}
	rPtr, ok := c.Locals(auth.CtxRestaurantIDKey).(*uint)
	if !ok || rPtr == nil {
		return cashsession.Actor{}, fiber.NewError(fiber.StatusForbidden, "Restoran bilgisi bulunamadı")
	}
	name, _ := c.Locals(auth.CtxUserNameKey).(string)

	return cashsession.Actor{UserID: userID, Name: name, Role: role, RestaurantID: *rPtr}, nil
}

func terminalFromCtx(c *fiber.Ctx) (string, error) {
	terminal := c.Get(TerminalHeader)
	if terminal == "" {
		terminal = c.Query("terminal")
	}
	if terminal == "" {
		return defaultTerminal, nil
	}
	if err := validator.Validate.Var(terminal, "terminal"); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "Geçersiz terminal kimliği")
	}
	return terminal, nil
}

// Yardımcı: isteği yapan kullanıcı ve terminalin yöneticisi
func (h *Handler) managerFor(c *fiber.Ctx) (*cashsession.Manager, cashsession.Actor, error) {
	actor, err := actorFromCtx(c)
	if err != nil {
		return nil, actor, err
	}
	terminal, err := terminalFromCtx(c)
	if err != nil {
		return nil, actor, err
	}
	return h.registry.Manager(actor.RestaurantID, terminal), actor, nil
}

func sessionIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz oturum id")
	}
	return uint(id), nil
}

type OpenSessionRequest struct {
	InitialFloat *int64 `json:"initial_float" validate:"required"`
	OpeningNotes string `json:"opening_notes" validate:"max=500"`
}

type CloseSessionRequest struct {
	ReportedClosingBalance *int64 `json:"reported_closing_balance"`
	ClosingNotes           string `json:"closing_notes" validate:"max=500"`
	Confirmed              bool   `json:"confirmed"`
	Justification          string `json:"justification" validate:"max=500"`
	Override               bool   `json:"override"`
	AdminOverride          bool   `json:"admin_override"`
}

type PreviewCloseRequest struct {
	ReportedClosingBalance *int64 `json:"reported_closing_balance"`
}

type CurrentSessionResponse struct {
	cashsession.Snapshot
	Totals       *metrics.Totals          `json:"totals,omitempty"`
	Receivable   *int64                   `json:"receivable,omitempty"`
	Thresholds   ThresholdsResponse       `json:"thresholds"`
	Capabilities cashsession.Capabilities `json:"capabilities"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

type ThresholdsResponse struct {
	Warning  int64 `json:"warning"`
	Critical int64 `json:"critical"`
	Max      int64 `json:"max"`
}

type PreviewResponse struct {
	SessionID         uint                         `json:"session_id"`
	CalculatedBalance int64                        `json:"calculated_balance"`
	Discrepancy       *reconcile.DiscrepancyResult `json:"discrepancy"`
	Totals            metrics.Totals               `json:"totals"`
}

// -------------------------------------------------
// POST /api/cash-sessions
// -------------------------------------------------
func (h *Handler) OpenSessionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, actor, err := h.managerFor(c)
		if err != nil {
			return err
		}

		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}

		session, err := m.Open(c.UserContext(), actor, cashsession.OpenInput{
			InitialFloat: *body.InitialFloat,
			OpeningNotes: body.OpeningNotes,
		})
		if err != nil {
			return respondError(c, h.logger, err)
		}

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/current
// Durum, bayat oturum uyarısı ve anlık toplamlar
// -------------------------------------------------
func (h *Handler) CurrentSessionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, _, err := h.managerFor(c)
		if err != nil {
			return err
		}
		ctx := c.UserContext()

		snap, err := m.Load(ctx)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		th := h.registry.Thresholds()
		resp := CurrentSessionResponse{
			Snapshot:     snap,
			Thresholds:   ThresholdsResponse{Warning: th.Warning, Critical: th.Critical, Max: th.Max},
			Capabilities: h.registry.Capabilities(),
		}

		if snap.Session != nil {
			totals, err := h.agg().SessionTotals(ctx, snap.Session)
			if err != nil {
				h.logger.Warn("oturum toplamları alınamadı", "session_id", snap.Session.ID, "error", err)
				resp.Warnings = append(resp.Warnings, "totals unavailable")
			} else {
				resp.Totals = &totals
			}
		}

		receivable, err := h.agg().Receivable(ctx, m.RestaurantID())
		if err != nil {
			h.logger.Warn("tahsil edilecek tutar alınamadı", "restaurant_id", m.RestaurantID(), "error", err)
			resp.Warnings = append(resp.Warnings, "receivable unavailable")
		} else {
			resp.Receivable = &receivable
		}

		return c.JSON(resp)
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id
// -------------------------------------------------
func (h *Handler) GetSessionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, _, err := h.managerFor(c)
		if err != nil {
			return err
		}
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		session, err := m.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		return c.JSON(session)
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/preview
// Kapanıştan önce sayım farkını sınıflandırır, hiçbir şey yazmaz.
// -------------------------------------------------
func (h *Handler) PreviewCloseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, _, err := h.managerFor(c)
		if err != nil {
			return err
		}
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		var body PreviewCloseRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.ReportedClosingBalance != nil {
			if err := reconcile.ValidateAmount("reported_closing_balance", *body.ReportedClosingBalance, h.registry.MaxAmount()); err != nil {
				return respondError(c, h.logger, err)
			}
		}

		ctx := c.UserContext()
		session, err := m.Get(ctx, id)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		if !session.IsOpen() {
			return respondError(c, h.logger, cashsession.ErrAlreadyClosed)
		}

		totals, err := h.agg().SessionTotals(ctx, session)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		if totals.ExpensesDegraded || totals.RunningBalance == nil {
			return respondError(c, h.logger, cashsession.ErrBalanceUnavailable)
		}

		return c.JSON(PreviewResponse{
			SessionID:         session.ID,
			CalculatedBalance: *totals.RunningBalance,
			Discrepancy:       reconcile.Classify(*totals.RunningBalance, body.ReportedClosingBalance, h.registry.Thresholds()),
			Totals:            totals,
		})
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/close
// -------------------------------------------------
func (h *Handler) CloseSessionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, actor, err := h.managerFor(c)
		if err != nil {
			return err
		}
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		var body CloseSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}

		res, err := m.Close(c.UserContext(), actor, cashsession.CloseInput{
			SessionID:       id,
			ReportedBalance: body.ReportedClosingBalance,
			ClosingNotes:    body.ClosingNotes,
			Acknowledgement: reconcile.Acknowledgement{
				Confirmed:     body.Confirmed,
				Justification: body.Justification,
				Override:      body.Override,
			},
			AdminOverride: body.AdminOverride,
		})
		if err != nil {
			return respondError(c, h.logger, err)
		}

		return c.JSON(res)
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id/report.xlsx
// -------------------------------------------------
func (h *Handler) SessionReportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, _, err := h.managerFor(c)
		if err != nil {
			return err
		}
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		ctx := c.UserContext()
		session, err := m.Get(ctx, id)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		totals, err := h.agg().SessionTotals(ctx, session)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		var expenses []models.Expense
		if !totals.ExpensesDegraded {
			expenses, err = h.source.ListExpenses(ctx, metrics.Filter{RestaurantID: session.RestaurantID, SessionID: session.ID})
			if err != nil {
				h.logger.Warn("rapor için giderler alınamadı", "session_id", session.ID, "error", err)
				totals.ExpensesDegraded = true
			}
		}

		rep := report.CloseReport{
			Session:  session,
			Totals:   totals,
			Expenses: expenses,
			Location: h.opts.Location,
		}
		buf, err := rep.Build()
		if err != nil {
			h.logger.Error("kasa raporu oluşturulamadı", "session_id", session.ID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Rapor oluşturulamadı")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+rep.FileName()+`"`)
		return c.Send(buf.Bytes())
	}
}
