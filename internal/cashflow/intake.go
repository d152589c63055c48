package cashflow

import (
	"context"
	"fmt"

	"kasa-backend/internal/audit"
	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/events"
	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"
	"kasa-backend/internal/validator"

	"github.com/gofiber/fiber/v2"
)

type CreateTransactionRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash card digital"`
	Amount        int64                `json:"amount"`
	ChangeGiven   int64                `json:"change_given" validate:"gte=0"`
}

type CreateExpenseRequest struct {
	Amount        int64                `json:"amount"`
	Category      string               `json:"category" validate:"notblank,max=100"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=cash card digital"`
	Description   string               `json:"description" validate:"max=255"`
}

// openSessionFor hareket sadece açık ve isteği yapanın restoranına ait oturuma işlenir.
func (h *Handler) openSessionFor(c *fiber.Ctx) (*cashsession.Manager, cashsession.Actor, *models.CashSession, error) {
	m, actor, err := h.managerFor(c)
	if err != nil {
		return nil, actor, nil, err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return nil, actor, nil, err
	}
	session, err := m.Get(c.UserContext(), id)
	if err != nil {
		return nil, actor, nil, respondError(c, h.logger, err)
	}
	if !session.IsOpen() {
		return nil, actor, nil, respondError(c, h.logger, cashsession.ErrAlreadyClosed)
	}
	return m, actor, session, nil
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/transactions
// -------------------------------------------------
func (h *Handler) CreateTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}
		if err := reconcile.ValidatePositiveAmount("amount", body.Amount, h.registry.MaxAmount()); err != nil {
			return respondError(c, h.logger, err)
		}
		if body.ChangeGiven > 0 && body.PaymentMethod != models.PaymentMethodCash {
			return fiber.NewError(fiber.StatusBadRequest, "Para üstü sadece nakit satışta girilebilir")
		}

		m, actor, session, err := h.openSessionFor(c)
		if err != nil {
			return err
		}

		ctx := c.UserContext()
		tx := models.Transaction{
			SessionID:     session.ID,
			RestaurantID:  session.RestaurantID,
			PaymentMethod: body.PaymentMethod,
			Amount:        body.Amount,
			ChangeGiven:   body.ChangeGiven,
			PostedAt:      h.now(),
		}
		if err := h.writer.InsertTransaction(ctx, &tx); err != nil {
			h.logger.Error("satış kaydedilemedi", "session_id", session.ID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Kayıt oluşturulamadı")
		}

		h.movementRecorded(ctx, m, session.ID)
		h.writeAudit(ctx, actor, "transaction", tx.ID,
			fmt.Sprintf("Satış işlendi: %d (%s)", tx.Amount, tx.PaymentMethod), tx)

		return c.Status(fiber.StatusCreated).JSON(tx)
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/expenses
// -------------------------------------------------
func (h *Handler) CreateExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateExpenseRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}
		if err := reconcile.ValidatePositiveAmount("amount", body.Amount, h.registry.MaxAmount()); err != nil {
			return respondError(c, h.logger, err)
		}
		if body.PaymentMethod == "" {
			body.PaymentMethod = models.PaymentMethodCash
		}

		m, actor, session, err := h.openSessionFor(c)
		if err != nil {
			return err
		}

		ctx := c.UserContext()
		exp := models.Expense{
			SessionID:     session.ID,
			RestaurantID:  session.RestaurantID,
			Amount:        body.Amount,
			Category:      body.Category,
			PaymentMethod: body.PaymentMethod,
			Description:   body.Description,
			PostedAt:      h.now(),
		}
		if err := h.writer.InsertExpense(ctx, &exp); err != nil {
			h.logger.Error("gider kaydedilemedi", "session_id", session.ID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Kayıt oluşturulamadı")
		}

		h.movementRecorded(ctx, m, session.ID)
		h.writeAudit(ctx, actor, "expense", exp.ID,
			fmt.Sprintf("Gider işlendi: %d (%s)", exp.Amount, exp.Category), exp)

		return c.Status(fiber.StatusCreated).JSON(exp)
	}
}

// anlık bakiyeyi gösteren diğer terminaller yenilensin
func (h *Handler) movementRecorded(ctx context.Context, m *cashsession.Manager, sessionID uint) {
	if h.hub == nil {
		return
	}
	err := h.hub.Publish(ctx, events.Event{
		Type:         events.MovementRecorded,
		RestaurantID: m.RestaurantID(),
		SessionID:    sessionID,
		TerminalID:   m.TerminalID(),
	})
	if err != nil {
		h.logger.Warn("hareket olayı dışarı iletilemedi", "session_id", sessionID, "error", err)
	}
}

func (h *Handler) writeAudit(ctx context.Context, actor cashsession.Actor, entityType string, entityID uint, desc string, after any) {
	if h.opts.Auditor == nil {
		return
	}
	rid := actor.RestaurantID
	err := h.opts.Auditor.WriteLog(ctx, audit.LogOptions{
		RestaurantID: &rid,
		UserID:       actor.UserID,
		UserName:     actor.Name,
		EntityType:   entityType,
		EntityID:     entityID,
		Action:       models.AuditActionCreate,
		Description:  desc,
		After:        after,
	})
	if err != nil {
		h.logger.Error("audit log yazılamadı", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
