package cashflow

import (
	"errors"
	"log/slog"

	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/reconcile"

	"github.com/gofiber/fiber/v2"
)

// respondError domain hatasını HTTP cevabına çevirir. Ek alan taşıyan hatalar
// burada yazılır, diğerleri merkezi ErrorHandler'a fiber.Error olarak gider.
func respondError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var gateErr *cashsession.GateError
	if errors.As(err, &gateErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":       gateMessage(gateErr.Err),
			"discrepancy": gateErr.Discrepancy,
		})
	}

	var blockersErr *cashsession.BlockersError
	if errors.As(err, &blockersErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Kapanışı engelleyen açık işlemler var",
			"blockers": blockersErr.Blockers,
		})
	}

	// sayım farkı eski bakiyeye göre onaylandı, önizleme tekrarlanmalı
	if errors.Is(err, cashsession.ErrBalanceChanged) {
		return fiber.NewError(fiber.StatusConflict, "Kapanış sırasında kasaya yeni hareket girdi, farkı yeniden önizleyin")
	}

	var closeErr *cashsession.CloseError
	if errors.As(err, &closeErr) {
		logger.Error("kapanış doğrulanamadı", "session_id", closeErr.SessionID, "code", closeErr.Code, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":      closeMessage(closeErr.Code),
			"code":       closeErr.Code,
			"session_id": closeErr.SessionID,
		})
	}

	var amountErr *reconcile.AmountError
	switch {
	case errors.As(err, &amountErr):
		return fiber.NewError(fiber.StatusBadRequest, amountErr.Error())
	case errors.Is(err, cashsession.ErrReportedBalanceRequired):
		return fiber.NewError(fiber.StatusBadRequest, "Sayılan kasa tutarı zorunlu")
	case errors.Is(err, metrics.ErrInvalidPeriod):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case cashsession.IsGate(err):
		return fiber.NewError(fiber.StatusUnprocessableEntity, gateMessage(err))
	case errors.Is(err, cashsession.ErrAlreadyOpen):
		return fiber.NewError(fiber.StatusConflict, "Bu restoran için zaten açık bir kasa var")
	case errors.Is(err, cashsession.ErrAlreadyClosed):
		return fiber.NewError(fiber.StatusConflict, "Kasa oturumu zaten kapatılmış")
	case errors.Is(err, cashsession.ErrCloseInProgress):
		return fiber.NewError(fiber.StatusConflict, "Kapanış işlemi devam ediyor")
	case errors.Is(err, cashsession.ErrOpenInProgress):
		return fiber.NewError(fiber.StatusConflict, "Açılış işlemi devam ediyor")
	case errors.Is(err, cashsession.ErrBlockersPresent):
		return fiber.NewError(fiber.StatusConflict, "Kapanışı engelleyen açık işlemler var")
	case errors.Is(err, cashsession.ErrNoOpenSession):
		return fiber.NewError(fiber.StatusNotFound, "Açık kasa oturumu yok")
	case errors.Is(err, cashsession.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Kasa oturumu bulunamadı")
	case errors.Is(err, cashsession.ErrForbidden),
		cashsession.KindOf(err) == cashsession.KindPermissionDenied:
		return fiber.NewError(fiber.StatusForbidden, "Bu işlem için yetkiniz yok")
	case errors.Is(err, cashsession.ErrValidationUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Açık işlem kontrolü yapılamadı, kapanış durduruldu")
	case errors.Is(err, cashsession.ErrBalanceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Beklenen kasa bakiyesi hesaplanamadı")
	}

	logger.Error("beklenmeyen kasa hatası", "path", c.Path(), "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "Beklenmeyen sunucu hatası")
}

func gateMessage(err error) string {
	switch {
	case errors.Is(err, reconcile.ErrOverrideRequired):
		return "Fark izin verilen sınırı aşıyor, yönetici onayı (override) gerekli"
	case errors.Is(err, reconcile.ErrJustificationRequired):
		return "Kritik fark için açıklama zorunlu"
	case errors.Is(err, reconcile.ErrConfirmationRequired):
		return "Fark için sayım onayı gerekli"
	}
	return "Fark onayı eksik"
}

func closeMessage(code cashsession.Code) string {
	switch code {
	case cashsession.CodeOwnershipMismatch:
		return "Oturum başka bir kasiyere ait, kapanış kaydedilemedi"
	case cashsession.CodeCashierUnassigned:
		return "Oturuma kasiyer atanmamış, kapanış kaydedilemedi"
	case cashsession.CodeForceCloseRejected:
		return "Zorla kapatma reddedildi"
	}
	return "Kapanış kaydedildi ancak doğrulanamadı, oturum açık kaldı"
}
