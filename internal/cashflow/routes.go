package cashflow

import "github.com/gofiber/fiber/v2"

// Register kasa route'larını JWT korumalı gruba ekler.
func (h *Handler) Register(r fiber.Router) {
	// Kasa oturumu
	r.Post("/cash-sessions", h.OpenSessionHandler())
	r.Get("/cash-sessions/current", h.CurrentSessionHandler())
	r.Get("/cash-sessions/stream", h.StreamHandler())
	r.Get("/cash-sessions/:id", h.GetSessionHandler())
	r.Post("/cash-sessions/:id/preview", h.PreviewCloseHandler())
	r.Post("/cash-sessions/:id/close", h.CloseSessionHandler())
	r.Get("/cash-sessions/:id/report.xlsx", h.SessionReportHandler())

	// Satış / gider girişi
	r.Post("/cash-sessions/:id/transactions", h.CreateTransactionHandler())
	r.Post("/cash-sessions/:id/expenses", h.CreateExpenseHandler())

	// Dönem toplamları ve grafik
	r.Get("/cash-metrics/totals", h.PeriodTotalsHandler())
	r.Get("/cash-metrics/chart", h.ChartHandler())
}
