package cashflow

import (
	"strconv"

	"kasa-backend/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

type PeriodTotalsResponse struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"` // dahil, son gün
	metrics.Totals
}

// -------------------------------------------------
// GET /api/cash-metrics/totals?period=day|week|month|custom&date=&from=&to=
// -------------------------------------------------
func (h *Handler) PeriodTotalsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		loc := h.agg().Location()
		p, err := metrics.ParsePeriod(c.Query("period"), c.Query("date"), c.Query("from"), c.Query("to"), loc, h.now())
		if err != nil {
			return respondError(c, h.logger, err)
		}

		totals, err := h.agg().PeriodTotals(c.UserContext(), actor.RestaurantID, p)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		return c.JSON(PeriodTotalsResponse{
			Period: string(p.Mode),
			From:   metrics.LocalDate(p.From, loc),
			To:     metrics.LocalDate(p.To.AddDate(0, 0, -1), loc),
			Totals: totals,
		})
	}
}

// -------------------------------------------------
// GET /api/cash-metrics/chart?period=daily|weekly|monthly&count=
// -------------------------------------------------
func (h *Handler) ChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFromCtx(c)
		if err != nil {
			return err
		}

		gran := metrics.Granularity(c.Query("period", string(metrics.GranularityDaily)))
		count := 0
		if v := c.Query("count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "count 1 ile 366 arasında olmalı")
			}
			count = n
		}

		chart, err := h.agg().Chart(c.UserContext(), actor.RestaurantID, gran, count, h.now())
		if err != nil {
			return respondError(c, h.logger, err)
		}
		return c.JSON(chart)
	}
}
