package cashflow

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"kasa-backend/internal/cashsession"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const sseHeartbeatInterval = 15 * time.Second

// -------------------------------------------------
// GET /api/cash-sessions/stream
// Yönetici snapshot'larını server-sent events olarak iletir.
// -------------------------------------------------
func (h *Handler) StreamHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, _, err := h.managerFor(c)
		if err != nil {
			return err
		}

		initial, err := m.Load(c.UserContext())
		if err != nil {
			return respondError(c, h.logger, err)
		}

		// yavaş istemci yöneticiyi bekletmesin, dolunca eski snapshot'lar düşer
		snaps := make(chan cashsession.Snapshot, 16)
		unsubscribe := m.Subscribe(func(s cashsession.Snapshot) {
			select {
			case snaps <- s:
			default:
				h.logger.Debug("sse kuyruğu dolu, snapshot atlandı", "restaurant_id", s.RestaurantID)
			}
		})

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		logger := h.logger.With("restaurant_id", m.RestaurantID(), "terminal_id", m.TerminalID())
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer unsubscribe()

			if err := writeSnapshot(w, initial); err != nil {
				return
			}

			ticker := time.NewTicker(sseHeartbeatInterval)
			defer ticker.Stop()

			for {
				select {
				case s := <-snaps:
					if err := writeSnapshot(w, s); err != nil {
						logger.Debug("sse istemcisi ayrıldı", "error", err)
						return
					}
				case <-ticker.C:
					// bağlantı koptuysa flush hata döner
					if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						logger.Debug("sse istemcisi ayrıldı", "error", err)
						return
					}
				}
			}
		}))

		return nil
	}
}

func writeSnapshot(w *bufio.Writer, s cashsession.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
