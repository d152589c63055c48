// Package events kasa oturumu değişikliklerini abonelere iletir.
// Anahtarlar oturum ("session:<id>") ve restoran ("restaurant:<id>") bazlıdır.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	SessionOpened    Type = "session.opened"
	SessionClosed    Type = "session.closed"
	MovementRecorded Type = "movement.recorded" // satış/gider işlendi, anlık bakiye değişti
	OrderChanged     Type = "order.changed"     // sipariş modülünden: tahsil edilecek tutar değişti
)

type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	RestaurantID uint      `json:"restaurant_id"`
	SessionID    uint      `json:"session_id,omitempty"`
	TerminalID   string    `json:"terminal_id,omitempty"`
	Origin       string    `json:"origin"` // yayınlayan node
	At           time.Time `json:"at"`
}

func SessionKey(id uint) string {
	return fmt.Sprintf("session:%d", id)
}

func RestaurantKey(id uint) string {
	return fmt.Sprintf("restaurant:%d", id)
}

type Handler func(Event)

// Relay olayları node dışına taşır (ör. Kafka).
type Relay interface {
	Publish(ctx context.Context, e Event) error
}

// Hub node içi yayın/abone merkezi. Handler'lar kilit dışında, senkron çağrılır.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Handler
	nextID int

	origin string
	relay  Relay
	logger *slog.Logger
}

func NewHub(relay Relay, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[int]Handler),
		origin: uuid.NewString(),
		relay:  relay,
		logger: logger,
	}
}

func (h *Hub) Origin() string {
	return h.origin
}

// Subscribe dönen fonksiyon aboneliği iptal eder, birden çok çağrılabilir.
func (h *Hub) Subscribe(key string, fn Handler) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]Handler)
	}
	h.subs[key][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

// Publish olayı yerel abonelere dağıtır ve relay varsa dışarı da gönderir.
// Relay hatası yerel teslimatı etkilemez.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Origin == "" {
		e.Origin = h.origin
	}

	h.Deliver(e)

	if h.relay == nil {
		return nil
	}
	if err := h.relay.Publish(ctx, e); err != nil {
		h.logger.Warn("olay relay edilemedi", "event_id", e.ID, "type", e.Type, "error", err)
		return fmt.Errorf("relay event %s: %w", e.ID, err)
	}
	return nil
}

// Deliver sadece yerel teslimat yapar. Dışarıdan (Kafka) gelen olaylar buradan girer.
func (h *Hub) Deliver(e Event) {
	keys := []string{RestaurantKey(e.RestaurantID)}
	if e.SessionID != 0 {
		keys = append(keys, SessionKey(e.SessionID))
	}

	h.mu.RLock()
	var handlers []Handler
	for _, k := range keys {
		for _, fn := range h.subs[k] {
			handlers = append(handlers, fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}
