package cashsession

import (
	"sync"

	"kasa-backend/internal/events"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/reconcile"
)

type managerKey struct {
	restaurantID uint
	terminalID   string
}

// Registry her (restoran, terminal) için tek Manager tutar; ilk istekte oluşturur.
type Registry struct {
	store Store
	agg   *metrics.Aggregator
	hub   *events.Hub
	opts  Options

	mu       sync.Mutex
	managers map[managerKey]*Manager
}

func NewRegistry(store Store, agg *metrics.Aggregator, hub *events.Hub, opts Options) *Registry {
	return &Registry{
		store:    store,
		agg:      agg,
		hub:      hub,
		opts:     opts.withDefaults(),
		managers: make(map[managerKey]*Manager),
	}
}

func (r *Registry) Manager(restaurantID uint, terminalID string) *Manager {
	key := managerKey{restaurantID: restaurantID, terminalID: terminalID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[key]; ok {
		return m
	}
	m := NewManager(r.store, r.agg, r.hub, restaurantID, terminalID, r.opts)
	r.managers[key] = m
	return m
}

// Options varsayılanları doldurulmuş yönetici ayarları.
func (r *Registry) Options() Options {
	return r.opts
}

func (r *Registry) Capabilities() Capabilities {
	return r.opts.Capabilities
}

func (r *Registry) Thresholds() reconcile.Thresholds {
	return r.opts.Thresholds
}

func (r *Registry) MaxAmount() int64 {
	return r.opts.MaxAmount
}

func (r *Registry) Aggregator() *metrics.Aggregator {
	return r.agg
}

func (r *Registry) Shutdown() {
	r.mu.Lock()
	ms := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		ms = append(ms, m)
	}
	r.managers = make(map[managerKey]*Manager)
	r.mu.Unlock()

	for _, m := range ms {
		m.Shutdown()
	}
}
