// Package realtime fans database change events out to subscribers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/metrics"
)

// Filter selects events. Action is insert, update, delete or "*".
// Column/Value narrow to rows whose column equals value.
type Filter struct {
	Table  string `json:"table"`
	Action string `json:"event"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (f Filter) Validate() error {
	if f.Table == "" {
		return errors.New("table is required")
	}
	switch f.Action {
	case "", "*", ds.ActionInsert, ds.ActionUpdate, ds.ActionDelete:
	default:
		return fmt.Errorf("unknown event %q", f.Action)
	}
	if (f.Column == "") != (f.Value == "") {
		return errors.New("column and value must be set together")
	}
	return nil
}

// Match reports whether ev passes the filter. Column filters look at the new
// row, or the old one for deletes.
func (f Filter) Match(ev ds.ChangeEvent) bool {
	if f.Table != ev.Table {
		return false
	}
	if f.Action != "" && f.Action != "*" && f.Action != ev.Action {
		return false
	}
	if f.Column == "" {
		return true
	}
	if f.Column == "user_id" && ev.UserID != nil {
		return *ev.UserID == f.Value
	}
	row := ev.New
	if row == nil {
		row = ev.Old
	}
	v, ok := row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Subscription delivers matching events on C until Close is called.
type Subscription struct {
	C <-chan ds.ChangeEvent

	id     uint64
	hub    *Hub
	once   sync.Once
	filter Filter
}

func (s *Subscription) Filter() Filter { return s.filter }

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

type subscriber struct {
	filter Filter
	ch     chan ds.ChangeEvent
}

// Hub routes events to subscriptions. Publish never blocks: a subscriber
// whose buffer is full misses the event and catches up on its next poll.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	next    uint64
	buffer  int
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: map[uint64]*subscriber{}, buffer: buffer, logger: logger}
}

func (h *Hub) Subscribe(f Filter) (*Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ch := make(chan ds.ChangeEvent, h.buffer)

	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = &subscriber{filter: f, ch: ch}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return &Subscription{C: ch, id: id, hub: h, filter: f}, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		close(sub.ch)
		metrics.RealtimeSubscribers.Dec()
	}
}

// Publish delivers ev to every matching subscriber.
func (h *Hub) Publish(ev ds.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Warn("realtime subscriber is full, event dropped", "subscription", id, "table", ev.Table)
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Source produces change events; database_service.DB implements it.
type Source interface {
	ListenChanges(ctx context.Context) (<-chan ds.ChangeEvent, <-chan error, error)
}

// Run feeds the hub from src until ctx is cancelled, reconnecting with
// backoff when the listener fails.
func (h *Hub) Run(ctx context.Context, src Source) error {
	backoff := time.Second
	for {
		events, errs, err := src.ListenChanges(ctx)
		if err != nil {
			h.logger.Error("failed to start change listener", "error", err, "retry_in", backoff)
		} else {
			backoff = time.Second
			h.logger.Info("change feed connected")
			err = h.drain(ctx, events, errs)
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Warn("change feed interrupted", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (h *Hub) drain(ctx context.Context, events <-chan ds.ChangeEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				// The listener closes events after reporting a fatal error.
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						return err
					}
				}
				return errors.New("change feed closed")
			}
			h.Publish(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			h.logger.Warn("change feed error", "error", err)
		}
	}
}
