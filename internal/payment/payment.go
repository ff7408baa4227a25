// Package payment tracks the payment state of placed orders for one session.
//
// Each order moves through a small state machine:
//
//	pending -> success
//	pending -> failed
//	failed  -> pending   (retry, same order id)
//
// success is terminal until the order is reset. Requests for any other
// transition, or for an unknown order id, are logged and ignored.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/store"
	"telecare/pkg/domain"
)

// State is the persisted order mapping.
type State struct {
	Orders        map[string]domain.PaymentOrder `json:"orders"`
	ActiveOrderID string                         `json:"activeOrderId,omitempty"`
}

func cloneState(s State) State {
	out := State{ActiveOrderID: s.ActiveOrderID, Orders: make(map[string]domain.PaymentOrder, len(s.Orders))}
	for id, o := range s.Orders {
		out.Orders[id] = o.Clone()
	}
	return out
}

// Validate checks that every order is valid and stored under its own id, and
// that the active id refers to a stored order.
func (s State) Validate() error {
	for id, o := range s.Orders {
		if err := o.Validate(); err != nil {
			return err
		}
		if o.ID != id {
			return fmt.Errorf("payment: order %s stored under %s", o.ID, id)
		}
	}
	if s.ActiveOrderID != "" {
		if _, ok := s.Orders[s.ActiveOrderID]; !ok {
			return fmt.Errorf("payment: active order %s not stored", s.ActiveOrderID)
		}
	}
	return nil
}

var transitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentPending: {domain.PaymentSuccess, domain.PaymentFailed},
	domain.PaymentFailed:  {domain.PaymentPending},
}

// CanTransition reports whether from -> to is a legal payment transition.
func CanTransition(from, to domain.PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type options struct {
	namespace string
	logger    *slog.Logger
	observer  store.Observer
	now       func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithNamespace sets the storage key namespace.
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithObserver sets the store metrics observer.
func WithObserver(obs store.Observer) Option { return func(o *options) { o.observer = obs } }

// Store is the per-session payment store.
type Store struct {
	store   *store.Store[State]
	logger  *slog.Logger
	now     func() time.Time
	session string
}

// New builds the payment store for session.
func New(backend persistence.Backend, session string, opts ...Option) *Store {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	st := store.New(backend, keys.PaymentOrders.ScopedStorage(o.namespace, session), keys.PaymentOrders.Version,
		State{Orders: map[string]domain.PaymentOrder{}},
		store.WithClone(cloneState),
		store.WithValidate(State.Validate),
		store.WithLogger[State](o.logger),
		store.WithObserver[State](o.observer),
	)
	return &Store{store: st, logger: o.logger.With("session", session), now: o.now, session: session}
}

// RecordOrder inserts or replaces the order by id and makes it active. An
// empty status defaults to pending and a zero PlacedAt to now.
func (s *Store) RecordOrder(ctx context.Context, order domain.PaymentOrder) error {
	order = order.Clone()
	order.ID = strings.TrimSpace(order.ID)
	if order.Status == "" {
		order.Status = domain.PaymentPending
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = s.now().UTC()
	}
	if err := order.Validate(); err != nil {
		return err
	}
	s.store.Update(ctx, func(st *State) bool {
		if st.Orders == nil {
			st.Orders = map[string]domain.PaymentOrder{}
		}
		st.Orders[order.ID] = order
		st.ActiveOrderID = order.ID
		return true
	})
	return nil
}

// UpdateStatus moves an order to status when the transition is legal.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) bool {
	return s.store.Update(ctx, func(st *State) bool {
		o, ok := st.Orders[id]
		if !ok {
			s.logger.Warn("payment status for unknown order ignored", "order_id", id, "status", status)
			return false
		}
		if !CanTransition(o.Status, status) {
			if o.Status != status {
				s.logger.Warn("illegal payment transition ignored", "order_id", id, "from", o.Status, "to", status)
			}
			return false
		}
		o.Status = status
		st.Orders[id] = o
		return true
	})
}

// Retry moves a failed order back to pending.
func (s *Store) Retry(ctx context.Context, id string) bool {
	return s.UpdateStatus(ctx, id, domain.PaymentPending)
}

// SetChannel records the payment channel chosen for an order. An empty
// channel clears it.
func (s *Store) SetChannel(ctx context.Context, id, channel string) bool {
	return s.store.Update(ctx, func(st *State) bool {
		o, ok := st.Orders[id]
		if !ok {
			s.logger.Warn("payment channel for unknown order ignored", "order_id", id)
			return false
		}
		switch {
		case channel == "" && o.Channel == nil:
			return false
		case channel == "":
			o.Channel = nil
		case o.Channel != nil && *o.Channel == channel:
			return false
		default:
			o.Channel = &channel
		}
		st.Orders[id] = o
		return true
	})
}

// ResetOrder removes an order, clearing the active id if it pointed at it.
func (s *Store) ResetOrder(ctx context.Context, id string) bool {
	return s.store.Update(ctx, func(st *State) bool {
		if _, ok := st.Orders[id]; !ok {
			return false
		}
		delete(st.Orders, id)
		if st.ActiveOrderID == id {
			st.ActiveOrderID = ""
		}
		return true
	})
}

// State returns a copy of the mapping.
func (s *Store) State() State { return s.store.State() }

// Session returns the session id the store is scoped to.
func (s *Store) Session() string { return s.session }

// Subscribe registers a change listener.
func (s *Store) Subscribe(fn func(next, prev State)) func() { return s.store.Subscribe(fn) }

// Hydrate loads the persisted mapping.
func (s *Store) Hydrate(ctx context.Context) persistence.LoadOutcome { return s.store.Hydrate(ctx) }

// ActiveOrder returns the active order, if any.
func ActiveOrder(st State) (domain.PaymentOrder, bool) {
	if st.ActiveOrderID == "" {
		return domain.PaymentOrder{}, false
	}
	return OrderByID(st, st.ActiveOrderID)
}

// OrderByID returns a copy of the order with id.
func OrderByID(st State, id string) (domain.PaymentOrder, bool) {
	o, ok := st.Orders[id]
	if !ok {
		return domain.PaymentOrder{}, false
	}
	return o.Clone(), true
}

// OrdersByStatus lists orders in status, newest first. An empty status lists all.
func OrdersByStatus(st State, status domain.PaymentStatus) []domain.PaymentOrder {
	out := make([]domain.PaymentOrder, 0, len(st.Orders))
	for _, o := range st.Orders {
		if status == "" || o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.After(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
