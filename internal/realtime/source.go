// Package realtime forwards backend change events into the clinical cache.
// Transports implement Source; the Bridge consumes any Source.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Table names a watched backend table.
type Table string

const (
	TablePrescriptions  Table = "prescriptions"
	TableClinicalOrders Table = "clinical_orders"
)

// Action is the kind of row change.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ParseAction normalises a transport action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Event is one row change with the full new row.
type Event struct {
	Table      Table           `json:"table"`
	Action     Action          `json:"type"`
	Record     json.RawMessage `json:"record"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Handler consumes events. Sources call it from a single goroutine per
// subscription.
type Handler func(Event)

// Subscription is a live subscription. Close is idempotent.
type Subscription interface {
	Close() error
}

// Source delivers change events for the requested tables.
type Source interface {
	Subscribe(ctx context.Context, tables []Table, h Handler) (Subscription, error)
}

// Broadcaster is an in-process Source fed by Publish. The webhook endpoint
// and tests publish into it.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*broadcastSub
	nextID uint64
	now    func() time.Time
}

type broadcastSub struct {
	tables map[Table]bool
	h      Handler
	mu     sync.Mutex
	closed bool
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*broadcastSub), now: time.Now}
}

// Subscribe implements Source.
func (b *Broadcaster) Subscribe(_ context.Context, tables []Table, h Handler) (Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("realtime: nil handler")
	}
	sub := &broadcastSub{tables: make(map[Table]bool, len(tables)), h: h}
	for _, t := range tables {
		sub.tables[t] = true
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()
	return subscriptionFunc(func() error {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		return nil
	}), nil
}

// Publish delivers ev synchronously to every subscriber watching its table
// and returns how many received it.
func (b *Broadcaster) Publish(ev Event) int {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = b.now().UTC()
	}
	b.mu.RLock()
	targets := make([]*broadcastSub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.tables[ev.Table] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()
	n := 0
	for _, s := range targets {
		s.mu.Lock()
		if !s.closed {
			s.h(ev)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type subscriptionFunc func() error

func (f subscriptionFunc) Close() error { return f() }
