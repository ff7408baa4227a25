package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"telecare/internal/clinical"
	"telecare/pkg/domain"
)

// ErrAlreadySubscribed is returned by Start on a running bridge.
var ErrAlreadySubscribed = errors.New("realtime: bridge already subscribed")

// Recorder counts handled events. *observability.Metrics satisfies it.
type Recorder interface {
	RealtimeEvent(table, action, result string)
}

type noopRecorder struct{}

func (noopRecorder) RealtimeEvent(string, string, string) {}

// Event handling results reported to the Recorder.
const (
	ResultApplied   = "applied"
	ResultUnchanged = "unchanged"
	ResultInvalid   = "invalid"
	ResultIgnored   = "ignored"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithNotifier sets where notifications go.
func WithNotifier(n Notifier) BridgeOption { return func(b *Bridge) { b.notifier = n } }

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the event counter.
func WithRecorder(r Recorder) BridgeOption {
	return func(b *Bridge) {
		if r != nil {
			b.recorder = r
		}
	}
}

// Bridge holds exactly one subscription to a Source and upserts every
// prescription and clinical order change into the cache. Rows are applied in
// arrival order; there is no sequence number to detect reordering.
type Bridge struct {
	source   Source
	cache    *clinical.Cache
	notifier Notifier
	logger   *slog.Logger
	recorder Recorder

	mu  sync.Mutex
	sub Subscription
	ctx context.Context
}

// NewBridge wires source to cache.
func NewBridge(source Source, cache *clinical.Cache, opts ...BridgeOption) *Bridge {
	b := &Bridge{source: source, cache: cache, logger: slog.Default(), recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start subscribes to the watched tables.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return ErrAlreadySubscribed
	}
	b.ctx = context.WithoutCancel(ctx)
	sub, err := b.source.Subscribe(ctx, []Table{TablePrescriptions, TableClinicalOrders}, b.handle)
	if err != nil {
		return fmt.Errorf("realtime subscribe: %w", err)
	}
	b.sub = sub
	b.logger.Info("realtime bridge subscribed")
	return nil
}

// Stop tears the subscription down. Stopping a stopped bridge is a no-op.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub == nil {
		return nil
	}
	b.logger.Info("realtime bridge unsubscribed")
	return sub.Close()
}

// Running reports whether the bridge holds a subscription.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

func (b *Bridge) handle(ev Event) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	result := b.apply(ctx, ev)
	b.recorder.RealtimeEvent(string(ev.Table), string(ev.Action), result)
}

func (b *Bridge) apply(ctx context.Context, ev Event) string {
	if ev.Action != ActionInsert && ev.Action != ActionUpdate {
		return ResultIgnored
	}
	switch ev.Table {
	case TablePrescriptions:
		p, err := domain.DecodePrescription(ev.Record)
		if err != nil {
			b.logger.Warn("invalid prescription event", "action", ev.Action, "error", err)
			return ResultInvalid
		}
		changed, err := b.cache.UpsertPrescription(ctx, p)
		if err != nil {
			b.logger.Warn("prescription upsert rejected", "id", p.ID, "error", err)
			return ResultInvalid
		}
		if !changed {
			return ResultUnchanged
		}
		b.notify(Notification{
			Kind:     "prescription",
			Title:    "Prescription updated",
			Message:  fmt.Sprintf("Prescription %s is now %s", p.ID, p.Status),
			RecordID: p.ID.String(),
		})
		return ResultApplied
	case TableClinicalOrders:
		o, err := domain.DecodeClinicalOrder(ev.Record)
		if err != nil {
			b.logger.Warn("invalid clinical order event", "action", ev.Action, "error", err)
			return ResultInvalid
		}
		changed, err := b.cache.UpsertOrder(ctx, o)
		if err != nil {
			b.logger.Warn("clinical order upsert rejected", "id", o.ID, "error", err)
			return ResultInvalid
		}
		if !changed {
			return ResultUnchanged
		}
		title := "Clinical order updated"
		if ev.Action == ActionInsert {
			title = "New clinical order"
		}
		b.notify(Notification{
			Kind:     "clinical_order",
			Title:    title,
			Message:  fmt.Sprintf("%s order %s is %s", orderLabel(o.Type), o.ID, o.Status),
			RecordID: o.ID.String(),
		})
		return ResultApplied
	default:
		return ResultIgnored
	}
}

func orderLabel(t domain.ClinicalOrderType) string {
	if t == "" {
		return "Clinical"
	}
	return string(t)
}

func (b *Bridge) notify(n Notification) {
	if b.notifier != nil {
		b.notifier.Notify(n)
	}
}
