package payment

import (
	"context"
	"testing"
	"time"

	"telecare/internal/persistence"
	"telecare/pkg/domain"
)

func newTestStore(b persistence.Backend) *Store {
	s := New(b, "s1")
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestSuccessThenReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	if err := s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !s.UpdateStatus(ctx, "o1", domain.PaymentSuccess) {
		t.Fatalf("pending -> success should apply")
	}
	o, ok := OrderByID(s.State(), "o1")
	if !ok || o.Status != domain.PaymentSuccess {
		t.Fatalf("expected success, got %+v", o)
	}
	if !s.ResetOrder(ctx, "o1") {
		t.Fatalf("reset should remove order")
	}
	st := s.State()
	if _, ok := st.Orders["o1"]; ok || st.ActiveOrderID != "" {
		t.Fatalf("reset left order or active id behind: %+v", st)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to domain.PaymentStatus
		ok       bool
	}{
		{domain.PaymentPending, domain.PaymentSuccess, true},
		{domain.PaymentPending, domain.PaymentFailed, true},
		{domain.PaymentFailed, domain.PaymentPending, true},
		{domain.PaymentSuccess, domain.PaymentPending, false},
		{domain.PaymentSuccess, domain.PaymentFailed, false},
		{domain.PaymentFailed, domain.PaymentSuccess, false},
		{domain.PaymentPending, domain.PaymentPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestRetryReusesOrderID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	_ = s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1"})
	s.UpdateStatus(ctx, "o1", domain.PaymentFailed)
	if s.UpdateStatus(ctx, "o1", domain.PaymentSuccess) {
		t.Fatalf("failed -> success must be rejected")
	}
	if !s.Retry(ctx, "o1") {
		t.Fatalf("retry should re-enter pending")
	}
	o, _ := ActiveOrder(s.State())
	if o.ID != "o1" || o.Status != domain.PaymentPending {
		t.Fatalf("unexpected active order %+v", o)
	}
	if !s.UpdateStatus(ctx, "o1", domain.PaymentSuccess) {
		t.Fatalf("retried order should be able to succeed")
	}
}

func TestUnknownOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	notified := false
	s.Subscribe(func(State, State) { notified = true })
	if s.UpdateStatus(ctx, "ghost", domain.PaymentSuccess) || s.SetChannel(ctx, "ghost", "card") || s.ResetOrder(ctx, "ghost") {
		t.Fatalf("operations on unknown ids must be no-ops")
	}
	if notified {
		t.Fatalf("no-ops must not notify")
	}
}

func TestRecordOrderValidatesAndActivates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	if err := s.RecordOrder(ctx, domain.PaymentOrder{ID: " "}); err == nil {
		t.Fatalf("expected validation error for blank id")
	}
	if err := s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1", Status: "refunded"}); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
	_ = s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1"})
	_ = s.RecordOrder(ctx, domain.PaymentOrder{ID: "o2", PlacedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	st := s.State()
	if st.ActiveOrderID != "o2" {
		t.Fatalf("expected most recent order active, got %s", st.ActiveOrderID)
	}
	if st.Orders["o1"].PlacedAt.IsZero() || st.Orders["o1"].Status != domain.PaymentPending {
		t.Fatalf("expected defaults applied: %+v", st.Orders["o1"])
	}
	all := OrdersByStatus(st, "")
	if len(all) != 2 || all[0].ID != "o2" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if pending := OrdersByStatus(st, domain.PaymentPending); len(pending) != 2 {
		t.Fatalf("expected 2 pending orders, got %d", len(pending))
	}
	s.ResetOrder(ctx, "o1")
	if s.State().ActiveOrderID != "o2" {
		t.Fatalf("resetting a non-active order must keep the active id")
	}
}

func TestSetChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	_ = s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1"})
	if !s.SetChannel(ctx, "o1", "card") || s.SetChannel(ctx, "o1", "card") {
		t.Fatalf("expected one transition for repeated channel")
	}
	o, _ := OrderByID(s.State(), "o1")
	if o.Channel == nil || *o.Channel != "card" {
		t.Fatalf("channel not recorded: %+v", o)
	}
	if !s.SetChannel(ctx, "o1", "") {
		t.Fatalf("clearing channel should apply")
	}
}

func TestSelectorsDoNotMutate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(persistence.NewMemory())
	ch := "card"
	_ = s.RecordOrder(ctx, domain.PaymentOrder{ID: "o1", Channel: &ch})
	st := s.State()
	o, _ := ActiveOrder(st)
	*o.Channel = "wallet"
	if again, _ := OrderByID(s.State(), "o1"); *again.Channel != "card" {
		t.Fatalf("selector result aliased store state")
	}
}

func TestPersistedPerSession(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	a := New(b, "alpha")
	_ = a.RecordOrder(ctx, domain.PaymentOrder{ID: "o1"})
	other := New(b, "beta")
	if len(other.State().Orders) != 0 {
		t.Fatalf("sessions must not share orders")
	}
	again := New(b, "alpha")
	if _, ok := again.State().Orders["o1"]; !ok {
		t.Fatalf("expected rehydrated order for alpha")
	}
	keys, _ := b.Keys(ctx)
	if len(keys) != 2 || keys[0] != "telecare:payment-orders:alpha" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestInvalidSnapshotIsDiscarded(t *testing.T) {
	ctx := context.Background()
	cases := map[string]State{
		"unknown status": {Orders: map[string]domain.PaymentOrder{"o1": {ID: "o1", Status: "refunded"}}},
		"id mismatch":    {Orders: map[string]domain.PaymentOrder{"o1": {ID: "o2", Status: domain.PaymentPending}}},
		"dangling active": {
			Orders:        map[string]domain.PaymentOrder{"o1": {ID: "o1", Status: domain.PaymentPending}},
			ActiveOrderID: "o9",
		},
	}
	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			b := persistence.NewMemory()
			if err := persistence.SaveSnapshot(ctx, b, "telecare:payment-orders:s1", 1, st); err != nil {
				t.Fatalf("seed: %v", err)
			}
			s := newTestStore(b)
			if outcome := s.Hydrate(ctx); outcome != persistence.OutcomeMalformed {
				t.Fatalf("expected malformed, got %s", outcome)
			}
			if got := s.State(); len(got.Orders) != 0 || got.ActiveOrderID != "" {
				t.Fatalf("expected empty state, got %+v", got)
			}
		})
	}
}
