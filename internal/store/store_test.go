package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"telecare/internal/persistence"
)

type counter struct {
	Values []int  `json:"values"`
	Label  string `json:"label"`
}

func cloneCounter(c counter) counter {
	c.Values = append([]int(nil), c.Values...)
	return c
}

func newCounterStore(b persistence.Backend, version int, opts ...Option[counter]) *Store[counter] {
	opts = append([]Option[counter]{WithClone(cloneCounter)}, opts...)
	return New(b, "telecare:counter", version, counter{Label: "init"}, opts...)
}

type recordingObserver struct {
	mu         sync.Mutex
	mutations  int
	failures   int
	hydrations []string
}

func (o *recordingObserver) StoreMutated(string) {
	o.mu.Lock()
	o.mutations++
	o.mu.Unlock()
}

func (o *recordingObserver) StorePersistFailed(string) {
	o.mu.Lock()
	o.failures++
	o.mu.Unlock()
}
func (o *recordingObserver) StoreHydrated(_ string, outcome string) {
	o.mu.Lock()
	o.hydrations = append(o.hydrations, outcome)
	o.mu.Unlock()
}

func TestHydrateMissingPersistsInitial(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	s := newCounterStore(b, 1)
	if outcome := s.Hydrate(ctx); outcome != persistence.OutcomeMissing {
		t.Fatalf("expected missing, got %s", outcome)
	}
	if s.State().Label != "init" {
		t.Fatalf("expected initial state")
	}
	if _, outcome, err := persistence.LoadSnapshot[counter](ctx, b, "telecare:counter", 1); outcome != persistence.OutcomeRestored {
		t.Fatalf("expected self-healed snapshot, got %s %v", outcome, err)
	}
	if again := s.Hydrate(ctx); again != persistence.OutcomeMissing {
		t.Fatalf("hydrate should be idempotent, got %s", again)
	}
}

func TestRoundTripAcrossInstances(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	first := newCounterStore(b, 2)
	first.Update(ctx, func(c *counter) bool {
		c.Values = append(c.Values, 3, 1, 2)
		c.Label = "saved"
		return true
	})

	second := newCounterStore(b, 2)
	got := second.State()
	if got.Label != "saved" || len(got.Values) != 3 || got.Values[0] != 3 || got.Values[2] != 2 {
		t.Fatalf("unexpected rehydrated state %+v", got)
	}
}

func TestVersionMismatchFallsBackToInitial(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	old := newCounterStore(b, 1)
	old.Set(ctx, counter{Label: "v1", Values: []int{9}})

	obs := &recordingObserver{}
	fresh := newCounterStore(b, 2, WithObserver[counter](obs))
	if outcome := fresh.Hydrate(ctx); outcome != persistence.OutcomeVersionMismatch {
		t.Fatalf("expected version mismatch, got %s", outcome)
	}
	if st := fresh.State(); st.Label != "init" || len(st.Values) != 0 {
		t.Fatalf("expected initial state, got %+v", st)
	}
	h, err := persistence.Inspect(ctx, b, "telecare:counter")
	if err != nil || h.Version != 2 {
		t.Fatalf("expected snapshot rewritten at v2, got %+v %v", h, err)
	}
	if len(obs.hydrations) != 1 || obs.hydrations[0] != "version_mismatch" {
		t.Fatalf("unexpected hydration observations %v", obs.hydrations)
	}
}

func TestMalformedSnapshotFallsBack(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	_ = b.Write(ctx, "telecare:counter", []byte("{{{"))
	s := newCounterStore(b, 1)
	if outcome := s.Hydrate(ctx); outcome != persistence.OutcomeMalformed {
		t.Fatalf("expected malformed, got %s", outcome)
	}
	if s.State().Label != "init" {
		t.Fatalf("expected initial state")
	}
}

type flakyBackend struct {
	persistence.Backend
	failReads  bool
	failWrites bool
	writes     int
}

func (f *flakyBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if f.failReads {
		return nil, errors.New("storage unavailable")
	}
	return f.Backend.Read(ctx, key)
}

func (f *flakyBackend) Write(ctx context.Context, key string, payload []byte) error {
	f.writes++
	if f.failWrites {
		return errors.New("quota exceeded")
	}
	return f.Backend.Write(ctx, key, payload)
}

func TestUnavailableBackendDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	mem := persistence.NewMemory()
	seeded := newCounterStore(mem, 1)
	seeded.Set(ctx, counter{Label: "keep"})

	fb := &flakyBackend{Backend: mem, failReads: true}
	s := newCounterStore(fb, 1)
	if outcome := s.Hydrate(ctx); outcome != persistence.OutcomeUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome)
	}
	if fb.writes != 0 {
		t.Fatalf("unavailable hydration must not write, saw %d writes", fb.writes)
	}
	if s.State().Label != "init" {
		t.Fatalf("expected in-memory initial state")
	}
	restored, _, _ := persistence.LoadSnapshot[counter](ctx, mem, "telecare:counter", 1)
	if restored.Label != "keep" {
		t.Fatalf("stored snapshot was overwritten: %+v", restored)
	}
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	fb := &flakyBackend{Backend: persistence.NewMemory(), failWrites: true}
	obs := &recordingObserver{}
	s := newCounterStore(fb, 1, WithObserver[counter](obs))
	var notified int
	s.Subscribe(func(next, _ counter) { notified++ })
	changed := s.Update(ctx, func(c *counter) bool {
		c.Values = append(c.Values, 1)
		return true
	})
	if !changed || notified != 1 {
		t.Fatalf("mutation should apply and notify despite write failure")
	}
	if got := s.State().Values; len(got) != 1 {
		t.Fatalf("in-memory state lost: %v", got)
	}
	if s.LastPersistError() == nil || obs.failures == 0 {
		t.Fatalf("expected recorded persist failure")
	}
	fb.failWrites = false
	s.Set(ctx, counter{Label: "ok"})
	if s.LastPersistError() != nil {
		t.Fatalf("expected error cleared after successful write")
	}
}

func TestSubscribersRunInOrderAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(persistence.NewMemory(), 1)
	var calls []string
	unsubA := s.Subscribe(func(next, prev counter) {
		calls = append(calls, "a:"+prev.Label+"->"+next.Label)
	})
	s.Subscribe(func(next, _ counter) { calls = append(calls, "b:"+next.Label) })

	s.Set(ctx, counter{Label: "one"})
	unsubA()
	unsubA()
	s.Set(ctx, counter{Label: "two"})

	want := []string{"a:init->one", "b:one", "b:two"}
	if len(calls) != len(want) {
		t.Fatalf("unexpected calls %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %s want %s", i, calls[i], want[i])
		}
	}
}

func TestNoopUpdateSkipsPersistAndNotify(t *testing.T) {
	ctx := context.Background()
	fb := &flakyBackend{Backend: persistence.NewMemory()}
	s := newCounterStore(fb, 1)
	s.Hydrate(ctx)
	writes := fb.writes
	notified := false
	s.Subscribe(func(counter, counter) { notified = true })
	if s.Update(ctx, func(c *counter) bool {
		c.Label = "discarded"
		return false
	}) {
		t.Fatalf("expected no transition")
	}
	if fb.writes != writes || notified || s.State().Label != "init" {
		t.Fatalf("no-op update leaked side effects")
	}
}

func TestStateReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(persistence.NewMemory(), 1)
	s.Set(ctx, counter{Values: []int{1}})
	got := s.State()
	got.Values[0] = 99
	if s.State().Values[0] != 1 {
		t.Fatalf("State leaked internal slice")
	}
}

func TestConcurrentUpdatesAreSerialised(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(persistence.NewMemory(), 1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Update(ctx, func(c *counter) bool {
				c.Values = append(c.Values, n)
				return true
			})
		}(i)
	}
	wg.Wait()
	if got := len(s.State().Values); got != 50 {
		t.Fatalf("expected 50 values, got %d", got)
	}
}

func TestListenerReadsDuringConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(persistence.NewMemory(), 1)
	var mu sync.Mutex
	var seen []int
	s.Subscribe(func(next, _ counter) {
		cur := s.State()
		mu.Lock()
		seen = append(seen, len(next.Values))
		mu.Unlock()
		if len(cur.Values) < len(next.Values) {
			t.Errorf("listener read state older than its transition: %d < %d", len(cur.Values), len(next.Values))
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					s.Update(ctx, func(c *counter) bool {
						c.Values = append(c.Values, g*100+i)
						return true
					})
				}
			}(g)
		}
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("concurrent updates with a reading listener did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 200 {
		t.Fatalf("expected 200 notifications, got %d", len(seen))
	}
	for i, n := range seen {
		if n != i+1 {
			t.Fatalf("notification %d carried %d values; deliveries out of order", i, n)
		}
	}
}

func TestValidateRejectsRestoredSnapshot(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewMemory()
	if err := persistence.SaveSnapshot(ctx, b, "telecare:counter", 1, counter{Values: []int{1, -4}, Label: "bad"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	noNegatives := func(c counter) error {
		for _, v := range c.Values {
			if v < 0 {
				return fmt.Errorf("negative value %d", v)
			}
		}
		return nil
	}
	s := newCounterStore(b, 1, WithValidate(noNegatives))
	if outcome := s.Hydrate(ctx); outcome != persistence.OutcomeMalformed {
		t.Fatalf("expected malformed, got %s", outcome)
	}
	if got := s.State(); got.Label != "init" || len(got.Values) != 0 {
		t.Fatalf("expected initial state, got %+v", got)
	}
	healed, outcome, _ := persistence.LoadSnapshot[counter](ctx, b, "telecare:counter", 1)
	if outcome != persistence.OutcomeRestored || healed.Label != "init" {
		t.Fatalf("expected self-healed snapshot, got %s %+v", outcome, healed)
	}

	valid := newCounterStore(b, 1, WithValidate(noNegatives))
	if outcome := valid.Hydrate(ctx); outcome != persistence.OutcomeRestored {
		t.Fatalf("valid snapshot should restore, got %s", outcome)
	}
}

type countingBackend struct {
	persistence.Backend
	mu     sync.Mutex
	writes int
}

func (c *countingBackend) Write(ctx context.Context, key string, payload []byte) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Backend.Write(ctx, key, payload)
}

func TestUpdateTransientNotifiesWithoutWriting(t *testing.T) {
	ctx := context.Background()
	b := &countingBackend{Backend: persistence.NewMemory()}
	obs := &recordingObserver{}
	s := newCounterStore(b, 1, WithObserver[counter](obs))
	s.Hydrate(ctx)
	before := b.writes
	notified := 0
	s.Subscribe(func(next, _ counter) {
		notified++
		if next.Label != "shown" {
			t.Errorf("unexpected label %q", next.Label)
		}
	})
	if !s.UpdateTransient(ctx, func(c *counter) bool {
		c.Label = "shown"
		return true
	}) {
		t.Fatalf("expected a transition")
	}
	if notified != 1 || s.State().Label != "shown" {
		t.Fatalf("expected one notification, got %d", notified)
	}
	if b.writes != before || obs.mutations != 0 {
		t.Fatalf("transient update wrote %d snapshots, counted %d mutations", b.writes-before, obs.mutations)
	}
}
