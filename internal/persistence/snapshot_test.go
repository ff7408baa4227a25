package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"telecare/internal/blob"
)

type sample struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	in := sample{Items: []string{"a", "b"}, Count: 2}
	if err := SaveSnapshot(ctx, b, "telecare:sample", 3, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, outcome, err := LoadSnapshot[sample](ctx, b, "telecare:sample", 3)
	if err != nil || outcome != OutcomeRestored {
		t.Fatalf("load: %v %v", outcome, err)
	}
	if out.Count != 2 || len(out.Items) != 2 || out.Items[1] != "b" {
		t.Fatalf("unexpected state %+v", out)
	}
	h, err := Inspect(ctx, b, "telecare:sample")
	if err != nil || h.Version != 3 || h.SavedAt.IsZero() || h.Size == 0 {
		t.Fatalf("inspect: %+v %v", h, err)
	}
}

func TestLoadSnapshotOutcomes(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	if _, outcome, err := LoadSnapshot[sample](ctx, b, "absent", 1); outcome != OutcomeMissing || err != nil {
		t.Fatalf("missing: %v %v", outcome, err)
	}
	_ = b.Write(ctx, "garbage", []byte("{not json"))
	if _, outcome, err := LoadSnapshot[sample](ctx, b, "garbage", 1); outcome != OutcomeMalformed || err == nil {
		t.Fatalf("malformed: %v %v", outcome, err)
	}
	_ = b.Write(ctx, "badstate", []byte(`{"version":1,"state":"nope"}`))
	if _, outcome, _ := LoadSnapshot[sample](ctx, b, "badstate", 1); outcome != OutcomeMalformed {
		t.Fatalf("expected malformed state, got %v", outcome)
	}
	_ = b.Write(ctx, "nostate", []byte(`{"version":1}`))
	if _, outcome, _ := LoadSnapshot[sample](ctx, b, "nostate", 1); outcome != OutcomeMalformed {
		t.Fatalf("expected malformed for missing state, got %v", outcome)
	}
	if err := SaveSnapshot(ctx, b, "old", 1, sample{Count: 9}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, outcome, err := LoadSnapshot[sample](ctx, b, "old", 2); outcome != OutcomeVersionMismatch || err == nil {
		t.Fatalf("version mismatch: %v %v", outcome, err)
	}
	if !OutcomeMissing.Recoverable() || !OutcomeVersionMismatch.Recoverable() || OutcomeUnavailable.Recoverable() || OutcomeRestored.Recoverable() {
		t.Fatalf("unexpected recoverable classification")
	}
}

type brokenBackend struct{ Backend }

func (brokenBackend) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func TestLoadSnapshotUnavailable(t *testing.T) {
	_, outcome, err := LoadSnapshot[sample](context.Background(), brokenBackend{NewMemory()}, "k", 1)
	if outcome != OutcomeUnavailable || err == nil {
		t.Fatalf("expected unavailable, got %v %v", outcome, err)
	}
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []Config{
		{Driver: DriverMemory},
		{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "state.db")},
		{Driver: DriverBlob, Blob: blob.Config{Driver: blob.DriverMemory}},
	}
	for _, cfg := range cases {
		b, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		if b.Driver() != cfg.Driver {
			t.Fatalf("driver mismatch: %s vs %s", b.Driver(), cfg.Driver)
		}
		if err := SaveSnapshot(ctx, b, "telecare:sample", 1, sample{Count: 1}); err != nil {
			t.Fatalf("save via %s: %v", cfg.Driver, err)
		}
		if _, outcome, err := LoadSnapshot[sample](ctx, b, "telecare:sample", 1); outcome != OutcomeRestored {
			t.Fatalf("load via %s: %v %v", cfg.Driver, outcome, err)
		}
		_ = b.Close()
	}
	if _, err := Open(ctx, Config{Driver: "redis"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
