package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"telecare/internal/persistence/core"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "telecare.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Write(ctx, "telecare:cart", []byte(`{"version":1,"state":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "telecare:cart", []byte(`{"version":2,"state":{}}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Read(ctx, "telecare:cart")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"version":2,"state":{}}` {
		t.Fatalf("unexpected payload %s", got)
	}
	keys, err := reopened.Keys(ctx)
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys: %v %v", keys, err)
	}
	if err := reopened.Remove(ctx, "telecare:cart"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := reopened.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if reopened.Driver() != core.DriverSQLite || reopened.Path() != path {
		t.Fatalf("unexpected driver/path")
	}
}

func TestStoreInMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Write(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, err := s.Read(context.Background(), "k"); err != nil || string(got) != "v" {
		t.Fatalf("read: %q %v", got, err)
	}
}
