package blobkv

import (
	"context"
	"errors"
	"testing"

	"telecare/internal/blob"
	"telecare/internal/persistence/core"
)

func exerciseBackend(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Write(ctx, "telecare:cart", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "telecare:cart", []byte(`{"version":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Write(ctx, "telecare:payment-orders:s1", []byte(`{}`)); err != nil {
		t.Fatalf("write scoped: %v", err)
	}
	got, err := s.Read(ctx, "telecare:cart")
	if err != nil || string(got) != `{"version":2}` {
		t.Fatalf("read: %q %v", got, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "telecare:cart" || keys[1] != "telecare:payment-orders:s1" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if err := s.Remove(ctx, "telecare:cart"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "telecare:cart"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if _, err := s.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStoreOverMemoryBlobs(t *testing.T) {
	s, err := NewStore(blob.NewMemory(), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exerciseBackend(t, s)
	if s.Driver() != core.DriverBlob {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}

func TestStoreOverMockS3(t *testing.T) {
	s, err := NewStore(blob.NewMockS3ForTests(), "/state/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exerciseBackend(t, s)
}

func TestStoreOverFilesystem(t *testing.T) {
	blobs, err := blob.Open(context.Background(), blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	s, err := NewStore(blobs, "state")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exerciseBackend(t, s)
}

func TestNewStoreRequiresBlobs(t *testing.T) {
	if _, err := NewStore(nil, ""); err == nil {
		t.Fatalf("expected error for nil blob store")
	}
}
