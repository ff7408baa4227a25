package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setStorageEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TELECARE_STORAGE_DRIVER", "sqlite")
	t.Setenv("TELECARE_STORAGE_SQLITE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("TELECARE_BACKEND_URL", "")
	t.Setenv("TELECARE_LOG_LEVEL", "error")
}

func TestSeedThenListKeys(t *testing.T) {
	setStorageEnv(t)
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	doc := "version: 2\ntheme: light\narticles:\n  - id: a1\n    title: Hydration\n    category: Wellness\n    status: draft\n"
	if err := os.WriteFile(seedPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"telecare", "seed", seedPath}, &out, &errOut); code != 0 {
		t.Fatalf("seed exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "applied seed version 2") {
		t.Fatalf("unexpected seed output %q", out.String())
	}

	out.Reset()
	if code := run([]string{"telecare", "seed", seedPath}, &out, &errOut); code != 0 {
		t.Fatalf("second seed exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "already applied") {
		t.Fatalf("expected idempotent seed, got %q", out.String())
	}

	out.Reset()
	if code := run([]string{"telecare", "keys", "--json"}, &out, &errOut); code != 0 {
		t.Fatalf("keys exit %d: %s", code, errOut.String())
	}
	var rows []keyRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode keys: %v\n%s", err, out.String())
	}
	stores := map[string]keyRow{}
	for _, r := range rows {
		stores[r.Store] = r
	}
	for _, name := range []string{"content-articles", "theme", "seed-marker"} {
		r, ok := stores[name]
		if !ok {
			t.Fatalf("expected %s snapshot in %+v", name, rows)
		}
		if !r.Current || r.Size == 0 {
			t.Fatalf("unexpected row %+v", r)
		}
	}

	out.Reset()
	if code := run([]string{"telecare", "keys"}, &out, &errOut); code != 0 {
		t.Fatalf("keys table exit %d", code)
	}
	if !strings.Contains(out.String(), "telecare:theme") {
		t.Fatalf("expected table row for theme, got %q", out.String())
	}
}

func TestSeedRequiresFile(t *testing.T) {
	setStorageEnv(t)
	var out, errOut bytes.Buffer
	if code := run([]string{"telecare", "seed"}, &out, &errOut); code == 0 {
		t.Fatalf("expected failure without FILE")
	}
}

func TestInvalidConfigFails(t *testing.T) {
	setStorageEnv(t)
	t.Setenv("TELECARE_STORAGE_DRIVER", "etcd")
	var out, errOut bytes.Buffer
	if code := run([]string{"telecare", "keys"}, &out, &errOut); code == 0 {
		t.Fatalf("expected config error")
	}
	if !strings.Contains(errOut.String(), "unknown storage driver") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}
