package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"telecare/internal/persistence/core"
)

func TestStoreAgainstStub(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	ctx := context.Background()
	s, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()
	if !conn.sawCreate() {
		t.Fatalf("expected state table ddl, got %v", conn.execs)
	}
	if _, err := s.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Write(ctx, "telecare:cart", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "telecare:theme", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(ctx, "telecare:cart")
	if err != nil || string(got) != `{"version":1}` {
		t.Fatalf("read: %q %v", got, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil || len(keys) != 2 || keys[0] != "telecare:cart" {
		t.Fatalf("keys: %v %v", keys, err)
	}
	if err := s.Remove(ctx, "telecare:cart"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Read(ctx, "telecare:cart"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if s.Driver() != core.DriverPostgres || s.DB() != db {
		t.Fatalf("unexpected driver or db handle")
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, fmt.Errorf("boom") })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://ignored"); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStoreExecError(t *testing.T) {
	db, conn := newStubDB()
	conn.failExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected ddl error")
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TELECARE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TELECARE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Remove(context.Background(), key) })
	if err := s.Write(ctx, key, []byte(`{"version":3,"state":{"items":[]}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(got), `"version": 3`) && !strings.Contains(string(got), `"version":3`) {
		t.Fatalf("unexpected payload %s", got)
	}
}

// stubConn is a tiny database/sql driver that understands the statements issued by Store.
type stubConn struct {
	mu       sync.Mutex
	execs    []string
	rows     map[string]string
	failExec bool
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{rows: make(map[string]string)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

func (c *stubConn) sawCreate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.execs {
		if strings.Contains(strings.ToUpper(q), "CREATE TABLE") {
			return true
		}
	}
	return false
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "INSERT INTO state"):
		c.rows[args[0].Value.(string)] = args[1].Value.(string)
	case strings.HasPrefix(q, "DELETE FROM state"):
		delete(c.rows, args[0].Value.(string))
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "SELECT payload"):
		payload, ok := c.rows[args[0].Value.(string)]
		if !ok {
			return &stubRows{cols: []string{"payload"}}, nil
		}
		return &stubRows{cols: []string{"payload"}, values: [][]driver.Value{{payload}}}, nil
	case strings.HasPrefix(q, "SELECT bucket"):
		keys := make([]string, 0, len(c.rows))
		for k := range c.rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := &stubRows{cols: []string{"bucket"}}
		for _, k := range keys {
			out.values = append(out.values, []driver.Value{k})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query %q", query)
}

type stubRows struct {
	cols   []string
	values [][]driver.Value
	idx    int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
