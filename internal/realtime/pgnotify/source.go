// Package pgnotify is a realtime.Source backed by Postgres LISTEN/NOTIFY.
// Row triggers publish JSON payloads of the form
//
//	{"table": "prescriptions", "type": "UPDATE", "record": {...}}
//
// on a single channel; the source filters them by table.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"telecare/internal/realtime"
)

// DefaultChannel is the notification channel used when none is configured.
const DefaultChannel = "telecare_changes"

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Config configures a Source.
type Config struct {
	DSN     string
	Channel string
	Logger  *slog.Logger
}

// Source listens on a Postgres channel.
type Source struct {
	dsn     string
	channel string
	logger  *slog.Logger
	connect func(ctx context.Context, dsn string) (listener, error)
	now     func() time.Time
}

// listener is the subset of *pgx.Conn the source needs.
type listener interface {
	Exec(ctx context.Context, sql string, args ...any) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

type pgxListener struct{ conn *pgx.Conn }

func (l pgxListener) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := l.conn.Exec(ctx, sql, args...)
	return err
}

func (l pgxListener) WaitForNotification(ctx context.Context) (string, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (l pgxListener) Close(ctx context.Context) error { return l.conn.Close(ctx) }

func connectPgx(ctx context.Context, dsn string) (listener, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgxListener{conn: conn}, nil
}

// New returns a source for cfg.
func New(cfg Config) (*Source, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgnotify: dsn required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Source{dsn: cfg.DSN, channel: cfg.Channel, logger: cfg.Logger, connect: connectPgx, now: time.Now}, nil
}

// Channel returns the channel listened on.
func (s *Source) Channel() string { return s.channel }

// Subscribe connects, issues LISTEN and delivers matching notifications to h
// from a single goroutine until the subscription is closed. Dropped
// connections are re-established with exponential backoff. The first
// connection must succeed for Subscribe to return without error.
func (s *Source) Subscribe(ctx context.Context, tables []realtime.Table, h realtime.Handler) (realtime.Subscription, error) {
	if h == nil {
		return nil, errors.New("pgnotify: nil handler")
	}
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}
	watch := make(map[realtime.Table]bool, len(tables))
	for _, t := range tables {
		watch[t] = true
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go s.run(runCtx, conn, watch, h, sub.done)
	return sub, nil
}

func (s *Source) listen(ctx context.Context) (listener, error) {
	conn, err := s.connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("pgnotify connect: %w", err)
	}
	if err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("pgnotify listen %s: %w", s.channel, err)
	}
	return conn, nil
}

func (s *Source) run(ctx context.Context, conn listener, watch map[realtime.Table]bool, h realtime.Handler, done chan<- struct{}) {
	defer close(done)
	backoff := minBackoff
	for {
		payload, err := conn.WaitForNotification(ctx)
		if err == nil {
			backoff = minBackoff
			ev, derr := DecodePayload([]byte(payload), s.now())
			if derr != nil {
				s.logger.Warn("pgnotify payload dropped", "error", derr)
				continue
			}
			if watch[ev.Table] {
				h(ev)
			}
			continue
		}
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("pgnotify connection lost", "error", err)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			conn, err = s.listen(ctx)
			if err == nil {
				s.logger.Info("pgnotify reconnected", "channel", s.channel)
				break
			}
			s.logger.Warn("pgnotify reconnect failed", "error", err, "retry_in", backoff)
		}
	}
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

type payload struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// DecodePayload parses a trigger payload into an event.
func DecodePayload(raw []byte, receivedAt time.Time) (realtime.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return realtime.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Table == "" {
		return realtime.Event{}, errors.New("payload without table")
	}
	action, err := realtime.ParseAction(p.Type)
	if err != nil {
		return realtime.Event{}, err
	}
	if len(p.Record) == 0 || string(p.Record) == "null" {
		return realtime.Event{}, errors.New("payload without record")
	}
	return realtime.Event{Table: realtime.Table(p.Table), Action: action, Record: p.Record, ReceivedAt: receivedAt.UTC()}, nil
}

// TriggerSQL returns the DDL for a trigger function that publishes row
// changes of table on channel.
func TriggerSQL(table, channel string) string {
	if channel == "" {
		channel = DefaultChannel
	}
	fn := pgx.Identifier{table + "_notify"}.Sanitize()
	tbl := pgx.Identifier{table}.Sanitize()
	lit := "'" + strings.ReplaceAll(channel, "'", "''") + "'"
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %[1]s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(%[3]s, json_build_object('table', TG_TABLE_NAME, 'type', TG_OP, 'record', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS %[1]s ON %[2]s;
CREATE TRIGGER %[1]s AFTER INSERT OR UPDATE ON %[2]s FOR EACH ROW EXECUTE FUNCTION %[1]s();`, fn, tbl, lit)
}
