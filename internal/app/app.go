// Package app assembles the stores, backend client, realtime bridge and HTTP
// API from a Config. Every instance is owned by the App; nothing is global.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"telecare/internal/backend"
	"telecare/internal/cart"
	"telecare/internal/checkout"
	"telecare/internal/clinical"
	"telecare/internal/config"
	"telecare/internal/content"
	"telecare/internal/observability"
	"telecare/internal/payment"
	"telecare/internal/persistence"
	"telecare/internal/prefs"
	"telecare/internal/realtime"
	"telecare/internal/realtime/pgnotify"
	"telecare/internal/seed"
	httptransport "telecare/internal/transport/http"
)

const defaultShutdownTimeout = 10 * time.Second

// App is a running telecare instance.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	Metrics *observability.Metrics
	Storage persistence.Backend
	Backend *backend.Client

	Cart     *cart.Cart
	Payments *payment.Store
	Content  *content.Store
	Clinical *clinical.Cache
	Prefs    *prefs.Store
	Checkout *checkout.Service
	Seeds    *seed.Applier

	Inbox  *realtime.Inbox
	Events *realtime.Broadcaster
	Bridge *realtime.Bridge
	feed   realtime.Subscription

	Handler http.Handler
}

// New wires every component and starts the realtime bridge. Callers must
// Close the App.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, Metrics: observability.NewMetrics()}

	storage, err := persistence.Open(ctx, cfg.Persistence())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Storage = storage
	logger.Info("storage opened", "driver", storage.Driver())

	if cfg.Backend.URL != "" {
		client, err := backend.New(backend.Config{
			BaseURL:  cfg.Backend.URL,
			APIKey:   cfg.Backend.APIKey,
			Timeout:  cfg.Backend.Timeout,
			Recorder: a.Metrics,
			Logger:   logger,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Backend = client
	} else {
		logger.Warn("no backend configured; checkout and passthrough routes are disabled")
	}

	cartOpts := []cart.Option{
		cart.WithNamespace(cfg.Namespace),
		cart.WithLogger(logger),
		cart.WithObserver(a.Metrics),
	}
	if a.Backend != nil {
		cartOpts = append(cartOpts, cart.WithCatalog(a.Backend))
	}
	a.Cart = cart.New(storage, cartOpts...)
	a.Payments = payment.New(storage, cfg.SessionID,
		payment.WithNamespace(cfg.Namespace),
		payment.WithLogger(logger),
		payment.WithObserver(a.Metrics),
	)
	a.Content = content.New(storage,
		content.WithNamespace(cfg.Namespace),
		content.WithLogger(logger),
		content.WithObserver(a.Metrics),
	)
	a.Clinical = clinical.New(storage,
		clinical.WithNamespace(cfg.Namespace),
		clinical.WithLogger(logger),
		clinical.WithObserver(a.Metrics),
	)
	a.Prefs = prefs.New(storage, cfg.Namespace, logger, a.Metrics)
	a.Seeds = seed.NewApplier(storage, cfg.Namespace, a.Content, a.Prefs, logger)
	if a.Backend != nil {
		a.Checkout = checkout.NewService(a.Cart, a.Payments, a.Backend, logger)
	}

	a.hydrate(ctx)

	if cfg.SeedFile != "" {
		res, err := a.Seeds.ApplyFile(ctx, cfg.SeedFile)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		logger.Info("seed checked", "applied", res.Applied, "version", res.Version, "articles", res.Articles)
	}

	a.Inbox = realtime.NewInbox(0)
	a.Events = realtime.NewBroadcaster()
	a.Bridge = realtime.NewBridge(a.Events, a.Clinical,
		realtime.WithNotifier(a.Inbox),
		realtime.WithBridgeLogger(logger),
		realtime.WithRecorder(a.Metrics),
	)
	if err := a.Bridge.Start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if cfg.Realtime.Driver == "postgres" {
		if err := a.listenPostgres(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	deps := httptransport.Deps{
		Cart:     a.Cart,
		Payments: a.Payments,
		Content:  a.Content,
		Clinical: a.Clinical,
		Prefs:    a.Prefs,
		Inbox:    a.Inbox,
		Events:   a.Events,
		Metrics:  a.Metrics,
		Logger:   logger,
	}
	if a.Backend != nil {
		deps.Backend = a.Backend
		deps.Checkout = a.Checkout
	}
	a.Handler = httptransport.NewRouter(deps)
	return a, nil
}

// hydrate restores every store eagerly so outcomes are logged at startup.
func (a *App) hydrate(ctx context.Context) {
	outcomes := map[string]persistence.LoadOutcome{
		"cart":     a.Cart.Hydrate(ctx),
		"payments": a.Payments.Hydrate(ctx),
		"content":  a.Content.Hydrate(ctx),
		"clinical": a.Clinical.Hydrate(ctx),
	}
	for name, outcome := range outcomes {
		a.logger.Debug("store hydrated", "store", name, "outcome", outcome)
	}
}

// listenPostgres forwards LISTEN/NOTIFY change events into the in-process
// broadcaster the bridge is subscribed to.
func (a *App) listenPostgres(ctx context.Context) error {
	src, err := pgnotify.New(pgnotify.Config{
		DSN:     a.cfg.Realtime.PostgresDSN,
		Channel: a.cfg.Realtime.Channel,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	sub, err := src.Subscribe(ctx,
		[]realtime.Table{realtime.TablePrescriptions, realtime.TableClinicalOrders},
		func(ev realtime.Event) { a.Events.Publish(ev) },
	)
	if err != nil {
		return fmt.Errorf("realtime listen: %w", err)
	}
	a.feed = sub
	a.logger.Info("listening for database changes", "channel", src.Channel())
	return nil
}

// Serve runs the HTTP API on l until ctx is cancelled, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:      a.Handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(a.logger.Handler(), slog.LevelError),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	a.logger.Info("http server listening", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, l)
}

// Close stops the realtime feed and bridge, then closes storage.
func (a *App) Close() error {
	var errs []error
	if a.feed != nil {
		errs = append(errs, a.feed.Close())
		a.feed = nil
	}
	if a.Bridge != nil {
		errs = append(errs, a.Bridge.Stop())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
		a.Storage = nil
	}
	return errors.Join(errs...)
}
