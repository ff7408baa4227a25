// Package store provides the persistent state container used by every
// client-side store: an in-memory value with versioned snapshot hydration,
// synchronous best-effort persistence and ordered change notification.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"telecare/internal/persistence"
)

// Observer receives store lifecycle counts. *observability.Metrics satisfies it.
type Observer interface {
	StoreMutated(key string)
	StorePersistFailed(key string)
	StoreHydrated(key, outcome string)
}

type noopObserver struct{}

func (noopObserver) StoreMutated(string)          {}
func (noopObserver) StorePersistFailed(string)    {}
func (noopObserver) StoreHydrated(string, string) {}

// Listener is invoked after every transition with the new and previous state.
type Listener[T any] func(next, prev T)

type subscription[T any] struct {
	id uint64
	fn Listener[T]
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithLogger sets the logger used for swallowed persistence failures.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *Store[T]) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver[T any](o Observer) Option[T] {
	return func(s *Store[T]) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClone sets the deep-copy function applied to values handed out by the
// store. State types holding slices or maps must provide one.
func WithClone[T any](fn func(T) T) Option[T] {
	return func(s *Store[T]) {
		if fn != nil {
			s.clone = fn
		}
	}
}

// WithValidate sets a check applied to restored snapshots. A snapshot that
// fails it is treated as malformed and replaced by the initial state.
func WithValidate[T any](fn func(T) error) Option[T] {
	return func(s *Store[T]) { s.validate = fn }
}

// WithPersistTimeout bounds each snapshot write. Zero means no bound.
func WithPersistTimeout[T any](d time.Duration) Option[T] {
	return func(s *Store[T]) { s.persistTimeout = d }
}

// Store holds a value of type T persisted under a single backend key.
//
// Mutations are serialised. Each transition is written to the backend before
// the mutating call returns, then listeners run synchronously in subscription
// order. Transitions are numbered under the state lock and delivered in that
// order without holding it, so listeners may read any store. Listeners must
// not synchronously mutate the store that notified them.
type Store[T any] struct {
	backend persistence.Backend
	key     string
	version int
	initial T

	clone          func(T) T
	validate       func(T) error
	logger         *slog.Logger
	observer       Observer
	persistTimeout time.Duration

	mu       sync.Mutex
	state    T
	hydrated bool
	outcome  persistence.LoadOutcome
	lastErr  error
	seq      uint64

	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitted  uint64

	subsMu sync.Mutex
	subs   []subscription[T]
	nextID uint64
}

// New returns a store for key. The backend is not read until Hydrate or the
// first access.
func New[T any](backend persistence.Backend, key string, version int, initial T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		backend:  backend,
		key:      key,
		version:  version,
		initial:  initial,
		clone:    func(v T) T { return v },
		logger:   slog.Default(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.clone(initial)
	s.emitCond = sync.NewCond(&s.emitMu)
	return s
}

// Key returns the backend key.
func (s *Store[T]) Key() string { return s.key }

// Version returns the snapshot schema version.
func (s *Store[T]) Version() int { return s.version }

// Hydrate loads the persisted snapshot once. Missing, malformed or
// version-mismatched snapshots are replaced by the initial state, which is
// persisted immediately. When the backend cannot be read the initial state is
// used in memory and the stored value is left untouched. Later calls return
// the first outcome.
func (s *Store[T]) Hydrate(ctx context.Context) persistence.LoadOutcome {
	s.mu.Lock()
	if s.hydrated {
		outcome := s.outcome
		s.mu.Unlock()
		return outcome
	}
	prev := s.state
	loaded, outcome, err := persistence.LoadSnapshot[T](ctx, s.backend, s.key, s.version)
	if outcome == persistence.OutcomeRestored && s.validate != nil {
		if verr := s.validate(loaded); verr != nil {
			outcome, err = persistence.OutcomeMalformed, fmt.Errorf("%s: invalid snapshot: %w", s.key, verr)
		}
	}
	s.hydrated = true
	s.outcome = outcome
	s.observer.StoreHydrated(s.key, string(outcome))
	if outcome == persistence.OutcomeRestored {
		s.state = loaded
		s.logger.Debug("store hydrated", "key", s.key, "version", s.version)
		seq, next, before := s.nextTransition(loaded, prev)
		s.mu.Unlock()
		s.emit(seq, next, before)
		return outcome
	}
	s.state = s.clone(s.initial)
	if err != nil {
		s.logger.Warn("store snapshot discarded", "key", s.key, "outcome", outcome, "error", err)
	}
	if outcome.Recoverable() {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
	return outcome
}

func (s *Store[T]) ensureHydrated(ctx context.Context) {
	s.mu.Lock()
	done := s.hydrated
	s.mu.Unlock()
	if !done {
		s.Hydrate(ctx)
	}
}

// State returns a copy of the current state.
func (s *Store[T]) State() T {
	s.ensureHydrated(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.state)
}

// Set replaces the state.
func (s *Store[T]) Set(ctx context.Context, next T) {
	s.Update(ctx, func(cur *T) bool {
		*cur = next
		return true
	})
}

// Update applies fn to a copy of the state. When fn returns false nothing is
// persisted or notified. Update reports whether a transition happened.
func (s *Store[T]) Update(ctx context.Context, fn func(*T) bool) bool {
	return s.update(ctx, fn, true)
}

// UpdateTransient is Update without the snapshot write. It is meant for
// fields excluded from the persisted form, such as UI flags.
func (s *Store[T]) UpdateTransient(ctx context.Context, fn func(*T) bool) bool {
	return s.update(ctx, fn, false)
}

func (s *Store[T]) update(ctx context.Context, fn func(*T) bool, persist bool) bool {
	s.ensureHydrated(ctx)
	s.mu.Lock()
	prev := s.state
	work := s.clone(prev)
	if !fn(&work) {
		s.mu.Unlock()
		return false
	}
	s.state = work
	if persist {
		s.observer.StoreMutated(s.key)
		s.persistLocked(ctx)
	}
	seq, next, before := s.nextTransition(work, prev)
	s.mu.Unlock()
	s.emit(seq, next, before)
	return true
}

// nextTransition numbers a transition. Callers hold mu.
func (s *Store[T]) nextTransition(next, prev T) (uint64, T, T) {
	s.seq++
	return s.seq, s.clone(next), s.clone(prev)
}

// emit waits for every earlier transition to be delivered, then notifies.
// mu is not held here.
func (s *Store[T]) emit(seq uint64, next, prev T) {
	s.emitMu.Lock()
	for s.emitted != seq-1 {
		s.emitCond.Wait()
	}
	s.emitMu.Unlock()
	defer func() {
		s.emitMu.Lock()
		s.emitted = seq
		s.emitCond.Broadcast()
		s.emitMu.Unlock()
	}()
	s.notify(next, prev)
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (s *Store[T]) Subscribe(fn Listener[T]) func() {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	s.subsMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// LastPersistError returns the most recent write error, or nil once a write
// succeeds again.
func (s *Store[T]) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store[T]) persistLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
	}
	err := persistence.SaveSnapshot(ctx, s.backend, s.key, s.version, s.state)
	s.lastErr = err
	if err != nil {
		s.observer.StorePersistFailed(s.key)
		s.logger.Warn("store persist failed; keeping in-memory state", "key", s.key, "error", err)
	}
}

func (s *Store[T]) notify(next, prev T) {
	s.subsMu.Lock()
	subs := append([]subscription[T](nil), s.subs...)
	s.subsMu.Unlock()
	for i, sub := range subs {
		if i == 0 {
			sub.fn(next, prev)
			continue
		}
		sub.fn(s.clone(next), s.clone(prev))
	}
}
