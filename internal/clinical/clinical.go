// Package clinical caches prescriptions and clinical orders mirrored from the
// backend. The backend is authoritative: every incoming row replaces the
// cached copy with the same id.
package clinical

import (
	"context"
	"log/slog"
	"sort"

	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/store"
	"telecare/pkg/domain"
)

// State is the persisted cache.
type State struct {
	Prescriptions map[domain.ID]domain.Prescription  `json:"prescriptions"`
	Orders        map[domain.ID]domain.ClinicalOrder `json:"orders"`
}

func emptyState() State {
	return State{
		Prescriptions: map[domain.ID]domain.Prescription{},
		Orders:        map[domain.ID]domain.ClinicalOrder{},
	}
}

func cloneState(s State) State {
	out := State{
		Prescriptions: make(map[domain.ID]domain.Prescription, len(s.Prescriptions)),
		Orders:        make(map[domain.ID]domain.ClinicalOrder, len(s.Orders)),
	}
	for k, v := range s.Prescriptions {
		out.Prescriptions[k] = v
	}
	for k, v := range s.Orders {
		out.Orders[k] = v
	}
	return out
}

type options struct {
	namespace string
	logger    *slog.Logger
	observer  store.Observer
}

// Option configures a Cache.
type Option func(*options)

// WithNamespace sets the storage key namespace.
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithObserver sets the store metrics observer.
func WithObserver(obs store.Observer) Option { return func(o *options) { o.observer = obs } }

// Cache is the read-mostly clinical cache.
type Cache struct {
	store *store.Store[State]
}

// New builds the cache persisted in backend.
func New(backend persistence.Backend, opts ...Option) *Cache {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	st := store.New(backend, keys.ClinicalCache.Storage(o.namespace), keys.ClinicalCache.Version, emptyState(),
		store.WithClone(cloneState),
		store.WithLogger[State](o.logger),
		store.WithObserver[State](o.observer),
	)
	return &Cache{store: st}
}

// UpsertPrescription inserts or replaces a prescription by id. It reports
// whether the cache changed.
func (c *Cache) UpsertPrescription(ctx context.Context, p domain.Prescription) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	return c.store.Update(ctx, func(st *State) bool {
		if cur, ok := st.Prescriptions[p.ID]; ok && cur == p {
			return false
		}
		st.Prescriptions[p.ID] = p
		return true
	}), nil
}

// UpsertOrder inserts or replaces a clinical order by id.
func (c *Cache) UpsertOrder(ctx context.Context, o domain.ClinicalOrder) (bool, error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	return c.store.Update(ctx, func(st *State) bool {
		if cur, ok := st.Orders[o.ID]; ok && cur == o {
			return false
		}
		st.Orders[o.ID] = o
		return true
	}), nil
}

// ReplacePrescriptions swaps every cached prescription of patientID for rows,
// as returned by a direct fetch. Invalid rows and rows for other patients
// are skipped; the number stored is returned.
func (c *Cache) ReplacePrescriptions(ctx context.Context, patientID domain.ID, rows []domain.Prescription) int {
	n := 0
	c.store.Update(ctx, func(st *State) bool {
		changed := false
		for id, p := range st.Prescriptions {
			if p.PatientID == patientID {
				delete(st.Prescriptions, id)
				changed = true
			}
		}
		for _, p := range rows {
			if p.PatientID != patientID || p.Validate() != nil {
				continue
			}
			st.Prescriptions[p.ID] = p
			changed = true
			n++
		}
		return changed
	})
	return n
}

// Prescription returns the cached prescription with id.
func (c *Cache) Prescription(id domain.ID) (domain.Prescription, bool) {
	p, ok := c.store.State().Prescriptions[id]
	return p, ok
}

// Prescriptions returns all cached prescriptions ordered by id, numerically
// for integer ids.
func (c *Cache) Prescriptions() []domain.Prescription {
	st := c.store.State()
	out := make([]domain.Prescription, 0, len(st.Prescriptions))
	for _, p := range st.Prescriptions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// PrescriptionsForPatient returns the cached prescriptions of a patient.
func (c *Cache) PrescriptionsForPatient(patientID domain.ID) []domain.Prescription {
	var out []domain.Prescription
	for _, p := range c.Prescriptions() {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out
}

// Order returns the cached clinical order with id.
func (c *Cache) Order(id domain.ID) (domain.ClinicalOrder, bool) {
	o, ok := c.store.State().Orders[id]
	return o, ok
}

// Orders returns all cached clinical orders ordered by id.
func (c *Cache) Orders() []domain.ClinicalOrder {
	st := c.store.State()
	out := make([]domain.ClinicalOrder, 0, len(st.Orders))
	for _, o := range st.Orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// OrdersForPatient returns the cached clinical orders of a patient.
func (c *Cache) OrdersForPatient(patientID domain.ID) []domain.ClinicalOrder {
	var out []domain.ClinicalOrder
	for _, o := range c.Orders() {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out
}

// Subscribe registers a change listener.
func (c *Cache) Subscribe(fn func(next, prev State)) func() { return c.store.Subscribe(fn) }

// Hydrate loads the persisted cache.
func (c *Cache) Hydrate(ctx context.Context) persistence.LoadOutcome { return c.store.Hydrate(ctx) }
