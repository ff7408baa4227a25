// Package cart implements the shopping cart store: product lines keyed by
// slug, derived totals, a cached unit price per slug and the idempotency key
// that ties repeated checkout attempts to one order.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/store"
	"telecare/pkg/domain"
)

// ErrEmptyCart is returned when a checkout is attempted without lines.
var ErrEmptyCart = errors.New("cart: empty")

// MaxQuantity caps a single line. Adds or sets that would exceed it are no-ops.
const MaxQuantity = 9999

// State is the persisted cart snapshot.
type State struct {
	Items []domain.CartItem `json:"items"`
	// Prices caches unit prices by slug, refreshed by Load.
	Prices      map[string]int64 `json:"prices,omitempty"`
	CheckoutKey string           `json:"checkoutKey,omitempty"`
	// Open is the drawer visibility flag. It is never persisted.
	Open bool `json:"-"`
}

func cloneState(s State) State {
	out := s
	out.Items = append([]domain.CartItem(nil), s.Items...)
	if s.Prices != nil {
		out.Prices = make(map[string]int64, len(s.Prices))
		for k, v := range s.Prices {
			out.Prices[k] = v
		}
	}
	return out
}

// Validate checks the line invariants: valid lines, unique slugs and
// quantities within MaxQuantity.
func (s State) Validate() error {
	seen := make(map[string]bool, len(s.Items))
	for _, it := range s.Items {
		if err := it.Validate(); err != nil {
			return err
		}
		if it.Quantity > MaxQuantity {
			return fmt.Errorf("cart: %s quantity %d exceeds %d", it.ProductSlug, it.Quantity, MaxQuantity)
		}
		if seen[it.ProductSlug] {
			return fmt.Errorf("cart: duplicate line %s", it.ProductSlug)
		}
		seen[it.ProductSlug] = true
	}
	return nil
}

func (s State) index(slug string) int {
	for i, it := range s.Items {
		if it.ProductSlug == slug {
			return i
		}
	}
	return -1
}

// Catalog resolves products for price refreshes.
type Catalog interface {
	FetchProduct(ctx context.Context, slug string) (domain.Product, error)
}

type options struct {
	namespace string
	logger    *slog.Logger
	observer  store.Observer
	catalog   Catalog
	newKey    func() string
}

// Option configures a Cart.
type Option func(*options)

// WithNamespace sets the storage key namespace.
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithObserver sets the store metrics observer.
func WithObserver(obs store.Observer) Option { return func(o *options) { o.observer = obs } }

// WithCatalog enables price refreshes in Load.
func WithCatalog(c Catalog) Option { return func(o *options) { o.catalog = c } }

// Cart is the cart store.
type Cart struct {
	store   *store.Store[State]
	catalog Catalog
	logger  *slog.Logger
	newKey  func() string
	loads   singleflight.Group
}

// New builds a cart persisted in backend.
func New(backend persistence.Backend, opts ...Option) *Cart {
	o := options{logger: slog.Default(), newKey: func() string { return uuid.NewString() }}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	st := store.New(backend, keys.Cart.Storage(o.namespace), keys.Cart.Version, State{Items: []domain.CartItem{}},
		store.WithClone(cloneState),
		store.WithValidate(State.Validate),
		store.WithLogger[State](o.logger),
		store.WithObserver[State](o.observer),
	)
	return &Cart{store: st, catalog: o.catalog, logger: o.logger, newKey: o.newKey}
}

// AddItem increments the line for slug or appends a new one. A non-positive
// quantity, an empty slug or a resulting line above MaxQuantity is a no-op.
func (c *Cart) AddItem(ctx context.Context, slug string, qty int) bool {
	slug = strings.TrimSpace(slug)
	if slug == "" || qty <= 0 || qty > MaxQuantity {
		return false
	}
	return c.store.Update(ctx, func(s *State) bool {
		if i := s.index(slug); i >= 0 {
			if s.Items[i].Quantity > MaxQuantity-qty {
				return false
			}
			s.Items[i].Quantity += qty
		} else {
			s.Items = append(s.Items, domain.CartItem{ProductSlug: slug, Quantity: qty})
		}
		s.CheckoutKey = ""
		return true
	})
}

// RemoveItem deletes the line for slug. Removing an absent slug is a no-op.
func (c *Cart) RemoveItem(ctx context.Context, slug string) bool {
	return c.store.Update(ctx, func(s *State) bool {
		i := s.index(slug)
		if i < 0 {
			return false
		}
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
		delete(s.Prices, slug)
		s.CheckoutKey = ""
		return true
	})
}

// SetQuantity sets the quantity of an existing line. qty <= 0 removes it.
// Setting a quantity for a slug not in the cart adds it. A quantity above
// MaxQuantity is a no-op.
func (c *Cart) SetQuantity(ctx context.Context, slug string, qty int) bool {
	if qty <= 0 {
		return c.RemoveItem(ctx, slug)
	}
	slug = strings.TrimSpace(slug)
	if slug == "" || qty > MaxQuantity {
		return false
	}
	return c.store.Update(ctx, func(s *State) bool {
		i := s.index(slug)
		switch {
		case i < 0:
			s.Items = append(s.Items, domain.CartItem{ProductSlug: slug, Quantity: qty})
		case s.Items[i].Quantity == qty:
			return false
		default:
			s.Items[i].Quantity = qty
		}
		s.CheckoutKey = ""
		return true
	})
}

// Clear empties the cart and forgets the checkout key.
func (c *Cart) Clear(ctx context.Context) bool {
	return c.store.Update(ctx, func(s *State) bool {
		if len(s.Items) == 0 && s.CheckoutKey == "" && len(s.Prices) == 0 {
			return false
		}
		s.Items = []domain.CartItem{}
		s.Prices = nil
		s.CheckoutKey = ""
		return true
	})
}

// ClearCheckedOut clears the cart only when token is still its checkout key,
// i.e. the lines were not edited while the order was being placed.
func (c *Cart) ClearCheckedOut(ctx context.Context, token string) bool {
	return c.store.Update(ctx, func(s *State) bool {
		if token == "" || s.CheckoutKey != token {
			return false
		}
		s.Items = []domain.CartItem{}
		s.Prices = nil
		s.CheckoutKey = ""
		return true
	})
}

// Toggle flips the drawer visibility flag. The flag is never persisted, so
// toggling notifies subscribers without a snapshot write.
func (c *Cart) Toggle(ctx context.Context) bool {
	return c.store.UpdateTransient(ctx, func(s *State) bool {
		s.Open = !s.Open
		return true
	})
}

// SetOpen sets the drawer visibility flag.
func (c *Cart) SetOpen(ctx context.Context, open bool) bool {
	return c.store.UpdateTransient(ctx, func(s *State) bool {
		if s.Open == open {
			return false
		}
		s.Open = open
		return true
	})
}

// BeginCheckout returns the lines to submit together with their idempotency
// key. Both are read in one transition so the key always covers exactly the
// returned lines. The key is created and persisted on first use and reused
// until the lines change. An empty cart returns ErrEmptyCart.
func (c *Cart) BeginCheckout(ctx context.Context) ([]domain.CartItem, string, error) {
	var (
		lines []domain.CartItem
		token string
	)
	c.store.Update(ctx, func(s *State) bool {
		if len(s.Items) == 0 {
			return false
		}
		lines = append([]domain.CartItem(nil), s.Items...)
		if s.CheckoutKey != "" {
			token = s.CheckoutKey
			return false
		}
		s.CheckoutKey = c.newKey()
		token = s.CheckoutKey
		return true
	})
	if len(lines) == 0 {
		return nil, "", ErrEmptyCart
	}
	if token == "" {
		return nil, "", fmt.Errorf("cart: checkout key generation failed")
	}
	return lines, token, nil
}

// Load hydrates the cart and refreshes cached prices from the catalog.
// Concurrent calls share one refresh. Results arriving after ctx is done are
// dropped. Lookup failures keep the previous price and are returned joined.
func (c *Cart) Load(ctx context.Context) error {
	c.store.Hydrate(ctx)
	if c.catalog == nil {
		return nil
	}
	_, err, _ := c.loads.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Cart) refresh(ctx context.Context) error {
	items := c.Items()
	prices := make(map[string]int64, len(items))
	var errs []error
	for _, it := range items {
		p, err := c.catalog.FetchProduct(ctx, it.ProductSlug)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", it.ProductSlug, err))
			continue
		}
		prices[it.ProductSlug] = p.PriceCents
	}
	if err := ctx.Err(); err != nil {
		c.logger.Debug("cart refresh dropped", "error", err)
		return err
	}
	if len(prices) > 0 {
		c.store.Update(ctx, func(s *State) bool {
			changed := false
			for slug, cents := range prices {
				if s.index(slug) < 0 {
					continue
				}
				if s.Prices == nil {
					s.Prices = make(map[string]int64)
				}
				if old, ok := s.Prices[slug]; !ok || old != cents {
					s.Prices[slug] = cents
					changed = true
				}
			}
			return changed
		})
	}
	return errors.Join(errs...)
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []domain.CartItem { return c.store.State().Items }

// Snapshot returns the full cart state.
func (c *Cart) Snapshot() State { return c.store.State() }

// TotalQuantity sums all line quantities.
func (c *Cart) TotalQuantity() int { return TotalQuantity(c.store.State()) }

// TotalPriceCents sums quantity times cached unit price. Lines without a
// cached price contribute zero.
func (c *Cart) TotalPriceCents() int64 { return TotalPriceCents(c.store.State()) }

// Subscribe registers a change listener.
func (c *Cart) Subscribe(fn func(next, prev State)) func() { return c.store.Subscribe(fn) }

// Hydrate loads the persisted cart without a price refresh.
func (c *Cart) Hydrate(ctx context.Context) persistence.LoadOutcome { return c.store.Hydrate(ctx) }

// TotalQuantity sums line quantities of s.
func TotalQuantity(s State) int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// TotalPriceCents sums quantity times unit price for s.
func TotalPriceCents(s State) int64 {
	var total int64
	for _, it := range s.Items {
		total += int64(it.Quantity) * s.Prices[it.ProductSlug]
	}
	return total
}
