// Package keys is the registry of persisted store keys. Names and versions
// are stable across releases; bumping a version discards older snapshots on
// the next hydration.
package keys

import "strings"

// DefaultNamespace prefixes every storage key.
const DefaultNamespace = "telecare"

// Key describes one persisted store.
type Key struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	// Owner is the import path of the only package allowed to write the key.
	Owner string `json:"owner"`
	// Scoped keys are suffixed with a scope such as a session id.
	Scoped bool `json:"scoped"`
}

var (
	Cart            = Key{Name: "cart", Version: 1, Owner: "telecare/internal/cart"}
	PaymentOrders   = Key{Name: "payment-orders", Version: 1, Owner: "telecare/internal/payment", Scoped: true}
	ContentArticles = Key{Name: "content-articles", Version: 1, Owner: "telecare/internal/content"}
	Theme           = Key{Name: "theme", Version: 1, Owner: "telecare/internal/prefs"}
	SeedMarker      = Key{Name: "seed-marker", Version: 1, Owner: "telecare/internal/seed"}
	ClinicalCache   = Key{Name: "clinical-cache", Version: 1, Owner: "telecare/internal/clinical"}
)

// All returns every registered key.
func All() []Key {
	return []Key{Cart, PaymentOrders, ContentArticles, Theme, SeedMarker, ClinicalCache}
}

// Storage renders the backend key, e.g. "telecare:cart".
func (k Key) Storage(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":" + k.Name
}

// ScopedStorage renders a scoped backend key, e.g. "telecare:payment-orders:s1".
// An empty scope renders the unscoped form.
func (k Key) ScopedStorage(namespace, scope string) string {
	if scope == "" {
		return k.Storage(namespace)
	}
	return k.Storage(namespace) + ":" + scope
}

// Lookup resolves a backend key to its registry entry and scope.
func Lookup(namespace, storageKey string) (Key, string, bool) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	rest, ok := strings.CutPrefix(storageKey, namespace+":")
	if !ok {
		return Key{}, "", false
	}
	name, scope, _ := strings.Cut(rest, ":")
	for _, k := range All() {
		if k.Name != name {
			continue
		}
		if scope != "" && !k.Scoped {
			return Key{}, "", false
		}
		return k, scope, true
	}
	return Key{}, "", false
}
