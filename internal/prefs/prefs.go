// Package prefs stores UI preferences.
package prefs

import (
	"context"
	"fmt"
	"log/slog"

	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/store"
)

// Theme is the colour scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

// State is the persisted preference snapshot.
type State struct {
	Theme Theme `json:"theme"`
}

// Store holds preferences.
type Store struct {
	store *store.Store[State]
}

// New builds the preference store. namespace may be empty.
func New(backend persistence.Backend, namespace string, logger *slog.Logger, obs store.Observer) *Store {
	return &Store{store: store.New(backend, keys.Theme.Storage(namespace), keys.Theme.Version, State{Theme: ThemeSystem},
		store.WithLogger[State](logger),
		store.WithObserver[State](obs),
	)}
}

// Theme returns the current theme.
func (s *Store) Theme() Theme { return s.store.State().Theme }

// SetTheme changes the theme.
func (s *Store) SetTheme(ctx context.Context, t Theme) (bool, error) {
	if _, err := ParseTheme(string(t)); err != nil {
		return false, err
	}
	return s.store.Update(ctx, func(st *State) bool {
		if st.Theme == t {
			return false
		}
		st.Theme = t
		return true
	}), nil
}

// Subscribe registers a change listener.
func (s *Store) Subscribe(fn func(next, prev State)) func() { return s.store.Subscribe(fn) }
