package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the versioned wrapper written under every store key.
type Envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
	SavedAt time.Time       `json:"savedAt"`
}

// LoadOutcome classifies the result of reading a snapshot.
type LoadOutcome string

const (
	OutcomeRestored        LoadOutcome = "restored"
	OutcomeMissing         LoadOutcome = "missing"
	OutcomeMalformed       LoadOutcome = "malformed"
	OutcomeVersionMismatch LoadOutcome = "version_mismatch"
	OutcomeUnavailable     LoadOutcome = "unavailable"
)

// Recoverable reports whether the stored value should be replaced by a fresh
// initial snapshot. An unavailable backend is not recoverable: its content is
// unknown and must not be overwritten.
func (o LoadOutcome) Recoverable() bool {
	switch o {
	case OutcomeMissing, OutcomeMalformed, OutcomeVersionMismatch:
		return true
	}
	return false
}

var timeNow = time.Now

// SaveSnapshot encodes state in an Envelope and writes it under key.
func SaveSnapshot(ctx context.Context, b Backend, key string, version int, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", key, err)
	}
	payload, err := json.Marshal(Envelope{Version: version, State: raw, SavedAt: timeNow().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", key, err)
	}
	return b.Write(ctx, key, payload)
}

// LoadSnapshot reads key and decodes its state when the stored version
// matches. The error is non-nil for every outcome except restored and missing.
func LoadSnapshot[T any](ctx context.Context, b Backend, key string, version int) (T, LoadOutcome, error) {
	var zero T
	payload, err := b.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return zero, OutcomeMissing, nil
	}
	if err != nil {
		return zero, OutcomeUnavailable, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return zero, OutcomeMalformed, fmt.Errorf("decode %s envelope: %w", key, err)
	}
	if env.Version != version {
		return zero, OutcomeVersionMismatch, fmt.Errorf("%s: stored version %d, want %d", key, env.Version, version)
	}
	if len(env.State) == 0 {
		return zero, OutcomeMalformed, fmt.Errorf("%s: empty state", key)
	}
	var state T
	if err := json.Unmarshal(env.State, &state); err != nil {
		return zero, OutcomeMalformed, fmt.Errorf("decode %s state: %w", key, err)
	}
	return state, OutcomeRestored, nil
}

// Header describes a stored snapshot without decoding its state.
type Header struct {
	Key     string    `json:"key"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Size    int       `json:"size"`
}

// Inspect reads the envelope header stored under key.
func Inspect(ctx context.Context, b Backend, key string) (Header, error) {
	payload, err := b.Read(ctx, key)
	if err != nil {
		return Header{}, err
	}
	var env struct {
		Version int       `json:"version"`
		SavedAt time.Time `json:"savedAt"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return Header{}, fmt.Errorf("decode %s envelope: %w", key, err)
	}
	return Header{Key: key, Version: env.Version, SavedAt: env.SavedAt, Size: len(payload)}, nil
}
