// Package memory is a process-local object store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"telecare/internal/blob/core"
)

type entry struct {
	body []byte
	obj  core.Object
}

// Store keeps objects in a map. Bodies are copied in and out.
type Store struct {
	mu      sync.RWMutex
	objects map[string]entry
	now     func() time.Time
}

// New returns an empty store.
func New() *Store { return &Store{objects: make(map[string]entry), now: time.Now} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Put(_ context.Context, key string, body []byte, opts core.PutOptions) (core.Object, error) {
	key, err := core.CheckKey(key)
	if err != nil {
		return core.Object{}, err
	}
	if err := core.CheckSize(key, len(body)); err != nil {
		return core.Object{}, err
	}
	obj := core.Object{
		Key:         key,
		Size:        int64(len(body)),
		ContentType: opts.ContentType,
		ETag:        core.ETag(body),
		Metadata:    core.CloneMetadata(opts.Metadata),
		UpdatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	s.objects[key] = entry{body: append([]byte(nil), body...), obj: obj}
	s.mu.Unlock()
	return copyObject(obj), nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, core.Object, error) {
	s.mu.RLock()
	e, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, core.Object{}, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), e.body...), copyObject(e.obj), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	out := make([]core.Object, 0, len(s.objects))
	for k, e := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyObject(e.obj))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func copyObject(o core.Object) core.Object {
	o.Metadata = core.CloneMetadata(o.Metadata)
	return o
}
