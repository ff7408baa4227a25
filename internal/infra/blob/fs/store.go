// Package fs stores objects as files under a root directory.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"telecare/internal/blob/core"
)

const (
	attrSuffix = ".attrs.json"
	tempPrefix = ".tmp-"
)

// Store keeps each object in its own file with a JSON sidecar holding the
// content type, metadata and ETag. Both files are replaced by rename.
type Store struct {
	root string
}

type attrs struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// New returns a store rooted at root, creating the directory.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fs blob store: root required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("fs blob store: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) paths(key string) (string, string, error) {
	clean, err := core.CheckKey(key)
	if err != nil {
		return "", "", err
	}
	base := filepath.Base(clean)
	if strings.HasSuffix(clean, attrSuffix) || strings.HasPrefix(base, tempPrefix) {
		return "", "", fmt.Errorf("%w: reserved name %q", core.ErrBadKey, key)
	}
	data := filepath.Join(s.root, filepath.FromSlash(clean))
	return data, data + attrSuffix, nil
}

func (s *Store) Put(_ context.Context, key string, body []byte, opts core.PutOptions) (core.Object, error) {
	dataPath, attrPath, err := s.paths(key)
	if err != nil {
		return core.Object{}, err
	}
	if err := core.CheckSize(key, len(body)); err != nil {
		return core.Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return core.Object{}, err
	}
	a := attrs{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        core.ETag(body),
		UpdatedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(a)
	if err != nil {
		return core.Object{}, err
	}
	if err := replaceFile(dataPath, body); err != nil {
		return core.Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	if err := replaceFile(attrPath, encoded); err != nil {
		return core.Object{}, fmt.Errorf("put %s attrs: %w", key, err)
	}
	return a.object(key, int64(len(body))), nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, core.Object, error) {
	dataPath, attrPath, err := s.paths(key)
	if err != nil {
		return nil, core.Object{}, err
	}
	body, err := os.ReadFile(dataPath) // #nosec G304 -- key checked and joined under root
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, core.Object{}, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Object{}, err
	}
	a, err := readAttrs(attrPath, dataPath, body)
	if err != nil {
		return nil, core.Object{}, err
	}
	return body, a.object(key, int64(len(body))), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, attrPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := os.Remove(attrPath); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return true, err
	}
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	var out []core.Object
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, attrSuffix) || strings.HasPrefix(name, tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		a, err := readAttrs(p+attrSuffix, p, nil)
		if err != nil {
			return err
		}
		out = append(out, a.object(key, info.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (a attrs) object(key string, size int64) core.Object {
	return core.Object{
		Key:         key,
		Size:        size,
		ContentType: a.ContentType,
		ETag:        a.ETag,
		Metadata:    core.CloneMetadata(a.Metadata),
		UpdatedAt:   a.UpdatedAt,
	}
}

// readAttrs loads the sidecar. Files written by other tools have none; their
// attributes are derived from the data file.
func readAttrs(attrPath, dataPath string, body []byte) (attrs, error) {
	raw, err := os.ReadFile(attrPath) // #nosec G304 -- derived from a checked key
	if err == nil {
		var a attrs
		if err := json.Unmarshal(raw, &a); err != nil {
			return attrs{}, fmt.Errorf("decode %s: %w", attrPath, err)
		}
		return a, nil
	}
	if !errors.Is(err, iofs.ErrNotExist) {
		return attrs{}, err
	}
	st, err := os.Stat(dataPath)
	if err != nil {
		return attrs{}, err
	}
	a := attrs{UpdatedAt: st.ModTime().UTC()}
	if body != nil {
		a.ETag = core.ETag(body)
	}
	return a, nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
