// Package seed applies a YAML seed file (demo articles and a default theme)
// once per seed version. The applied version is recorded in the seed marker
// so restarts do not re-import.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"telecare/internal/content"
	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/prefs"
	"telecare/internal/store"
	"telecare/pkg/domain"
)

// File is the seed document.
type File struct {
	Version  int       `yaml:"version"`
	Theme    string    `yaml:"theme"`
	Articles []Article `yaml:"articles"`
}

// Article is a seeded article.
type Article struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Category  string     `yaml:"category"`
	Status    string     `yaml:"status"`
	Author    string     `yaml:"author"`
	Tags      []string   `yaml:"tags"`
	Body      string     `yaml:"body"`
	PublishAt *time.Time `yaml:"publish_at"`
}

// Marker records the last applied seed.
type Marker struct {
	Version   int       `json:"version"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Result summarises an Apply call.
type Result struct {
	Applied  bool `json:"applied"`
	Version  int  `json:"version"`
	Articles int  `json:"articles"`
}

// Parse decodes and checks a seed document.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	if f.Version < 1 {
		return File{}, errors.New("seed: version must be >= 1")
	}
	if f.Theme != "" {
		if _, err := prefs.ParseTheme(f.Theme); err != nil {
			return File{}, fmt.Errorf("seed: %w", err)
		}
	}
	return f, nil
}

// Applier imports seed files into the content and preference stores.
type Applier struct {
	marker  *store.Store[Marker]
	content *content.Store
	prefs   *prefs.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewApplier builds an applier. namespace may be empty.
func NewApplier(backend persistence.Backend, namespace string, c *content.Store, p *prefs.Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		marker:  store.New(backend, keys.SeedMarker.Storage(namespace), keys.SeedMarker.Version, Marker{}, store.WithLogger[Marker](logger)),
		content: c,
		prefs:   p,
		logger:  logger,
		now:     time.Now,
	}
}

// Marker returns the applied-seed marker.
func (a *Applier) Marker() Marker { return a.marker.State() }

// ApplyFile reads and applies the seed at path.
func (a *Applier) ApplyFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied seed path
	if err != nil {
		return Result{}, fmt.Errorf("read seed: %w", err)
	}
	return a.Apply(ctx, data)
}

// Apply imports data unless a seed of the same or a newer version was
// already applied.
func (a *Applier) Apply(ctx context.Context, data []byte) (Result, error) {
	f, err := Parse(data)
	if err != nil {
		return Result{}, err
	}
	if cur := a.marker.State(); cur.Version >= f.Version {
		a.logger.Debug("seed already applied", "version", cur.Version)
		return Result{Version: cur.Version}, nil
	}
	articles := make([]domain.Article, 0, len(f.Articles))
	for _, s := range f.Articles {
		articles = append(articles, domain.Article{
			ID:        s.ID,
			Title:     s.Title,
			Category:  s.Category,
			Status:    domain.ArticleStatus(s.Status),
			Author:    s.Author,
			Tags:      s.Tags,
			Body:      s.Body,
			PublishAt: s.PublishAt,
		})
	}
	n := 0
	if a.content != nil {
		n = a.content.Import(ctx, articles)
	}
	if f.Theme != "" && a.prefs != nil {
		if _, err := a.prefs.SetTheme(ctx, prefs.Theme(f.Theme)); err != nil {
			return Result{}, err
		}
	}
	a.marker.Set(ctx, Marker{Version: f.Version, AppliedAt: a.now().UTC()})
	a.logger.Info("seed applied", "version", f.Version, "articles", n)
	return Result{Applied: true, Version: f.Version, Articles: n}, nil
}
