// Package content is the local article store used by the health-content
// editor. Articles are persisted through the configured backend and are not
// synchronised to the remote service.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"telecare/internal/keys"
	"telecare/internal/persistence"
	"telecare/internal/store"
	"telecare/pkg/domain"
)

// State is the persisted article list in creation order.
type State struct {
	Articles []domain.Article `json:"articles"`
}

func cloneState(s State) State {
	out := State{Articles: make([]domain.Article, len(s.Articles))}
	for i, a := range s.Articles {
		out.Articles[i] = a.Clone()
	}
	return out
}

// Validate checks every article and that ids are unique.
func (s State) Validate() error {
	seen := make(map[string]bool, len(s.Articles))
	for _, a := range s.Articles {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return fmt.Errorf("content: duplicate article %s", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

func (s State) index(id string) int {
	for i, a := range s.Articles {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Draft holds the fields of a new article. Zero values take defaults.
type Draft struct {
	Title     string               `json:"title"`
	Category  string               `json:"category"`
	Status    domain.ArticleStatus `json:"status"`
	Author    string               `json:"author"`
	Tags      []string             `json:"tags"`
	Body      string               `json:"body"`
	PublishAt *time.Time           `json:"publishAt"`
}

// Patch updates the non-nil fields of an article.
type Patch struct {
	Title     *string               `json:"title"`
	Category  *string               `json:"category"`
	Status    *domain.ArticleStatus `json:"status"`
	Author    *string               `json:"author"`
	Tags      *[]string             `json:"tags"`
	Body      *string               `json:"body"`
	PublishAt *time.Time            `json:"publishAt"`
	// ClearPublishAt removes the publication time.
	ClearPublishAt bool `json:"clearPublishAt"`
}

type options struct {
	namespace string
	logger    *slog.Logger
	observer  store.Observer
}

// Option configures a Store.
type Option func(*options)

// WithNamespace sets the storage key namespace.
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithObserver sets the store metrics observer.
func WithObserver(obs store.Observer) Option { return func(o *options) { o.observer = obs } }

// Store is the article store.
type Store struct {
	store *store.Store[State]
	now   func() time.Time
	newID func() string
}

// New builds the article store persisted in backend.
func New(backend persistence.Backend, opts ...Option) *Store {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	st := store.New(backend, keys.ContentArticles.Storage(o.namespace), keys.ContentArticles.Version,
		State{Articles: []domain.Article{}},
		store.WithClone(cloneState),
		store.WithValidate(State.Validate),
		store.WithLogger[State](o.logger),
		store.WithObserver[State](o.observer),
	)
	return &Store{store: st, now: time.Now, newID: uuid.NewString}
}

// CreateArticle appends a new draft article and returns its id.
func (s *Store) CreateArticle(ctx context.Context, d Draft) (string, error) {
	now := s.now().UTC()
	a := domain.Article{
		ID:        s.newID(),
		Title:     strings.TrimSpace(d.Title),
		Category:  strings.TrimSpace(d.Category),
		Status:    d.Status,
		Author:    d.Author,
		Tags:      normalizeTags(d.Tags),
		Body:      d.Body,
		PublishAt: d.PublishAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.Status == "" {
		a.Status = domain.ArticleDraft
	}
	a = a.Clone()
	if err := a.Validate(); err != nil {
		return "", err
	}
	s.store.Update(ctx, func(st *State) bool {
		st.Articles = append(st.Articles, a)
		return true
	})
	return a.ID, nil
}

// UpdateArticle applies p to the article with id. A missing id is a no-op.
// The result is validated before it is stored.
func (s *Store) UpdateArticle(ctx context.Context, id string, p Patch) (bool, error) {
	var verr error
	changed := s.store.Update(ctx, func(st *State) bool {
		i := st.index(id)
		if i < 0 {
			return false
		}
		a := st.Articles[i]
		if p.Title != nil {
			a.Title = strings.TrimSpace(*p.Title)
		}
		if p.Category != nil {
			a.Category = strings.TrimSpace(*p.Category)
		}
		if p.Status != nil {
			a.Status = *p.Status
		}
		if p.Author != nil {
			a.Author = *p.Author
		}
		if p.Tags != nil {
			a.Tags = normalizeTags(*p.Tags)
		}
		if p.Body != nil {
			a.Body = *p.Body
		}
		if p.ClearPublishAt {
			a.PublishAt = nil
		} else if p.PublishAt != nil {
			at := *p.PublishAt
			a.PublishAt = &at
		}
		if err := a.Validate(); err != nil {
			verr = err
			return false
		}
		a.UpdatedAt = s.now().UTC()
		st.Articles[i] = a
		return true
	})
	return changed, verr
}

// DeleteArticle removes the article with id. A missing id is a no-op.
func (s *Store) DeleteArticle(ctx context.Context, id string) bool {
	return s.store.Update(ctx, func(st *State) bool {
		i := st.index(id)
		if i < 0 {
			return false
		}
		st.Articles = append(st.Articles[:i], st.Articles[i+1:]...)
		return true
	})
}

// Import upserts complete articles by id, keeping existing positions, and
// returns how many were written. Invalid articles are skipped.
func (s *Store) Import(ctx context.Context, articles []domain.Article) int {
	n := 0
	s.store.Update(ctx, func(st *State) bool {
		for _, a := range articles {
			a = a.Clone()
			if a.Status == "" {
				a.Status = domain.ArticleDraft
			}
			a.Tags = normalizeTags(a.Tags)
			if a.Validate() != nil {
				continue
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = s.now().UTC()
			}
			if a.UpdatedAt.IsZero() {
				a.UpdatedAt = a.CreatedAt
			}
			if i := st.index(a.ID); i >= 0 {
				st.Articles[i] = a
			} else {
				st.Articles = append(st.Articles, a)
			}
			n++
		}
		return n > 0
	})
	return n
}

// Articles returns all articles in creation order.
func (s *Store) Articles() []domain.Article { return s.store.State().Articles }

// Article returns the article with id.
func (s *Store) Article(id string) (domain.Article, bool) {
	st := s.store.State()
	if i := st.index(id); i >= 0 {
		return st.Articles[i], true
	}
	return domain.Article{}, false
}

// Subscribe registers a change listener.
func (s *Store) Subscribe(fn func(next, prev State)) func() { return s.store.Subscribe(fn) }

// Hydrate loads the persisted articles.
func (s *Store) Hydrate(ctx context.Context) persistence.LoadOutcome { return s.store.Hydrate(ctx) }

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Query filters an article list. Empty fields match everything.
type Query struct {
	Text     string               `json:"q"`
	Category string               `json:"category"`
	Status   domain.ArticleStatus `json:"status"`
	Tag      string               `json:"tag"`
}

// Filter returns the articles matching q, preserving order. Text matches
// title, body or author case-insensitively.
func Filter(articles []domain.Article, q Query) []domain.Article {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	tag := strings.ToLower(strings.TrimSpace(q.Tag))
	out := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if q.Category != "" && !strings.EqualFold(a.Category, q.Category) {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if tag != "" && !hasTag(a.Tags, tag) {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(a.Title), text) &&
			!strings.Contains(strings.ToLower(a.Body), text) &&
			!strings.Contains(strings.ToLower(a.Author), text) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Categories returns the distinct non-empty categories, sorted.
func Categories(articles []domain.Article) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, a := range articles {
		if a.Category == "" || seen[a.Category] {
			continue
		}
		seen[a.Category] = true
		out = append(out, a.Category)
	}
	sort.Strings(out)
	return out
}
