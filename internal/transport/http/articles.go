package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"telecare/internal/content"
	"telecare/pkg/domain"
)

func (s *server) listArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := content.Query{
		Text:     q.Get("q"),
		Category: q.Get("category"),
		Status:   domain.ArticleStatus(q.Get("status")),
		Tag:      q.Get("tag"),
	}
	if query.Status != "" && !query.Status.Valid() {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown article status")
		return
	}
	writeData(w, http.StatusOK, content.Filter(s.Content.Articles(), query))
}

func (s *server) articleCategories(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, content.Categories(s.Content.Articles()))
}

func (s *server) getArticle(w http.ResponseWriter, r *http.Request) {
	a, ok := s.Content.Article(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "article not found")
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *server) createArticle(w http.ResponseWriter, r *http.Request) {
	var d content.Draft
	if !decodeJSON(w, r, &d) {
		return
	}
	id, err := s.Content.CreateArticle(r.Context(), d)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a, _ := s.Content.Article(id)
	writeData(w, http.StatusCreated, a)
}

func (s *server) updateArticle(w http.ResponseWriter, r *http.Request) {
	var p content.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.Content.Article(id); !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "article not found")
		return
	}
	if _, err := s.Content.UpdateArticle(r.Context(), id, p); err != nil {
		writeServiceError(w, err)
		return
	}
	a, _ := s.Content.Article(id)
	writeData(w, http.StatusOK, a)
}

func (s *server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	if !s.Content.DeleteArticle(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, codeNotFound, "article not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
