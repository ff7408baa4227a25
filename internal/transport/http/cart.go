package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"telecare/internal/cart"
	"telecare/internal/checkout"
	"telecare/pkg/domain"
)

type cartView struct {
	Items           []domain.CartItem `json:"items"`
	Prices          map[string]int64  `json:"prices,omitempty"`
	Open            bool              `json:"open"`
	TotalQuantity   int               `json:"total_quantity"`
	TotalPriceCents int64             `json:"total_price_cents"`
	Changed         bool              `json:"changed"`
}

func newCartView(st cart.State, changed bool) cartView {
	return cartView{
		Items:           st.Items,
		Prices:          st.Prices,
		Open:            st.Open,
		TotalQuantity:   cart.TotalQuantity(st),
		TotalPriceCents: cart.TotalPriceCents(st),
		Changed:         changed,
	}
}

func (s *server) getCart(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), false))
}

type addItemRequest struct {
	ProductSlug string `json:"productSlug"`
	Quantity    int    `json:"quantity"`
}

func (s *server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := (domain.CartItem{ProductSlug: req.ProductSlug, Quantity: req.Quantity}).Validate(); err != nil {
		writeServiceError(w, err)
		return
	}
	if !checkQuantity(w, req.Quantity) {
		return
	}
	changed := s.Cart.AddItem(r.Context(), req.ProductSlug, req.Quantity)
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), changed))
}

func checkQuantity(w http.ResponseWriter, qty int) bool {
	if qty > cart.MaxQuantity {
		writeError(w, http.StatusBadRequest, codeValidationFailed, fmt.Sprintf("quantity must not exceed %d", cart.MaxQuantity))
		return false
	}
	return true
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *server) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !checkQuantity(w, req.Quantity) {
		return
	}
	changed := s.Cart.SetQuantity(r.Context(), chi.URLParam(r, "slug"), req.Quantity)
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), changed))
}

func (s *server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	changed := s.Cart.RemoveItem(r.Context(), chi.URLParam(r, "slug"))
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), changed))
}

func (s *server) clearCart(w http.ResponseWriter, r *http.Request) {
	changed := s.Cart.Clear(r.Context())
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), changed))
}

type openRequest struct {
	Open bool `json:"open"`
}

func (s *server) setCartOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	changed := s.Cart.SetOpen(r.Context(), req.Open)
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), changed))
}

func (s *server) refreshCart(w http.ResponseWriter, r *http.Request) {
	if err := s.Cart.Load(r.Context()); err != nil {
		// Partial refreshes keep the previous prices; report them alongside the cart.
		s.Logger.Warn("cart refresh incomplete", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"data":     newCartView(s.Cart.Snapshot(), false),
			"warnings": strings.Split(err.Error(), "\n"),
		})
		return
	}
	writeData(w, http.StatusOK, newCartView(s.Cart.Snapshot(), false))
}

func (s *server) checkout(w http.ResponseWriter, r *http.Request) {
	if s.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, codeBackendUnavailable, "backend not configured")
		return
	}
	var req checkout.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := s.Checkout.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, order)
}
