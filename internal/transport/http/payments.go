package http

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"telecare/internal/payment"
	"telecare/pkg/domain"
)

func (s *server) listPayments(w http.ResponseWriter, r *http.Request) {
	st := s.Payments.State()
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.PaymentStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown payment status")
			return
		}
		writeData(w, http.StatusOK, payment.OrdersByStatus(st, status))
		return
	}
	orders := make([]domain.PaymentOrder, 0, len(st.Orders))
	for _, o := range st.Orders {
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.PaymentOrder) int {
		if c := b.PlacedAt.Compare(a.PlacedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	writeData(w, http.StatusOK, orders)
}

func (s *server) activePayment(w http.ResponseWriter, _ *http.Request) {
	o, ok := payment.ActiveOrder(s.Payments.State())
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "no active order")
		return
	}
	writeData(w, http.StatusOK, o)
}

func (s *server) getPayment(w http.ResponseWriter, r *http.Request) {
	o, ok := payment.OrderByID(s.Payments.State(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}
	writeData(w, http.StatusOK, o)
}

type statusRequest struct {
	Status domain.PaymentStatus `json:"status"`
}

// setPaymentStatus is the payment provider callback.
func (s *server) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown payment status")
		return
	}
	s.transition(w, r, chi.URLParam(r, "id"), req.Status)
}

func (s *server) retryPayment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, chi.URLParam(r, "id"), domain.PaymentPending)
}

func (s *server) transition(w http.ResponseWriter, r *http.Request, id string, status domain.PaymentStatus) {
	cur, ok := payment.OrderByID(s.Payments.State(), id)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}
	if !s.Payments.UpdateStatus(r.Context(), id, status) && cur.Status != status {
		writeError(w, http.StatusConflict, codeInvalidTransition,
			"cannot move order from "+string(cur.Status)+" to "+string(status))
		return
	}
	o, _ := payment.OrderByID(s.Payments.State(), id)
	writeData(w, http.StatusOK, o)
}

type channelRequest struct {
	Channel string `json:"channel"`
}

func (s *server) setPaymentChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := payment.OrderByID(s.Payments.State(), id); !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}
	s.Payments.SetChannel(r.Context(), id, strings.TrimSpace(req.Channel))
	o, _ := payment.OrderByID(s.Payments.State(), id)
	writeData(w, http.StatusOK, o)
}

func (s *server) resetPayment(w http.ResponseWriter, r *http.Request) {
	if !s.Payments.ResetOrder(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
