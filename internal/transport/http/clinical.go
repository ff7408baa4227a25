package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"telecare/pkg/domain"
)

func (s *server) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	if patient := r.URL.Query().Get("patient_id"); patient != "" {
		writeData(w, http.StatusOK, s.Clinical.PrescriptionsForPatient(domain.ID(patient)))
		return
	}
	writeData(w, http.StatusOK, s.Clinical.Prescriptions())
}

func (s *server) getPrescription(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Clinical.Prescription(domain.ID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "prescription not cached")
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *server) listClinicalOrders(w http.ResponseWriter, r *http.Request) {
	if patient := r.URL.Query().Get("patient_id"); patient != "" {
		writeData(w, http.StatusOK, s.Clinical.OrdersForPatient(domain.ID(patient)))
		return
	}
	writeData(w, http.StatusOK, s.Clinical.Orders())
}

func (s *server) getClinicalOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := s.Clinical.Order(domain.ID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "clinical order not cached")
		return
	}
	writeData(w, http.StatusOK, o)
}
