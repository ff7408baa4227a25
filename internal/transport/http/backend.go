package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"telecare/internal/backend"
	"telecare/pkg/domain"
)

const defaultPatientSearchLimit = 20

func (s *server) requireBackend(w http.ResponseWriter) bool {
	if s.Backend == nil {
		writeError(w, http.StatusServiceUnavailable, codeBackendUnavailable, "backend not configured")
		return false
	}
	return true
}

type approveRequest struct {
	Notes string `json:"notes"`
}

// approvePrescription calls the backend and mirrors the returned row into the
// clinical cache so readers see it before the realtime event arrives.
func (s *server) approvePrescription(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	var req approveRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.Backend.ApprovePrescription(r.Context(), domain.ID(chi.URLParam(r, "id")), req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if _, err := s.Clinical.UpsertPrescription(r.Context(), p); err != nil {
		s.Logger.Warn("approved prescription not cached", "id", p.ID, "error", err)
	}
	writeData(w, http.StatusOK, p)
}

func (s *server) syncPrescriptions(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	patient := domain.ID(chi.URLParam(r, "id"))
	rows, err := s.Backend.FetchPrescriptions(r.Context(), patient)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := r.Context().Err(); err != nil {
		writeServiceError(w, err)
		return
	}
	n := s.Clinical.ReplacePrescriptions(r.Context(), patient, rows)
	writeData(w, http.StatusOK, map[string]any{
		"stored":        n,
		"prescriptions": s.Clinical.PrescriptionsForPatient(patient),
	})
}

func (s *server) searchPatients(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "q is required")
		return
	}
	limit := defaultPatientSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = n
	}
	rows, err := s.Backend.SearchPatients(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

func (s *server) triageSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	sess, err := s.Backend.FetchTriageSession(r.Context(), domain.ID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (s *server) getAppointment(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	a, err := s.Backend.FetchAppointment(r.Context(), domain.ID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *server) createAppointment(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	var req backend.CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case req.PatientID == "":
		writeError(w, http.StatusBadRequest, codeValidationFailed, "patient_id is required")
		return
	case req.DoctorID == "":
		writeError(w, http.StatusBadRequest, codeValidationFailed, "doctor_id is required")
		return
	case req.StartsAt.IsZero():
		writeError(w, http.StatusBadRequest, codeValidationFailed, "starts_at is required")
		return
	}
	a, err := s.Backend.CreateAppointment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

func (s *server) getProduct(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	p, err := s.Backend.FetchProduct(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
