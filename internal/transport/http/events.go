package http

import (
	"encoding/json"
	"net/http"

	"telecare/internal/prefs"
	"telecare/internal/realtime"
)

func (s *server) getPreferences(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, prefs.State{Theme: s.Prefs.Theme()})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *server) setTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := prefs.ParseTheme(req.Theme)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	if _, err := s.Prefs.SetTheme(r.Context(), t); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, prefs.State{Theme: s.Prefs.Theme()})
}

func (s *server) listNotifications(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, nonNil(s.Inbox.List()))
}

func (s *server) drainNotifications(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, nonNil(s.Inbox.Drain()))
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

type eventRequest struct {
	Table  realtime.Table  `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// ingestEvent accepts change events pushed by a database webhook and fans
// them out to in-process subscribers such as the realtime bridge.
func (s *server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeError(w, http.StatusServiceUnavailable, codeBackendUnavailable, "event ingestion disabled")
		return
	}
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	action, err := realtime.ParseAction(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	if req.Table == "" || len(req.Record) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "table and record are required")
		return
	}
	n := s.Events.Publish(realtime.Event{Table: req.Table, Action: action, Record: req.Record})
	writeData(w, http.StatusAccepted, map[string]int{"delivered": n})
}
