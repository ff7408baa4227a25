package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"telecare/internal/backend"
	"telecare/internal/cart"
	"telecare/internal/checkout"
	"telecare/pkg/domain"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeValidationFailed   = "validation_failed"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeCartEmpty          = "cart_empty"
	codeInvalidTransition  = "invalid_transition"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeBackendUnavailable = "backend_unavailable"
	codeBackendError       = "backend_error"
	codeTimeout            = "timeout"
	codeInternalError      = "internal_error"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, dataResponse{Data: v})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps store, checkout and backend failures to responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		verr   domain.ValidationError
		apiErr *backend.APIError
	)
	switch {
	case errors.Is(err, checkout.ErrValidation), errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	case errors.Is(err, cart.ErrEmptyCart):
		writeError(w, http.StatusConflict, codeCartEmpty, "cart is empty")
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusUnauthorized:
			writeError(w, http.StatusUnauthorized, codeUnauthorized, apiErr.Message)
		case http.StatusForbidden:
			writeError(w, http.StatusForbidden, codeForbidden, apiErr.Message)
		case http.StatusNotFound:
			writeError(w, http.StatusNotFound, codeNotFound, apiErr.Message)
		case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
			writeError(w, apiErr.Status, codeBackendError, apiErr.Message)
		default:
			writeError(w, http.StatusBadGateway, codeBackendError, apiErr.Message)
		}
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, codeTimeout, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body required"
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, msg)
		return false
	}
	return true
}
