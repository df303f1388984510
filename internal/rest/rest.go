package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grouplan/grouplan/internal/apperr"
	log "github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Page is the JSON envelope of a paged listing.
type Page[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	Size    int `json:"size"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

// WriteError maps err onto a status through its kind and writes it as an ErrorResponse.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	WriteJSON(w, status, ErrorResponse{Error: apperr.Kind(err), Details: err.Error()})
}

func WriteBadRequest(w http.ResponseWriter, message string, details string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Details: details})
}

// DecodeJSON decodes the request body into dst. Decoding failures are reported as invalid arguments.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(apperr.ErrInvalidArgument, err)
	}
	return nil
}
