// Package handlers exposes the platform's HTTP surface. Handlers decode
// JSON, call a service and encode the result; error kinds map to status
// codes in one place.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes an explicit error body.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteError maps a service error to its HTTP status. The message is the
// error's own text; credentials never reach error text by construction.
func WriteError(w http.ResponseWriter, err error) error {
	kind := apperrors.KindOf(err)
	return ErrorResponse(w, kind.HTTPStatus(), kind.String(), err.Error())
}

// DecodeJSON decodes a request body into dst with a small validation
// wrapper around malformed payloads.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validation("malformed JSON body")
	}
	return nil
}
