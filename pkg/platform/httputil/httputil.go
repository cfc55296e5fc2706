// Package httputil writes JSON responses and translates domain errors into HTTP statuses.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "kgcore/pkg/domain-errors"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status code and an error body. Internal errors
// never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	body := errorBody{Error: string(code)}
	if status == http.StatusInternalServerError {
		body.Error = "internal_error"
	} else {
		body.Description = describe(err)
	}
	WriteJSON(w, status, body)
}

func describe(err error) string {
	if de, ok := err.(*dErrors.Error); ok && de.Err == nil {
		return de.Message
	}
	return err.Error()
}

// DecodeJSON reads a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
