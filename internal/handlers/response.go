package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// errorResponse is the body of every failed request outside the pipeline.
type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, errorType string) {
	writeJSON(w, status, errorResponse{Error: msg, ErrorType: errorType})
}

// decodeBody reads a JSON object body. An empty body decodes to the zero value
// when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
