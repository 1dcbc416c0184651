package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse wraps a MockError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error MockError `json:"error"`
}

// NotFoundResponse is the 404 body returned when nothing matches.
type NotFoundResponse struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

// WriteHTTPError writes a MockError as an HTTP JSON response.
func WriteHTTPError(w http.ResponseWriter, err *MockError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}

// WriteNotFound writes the 404 body {"error": "Not Found", "path": path}.
func WriteNotFound(w http.ResponseWriter, path string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrNoRoute.Code)
	json.NewEncoder(w).Encode(NotFoundResponse{Error: ErrNoRoute.Message, Path: path})
}
