// Package errors defines the mock server's error types. Each error carries
// the HTTP status it maps to and a hint for whoever is debugging the test
// setup.
package errors

import "fmt"

// MockError is the base error type for request-level failures.
type MockError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Error implements the error interface.
func (e *MockError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%d] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Predefined errors.
var (
	ErrUnreadableBody   = &MockError{Code: 400, Message: "Request body could not be read", Hint: "The client closed the connection or sent a truncated body"}
	ErrNoRoute          = &MockError{Code: 404, Message: "Not Found", Hint: "No route and rule match this method, path and body. Check the routes section of the config"}
	ErrMethodNotAllowed = &MockError{Code: 405, Message: "Method not allowed", Hint: "Only GET, POST, PUT, DELETE and PATCH are dispatched"}
	ErrRateLimited      = &MockError{Code: 429, Message: "Rate limit exceeded", Hint: "Raise or disable listen.rate_limit"}
	ErrMalformedBody    = &MockError{Code: 500, Message: "Malformed JSON body", Hint: "Content-Type is application/json but the body does not parse as JSON"}
	ErrShuttingDown     = &MockError{Code: 503, Message: "Server is shutting down", Hint: "The stop path was requested or the process received a signal"}
)
