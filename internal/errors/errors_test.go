package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockErrorWithHint(t *testing.T) {
	err := &MockError{Code: 404, Message: "Not Found", Hint: "check routes"}
	assert.Equal(t, "[404] Not Found (hint: check routes)", err.Error())
}

func TestMockErrorWithoutHint(t *testing.T) {
	err := &MockError{Code: 500, Message: "Internal error"}
	assert.Equal(t, "[500] Internal error", err.Error())
}

func TestMockErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("matching: %w", ErrNoRoute)
	assert.True(t, stderrors.Is(wrapped, ErrNoRoute))

	var me *MockError
	require.True(t, stderrors.As(wrapped, &me))
	assert.Equal(t, 404, me.Code)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *MockError
		code int
	}{
		{"ErrUnreadableBody", ErrUnreadableBody, 400},
		{"ErrNoRoute", ErrNoRoute, 404},
		{"ErrMethodNotAllowed", ErrMethodNotAllowed, 405},
		{"ErrRateLimited", ErrRateLimited, 429},
		{"ErrMalformedBody", ErrMalformedBody, 500},
		{"ErrShuttingDown", ErrShuttingDown, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
			assert.NotEmpty(t, tt.err.Hint)
		})
	}
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, ErrMalformedBody)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, *ErrMalformedBody, body.Error)
}

func TestWriteNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNotFound(rec, "/missing?x=1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Not Found","path":"/missing?x=1"}`, rec.Body.String())
}
