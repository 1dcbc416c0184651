package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGlobal_BurstThenReject(t *testing.T) {
	// 60 rpm = 1 rps with a burst of 1.
	g := NewGlobal(60)
	rejected := 0
	g.OnReject(func(*http.Request) { rejected++ })
	h := g.Process(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, 1, rejected)
}

func TestGlobal_BurstScalesWithRate(t *testing.T) {
	g := NewGlobal(600) // burst 10
	allowed := 0
	for i := 0; i < 20; i++ {
		if g.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 10)
	assert.Less(t, allowed, 20)
}

func TestGlobal_LowRateHasBurstOfOne(t *testing.T) {
	g := NewGlobal(1)
	assert.True(t, g.Allow())
	assert.False(t, g.Allow())
}
