// Package ratelimit provides the server-wide request limiter.
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"

	mockerrors "github.com/vivars7/rpcmock/internal/errors"
)

// Global enforces a server-wide request rate using a token bucket.
type Global struct {
	limiter  *rate.Limiter
	onReject func(*http.Request)
}

// NewGlobal creates a limiter allowing rpm requests per minute.
// The burst is one second's worth of requests, never less than one.
func NewGlobal(rpm int) *Global {
	perSecond := float64(rpm) / 60.0
	burst := rpm / 60
	if burst < 1 {
		burst = 1
	}
	return &Global{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// OnReject installs a callback invoked for every rejected request.
func (g *Global) OnReject(fn func(*http.Request)) {
	g.onReject = fn
}

// Allow reports whether one more request fits in the budget.
func (g *Global) Allow() bool {
	return g.limiter.Allow()
}

// Process returns an http.Handler that answers 429 once the budget is spent.
func (g *Global) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow() {
			if g.onReject != nil {
				g.onReject(r)
			}
			mockerrors.WriteHTTPError(w, mockerrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
