package health

import (
	"encoding/json"
	"net/http"

	"github.com/vivars7/rpcmock/internal/lifecycle"
)

// StateSource is what the health handler needs from the lifecycle controller.
type StateSource interface {
	State() lifecycle.State
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	state   StateSource
	routes  func() int
	version string
}

// NewHandler creates a health check handler. routes reports the number of
// routes in the active snapshot and may be nil.
func NewHandler(state StateSource, routes func() int, version string) *Handler {
	return &Handler{state: state, routes: routes, version: version}
}

// ServeHTTP routes to the appropriate health endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		h.handleLiveness(w, r)
	case "/readyz":
		h.handleReadiness(w, r)
	default:
		http.NotFound(w, r)
	}
}

// LivenessResponse is the JSON response for /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for /readyz.
type ReadinessResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Routes int    `json:"routes"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// handleReadiness reports ready only while the mock listener is Running.
func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	state := h.state.State()
	resp := ReadinessResponse{State: state.String()}
	if h.routes != nil {
		resp.Routes = h.routes()
	}

	w.Header().Set("Content-Type", "application/json")
	if state == lifecycle.Running {
		resp.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(resp)
}
