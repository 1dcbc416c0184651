package config

import (
	"net/http"
	"strings"
	"time"
)

// ApplyDefaults fills zero-valued fields with their defaults.
// It is called after parsing and before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "localhost"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8080
	}

	// ── Admin ──
	// admin.enabled defaults to false (zero value)
	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 9090
	}

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// ── Shutdown ──
	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}

	for i := range cfg.Routes {
		applyRouteDefaults(&cfg.Routes[i])
	}
}

func applyRouteDefaults(r *RouteConfig) {
	if len(r.Methods) == 0 {
		r.Methods = []string{http.MethodGet}
	}
	for i, m := range r.Methods {
		r.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}

	if len(r.Requests) == 0 && len(r.Request) > 0 {
		r.Requests = r.Request
	}
	r.Request = nil

	for i := range r.Requests {
		if r.Requests[i].Response.Status == 0 {
			r.Requests[i].Response.Status = http.StatusOK
		}
	}
}

// SampleYAML returns a commented starter configuration written by `rpcmock init`.
func SampleYAML() string {
	return `# rpcmock configuration
listen:
  host: localhost
  port: 8080

logging:
  level: info
  format: text

routes:
  # Plain HTTP: the raw body selects the response.
  - path: /api/health
    methods: [GET]
    requests:
      - body: ""
        response:
          status: 200
          body:
            status: ok

  # Regex routes match from the start of the path.
  - path: /api/items/.*
    regex: true
    methods: [GET, DELETE]
    requests:
      - body: ""
        response:
          status: 204

  # JSON-RPC: the "method" field selects the rule, and tools/call
  # additionally compares params.arguments with call.input.
  - path: /mcp
    methods: [POST]
    requests:
      - jrpc: initialize
        response:
          body:
            jsonrpc: "2.0"
            id: 1
            result:
              protocolVersion: "2025-03-26"
              serverInfo: { name: rpcmock, version: "1.0" }
              capabilities: { tools: {} }
      - jrpc: tools/call
        call:
          input: { a: 1 }
        response:
          delay: 0.5
          headers:
            X-Mock: "tools"
          body:
            jsonrpc: "2.0"
            id: 2
            result:
              content:
                - { type: text, text: "one" }
`
}
