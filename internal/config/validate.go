package config

import (
	"fmt"
	"net/http"
	"strings"
)

// StopPath is the reserved path that shuts the server down.
const StopPath = "/stop"

// SupportedMethods lists the HTTP verbs the mock server dispatches.
var SupportedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Ports ──
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 0-65535 (got %d)", cfg.Listen.Port))
	}
	if cfg.Admin.Enabled {
		if cfg.Admin.Port < 1 || cfg.Admin.Port > 65535 {
			errs = append(errs, fmt.Sprintf("admin.port must be 1-65535 (got %d)", cfg.Admin.Port))
		}
		if cfg.Admin.Port == cfg.Listen.Port && cfg.Admin.Host == cfg.Listen.Host {
			errs = append(errs, fmt.Sprintf("admin.port must differ from listen.port (both %d)", cfg.Admin.Port))
		}
	}

	// ── Limits ──
	if cfg.Listen.MaxConnections < 0 {
		errs = append(errs, fmt.Sprintf("listen.max_connections must not be negative (got %d)", cfg.Listen.MaxConnections))
	}
	if cfg.Listen.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("listen.rate_limit must not be negative (got %d)", cfg.Listen.RateLimit))
	}

	// ── Logging ──
	if !isValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if !isValidFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: text, json (got %q)", cfg.Logging.Format))
	}
	if !isValidOutput(cfg.Logging.Output) {
		errs = append(errs, fmt.Sprintf("logging.output must be one of: stdout, stderr (got %q)", cfg.Logging.Output))
	}

	// ── Durations ──
	if cfg.Shutdown.Timeout.Duration <= 0 {
		errs = append(errs, "shutdown.timeout must be positive")
	}
	if cfg.Reload.Debounce.Duration < 0 {
		errs = append(errs, "reload.debounce must not be negative")
	}

	// ── Routes ──
	for i, r := range cfg.Routes {
		errs = append(errs, validateRoute(i, r)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRoute(i int, r RouteConfig) []string {
	var errs []string
	if r.Path == "" {
		errs = append(errs, fmt.Sprintf("routes[%d]: path is required", i))
	}
	if r.Regex {
		if _, err := r.CompilePattern(); err != nil {
			errs = append(errs, fmt.Sprintf("routes[%d]: invalid regex %q: %v", i, r.Path, err))
		}
	}
	if len(r.Methods) == 0 {
		errs = append(errs, fmt.Sprintf("routes[%d]: methods must not be empty", i))
	}
	for _, m := range r.Methods {
		if !isSupportedMethod(m) {
			errs = append(errs, fmt.Sprintf("routes[%d]: method must be one of: %s (got %q)", i, strings.Join(SupportedMethods, ", "), m))
		}
	}

	for j, rule := range r.Requests {
		prefix := fmt.Sprintf("routes[%d].requests[%d]", i, j)
		switch {
		case rule.Body != nil && rule.JRPC != "":
			errs = append(errs, prefix+": body and jrpc are mutually exclusive")
		case rule.Body == nil && rule.JRPC == "":
			errs = append(errs, prefix+": one of body or jrpc is required")
		}
		if rule.Call != nil && rule.JRPC == "" {
			errs = append(errs, prefix+": call requires jrpc")
		}

		resp := rule.Response
		if resp.Status < 100 || resp.Status > 599 {
			errs = append(errs, fmt.Sprintf("%s.response.status must be 100-599 (got %d)", prefix, resp.Status))
		}
		if resp.Delay.Duration < 0 {
			errs = append(errs, fmt.Sprintf("%s.response.delay must not be negative (got %s)", prefix, resp.Delay.Duration))
		}
		for name := range resp.Headers {
			if name == "" || strings.ContainsAny(name, " :\t\r\n") {
				errs = append(errs, fmt.Sprintf("%s.response.headers: invalid header name %q", prefix, name))
			}
		}
	}
	return errs
}

// Warnings reports configuration that is valid but probably not what the
// author meant.
func Warnings(cfg *Config) []string {
	var warns []string
	if len(cfg.Routes) == 0 {
		warns = append(warns, "no routes configured; every request will return 404")
	}
	for i, r := range cfg.Routes {
		if !r.Regex && r.Path == StopPath {
			warns = append(warns, fmt.Sprintf("routes[%d]: path %s is reserved for shutdown and will never match", i, StopPath))
		}
		if len(r.Requests) == 0 {
			warns = append(warns, fmt.Sprintf("routes[%d]: no requests configured; matching requests will return 404", i))
		}
	}
	return warns
}

func isSupportedMethod(m string) bool {
	for _, s := range SupportedMethods {
		if m == s {
			return true
		}
	}
	return false
}

func isValidLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidFormat(f string) bool {
	switch f {
	case "text", "json":
		return true
	}
	return false
}

func isValidOutput(o string) bool {
	switch o {
	case "stdout", "stderr":
		return true
	}
	return false
}
