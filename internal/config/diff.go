package config

import (
	"fmt"
	"reflect"
)

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string      // dot-separated field path (e.g., "listen.port", "routes[2]")
	OldValue   interface{} // previous value
	NewValue   interface{} // new value
	Reloadable bool        // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
// Only routes are reloadable; everything else is bound at startup.
func Diff(old, new *Config) []Change {
	var changes []Change

	// ── Non-reloadable: listen ──
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)
	diffField(&changes, "listen.max_connections", old.Listen.MaxConnections, new.Listen.MaxConnections, false)
	diffField(&changes, "listen.rate_limit", old.Listen.RateLimit, new.Listen.RateLimit, false)

	// ── Non-reloadable: admin ──
	diffField(&changes, "admin.enabled", old.Admin.Enabled, new.Admin.Enabled, false)
	diffField(&changes, "admin.host", old.Admin.Host, new.Admin.Host, false)
	diffField(&changes, "admin.port", old.Admin.Port, new.Admin.Port, false)

	// ── Non-reloadable: logging, shutdown, reload ──
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, false)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, false)
	diffField(&changes, "logging.output", old.Logging.Output, new.Logging.Output, false)
	diffField(&changes, "shutdown.timeout", old.Shutdown.Timeout.Duration, new.Shutdown.Timeout.Duration, false)
	diffField(&changes, "reload.debounce", old.Reload.Debounce.Duration, new.Reload.Debounce.Duration, false)

	// ── Reloadable: routes ──
	diffRoutes(&changes, old.Routes, new.Routes)

	return changes
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
func diffField(changes *[]Change, field string, oldVal, newVal interface{}, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffRoutes compares route lists position by position. Routes are ordered
// (first match wins), so a moved route counts as changed at both positions.
func diffRoutes(changes *[]Change, oldRoutes, newRoutes []RouteConfig) {
	n := len(oldRoutes)
	if len(newRoutes) > n {
		n = len(newRoutes)
	}
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("routes[%d]", i)
		switch {
		case i >= len(oldRoutes):
			*changes = append(*changes, Change{Field: field, NewValue: routeSummary(newRoutes[i]), Reloadable: true})
		case i >= len(newRoutes):
			*changes = append(*changes, Change{Field: field, OldValue: routeSummary(oldRoutes[i]), Reloadable: true})
		case !reflect.DeepEqual(oldRoutes[i], newRoutes[i]):
			*changes = append(*changes, Change{
				Field:      field,
				OldValue:   routeSummary(oldRoutes[i]),
				NewValue:   routeSummary(newRoutes[i]),
				Reloadable: true,
			})
		}
	}
}

// routeSummary renders a route compactly for log output.
func routeSummary(r RouteConfig) string {
	kind := "exact"
	if r.Regex {
		kind = "regex"
	}
	return fmt.Sprintf("%v %s (%s, %d rules)", r.Methods, r.Path, kind, len(r.Requests))
}
