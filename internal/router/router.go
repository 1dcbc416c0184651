// Package router selects the canned response for an inbound request. Routes
// are tried in configuration order on method and path; the first route that
// matches owns the request and its rules are tried against the body.
package router

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/vivars7/rpcmock/internal/config"
	mockerrors "github.com/vivars7/rpcmock/internal/errors"
	"github.com/vivars7/rpcmock/internal/protocol"
)

// Match is the outcome of a successful lookup.
type Match struct {
	RouteIndex int
	RuleIndex  int
	Route      string // configured path pattern
	RPCMethod  string // JSON-RPC method of the request, if any
	Response   *config.ResponseSpec
}

// Router is an immutable, precompiled view of the configured routes. It is
// safe for concurrent use.
type Router struct {
	routes []route
}

type route struct {
	path    string
	methods map[string]struct{}
	pattern *regexp.Regexp // nil for exact paths
	rules   []rule
}

type rule struct {
	body     *string
	jrpc     string
	input    any // call.input normalized to encoding/json types
	response config.ResponseSpec
}

// New compiles routes into a Router. The routes slice is not retained.
func New(routes []config.RouteConfig) (*Router, error) {
	r := &Router{routes: make([]route, 0, len(routes))}
	for i, rc := range routes {
		rt := route{
			path:    rc.Path,
			methods: make(map[string]struct{}, len(rc.Methods)),
			rules:   make([]rule, 0, len(rc.Requests)),
		}
		for _, m := range rc.Methods {
			rt.methods[m] = struct{}{}
		}
		if rc.Regex {
			re, err := rc.CompilePattern()
			if err != nil {
				return nil, fmt.Errorf("routes[%d]: compiling %q: %w", i, rc.Path, err)
			}
			rt.pattern = re
		}
		for j, rq := range rc.Requests {
			ru := rule{body: rq.Body, jrpc: rq.JRPC, response: rq.Response}
			if rq.Call != nil {
				input, err := normalize(rq.Call.Input)
				if err != nil {
					return nil, fmt.Errorf("routes[%d].requests[%d].call.input: %w", i, j, err)
				}
				ru.input = input
			}
			rt.rules = append(rt.rules, ru)
		}
		r.routes = append(r.routes, rt)
	}
	return r, nil
}

// Len returns the number of routes.
func (r *Router) Len() int {
	return len(r.routes)
}

// Match finds the response for method, path and body. Only the first route
// matching method and path is consulted: when none of its rules match the
// body, the result is ErrNoRoute even if a later route would have matched.
func (r *Router) Match(method, path string, body protocol.Body) (*Match, error) {
	for i := range r.routes {
		rt := &r.routes[i]
		if _, ok := rt.methods[method]; !ok {
			continue
		}
		if !rt.matchPath(path) {
			continue
		}

		j, rpcMethod := rt.matchRule(body)
		if j < 0 {
			return nil, fmt.Errorf("route %d (%s) has no rule for this body: %w", i, rt.path, mockerrors.ErrNoRoute)
		}
		return &Match{
			RouteIndex: i,
			RuleIndex:  j,
			Route:      rt.path,
			RPCMethod:  rpcMethod,
			Response:   &rt.rules[j].response,
		}, nil
	}
	return nil, mockerrors.ErrNoRoute
}

func (rt *route) matchPath(path string) bool {
	if rt.pattern != nil {
		return rt.pattern.MatchString(path)
	}
	return rt.path == path
}

// matchRule returns the index of the first matching rule, or -1.
func (rt *route) matchRule(body protocol.Body) (int, string) {
	if raw, ok := body.Raw(); ok {
		for j, ru := range rt.rules {
			if ru.body != nil && *ru.body == raw {
				return j, ""
			}
		}
		return -1, ""
	}

	value, _ := body.JSON()
	method, ok := protocol.RPCMethod(value)
	if !ok {
		return -1, ""
	}
	for j, ru := range rt.rules {
		if ru.jrpc == "" || ru.jrpc != method {
			continue
		}
		if method == protocol.MethodToolsCall && !reflect.DeepEqual(ru.input, protocol.CallArguments(value)) {
			continue
		}
		return j, method
	}
	return -1, method
}

// normalize converts a value decoded from YAML or JSON into the shape
// encoding/json produces (float64 numbers, map[string]any objects) so it
// compares equal to request bodies.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
