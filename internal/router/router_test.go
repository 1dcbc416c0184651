package router

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivars7/rpcmock/internal/config"
	mockerrors "github.com/vivars7/rpcmock/internal/errors"
	"github.com/vivars7/rpcmock/internal/protocol"
)

// ── Helpers ──

func strptr(s string) *string { return &s }

func bodyRule(body string, status int) config.RequestRule {
	return config.RequestRule{Body: strptr(body), Response: config.ResponseSpec{Status: status}}
}

func rpcRule(method string, status int) config.RequestRule {
	return config.RequestRule{JRPC: method, Response: config.ResponseSpec{Status: status}}
}

func callRule(input any, status int) config.RequestRule {
	return config.RequestRule{
		JRPC:     protocol.MethodToolsCall,
		Call:     &config.CallSpec{Input: input},
		Response: config.ResponseSpec{Status: status},
	}
}

func newRouter(t *testing.T, routes ...config.RouteConfig) *Router {
	t.Helper()
	cfg := &config.Config{Routes: routes}
	config.ApplyDefaults(cfg)
	require.NoError(t, config.Validate(cfg))
	r, err := New(cfg.Routes)
	require.NoError(t, err)
	return r
}

func jsonBody(t *testing.T, s string) protocol.Body {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return protocol.JSONBody(v)
}

func mustMatch(t *testing.T, r *Router, method, path string, body protocol.Body) *Match {
	t.Helper()
	m, err := r.Match(method, path, body)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func assertNoMatch(t *testing.T, r *Router, method, path string, body protocol.Body) {
	t.Helper()
	m, err := r.Match(method, path, body)
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, mockerrors.ErrNoRoute), "expected ErrNoRoute, got %v", err)
}

// ── Method and path ──

func TestMatch_DefaultMethodIsGET(t *testing.T) {
	r := newRouter(t, config.RouteConfig{Path: "/a", Requests: []config.RequestRule{bodyRule("", 200)}})

	mustMatch(t, r, "GET", "/a", protocol.RawBody(""))
	assertNoMatch(t, r, "POST", "/a", protocol.RawBody(""))
}

func TestMatch_AllVerbs(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:     "/all",
		Methods:  append([]string(nil), config.SupportedMethods...),
		Requests: []config.RequestRule{bodyRule("", 200)},
	})
	for _, m := range config.SupportedMethods {
		t.Run(m, func(t *testing.T) {
			mustMatch(t, r, m, "/all", protocol.RawBody(""))
		})
	}
}

func TestMatch_ExactPath(t *testing.T) {
	r := newRouter(t, config.RouteConfig{Path: "/api/users", Requests: []config.RequestRule{bodyRule("", 200)}})

	mustMatch(t, r, "GET", "/api/users", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/api/users/", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/api/users/1", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/api", protocol.RawBody(""))
}

func TestMatch_RegexIsPrefixAnchored(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:     "^/api/.*",
		Regex:    true,
		Requests: []config.RequestRule{bodyRule("", 200)},
	})

	mustMatch(t, r, "GET", "/api/x", protocol.RawBody(""))
	mustMatch(t, r, "GET", "/api/x/y", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/apiary", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/v2/api/x", protocol.RawBody(""))
}

func TestMatch_RegexUnanchoredEnd(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:     "/items/[0-9]+",
		Regex:    true,
		Requests: []config.RequestRule{bodyRule("", 200)},
	})

	mustMatch(t, r, "GET", "/items/42", protocol.RawBody(""))
	mustMatch(t, r, "GET", "/items/42/parts", protocol.RawBody(""))
	assertNoMatch(t, r, "GET", "/items/abc", protocol.RawBody(""))
}

func TestMatch_FirstRouteWins(t *testing.T) {
	r := newRouter(t,
		config.RouteConfig{Path: "/dup", Requests: []config.RequestRule{bodyRule("", 201)}},
		config.RouteConfig{Path: "/dup", Requests: []config.RequestRule{bodyRule("", 202)}},
	)

	m := mustMatch(t, r, "GET", "/dup", protocol.RawBody(""))
	assert.Equal(t, 0, m.RouteIndex)
	assert.Equal(t, 201, m.Response.Status)
}

func TestMatch_SkipsRouteWithOtherMethod(t *testing.T) {
	r := newRouter(t,
		config.RouteConfig{Path: "/x", Methods: []string{"POST"}, Requests: []config.RequestRule{bodyRule("", 201)}},
		config.RouteConfig{Path: "/x", Methods: []string{"GET"}, Requests: []config.RequestRule{bodyRule("", 202)}},
	)

	m := mustMatch(t, r, "GET", "/x", protocol.RawBody(""))
	assert.Equal(t, 1, m.RouteIndex)
	assert.Equal(t, 202, m.Response.Status)
}

// ── Raw bodies ──

func TestMatch_RawBodyEquality(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:    "/echo",
		Methods: []string{"POST"},
		Requests: []config.RequestRule{
			bodyRule("hello", 201),
			bodyRule("", 204),
			rpcRule("ping", 500),
		},
	})

	m := mustMatch(t, r, "POST", "/echo", protocol.RawBody("hello"))
	assert.Equal(t, 0, m.RuleIndex)
	assert.Equal(t, 201, m.Response.Status)

	m = mustMatch(t, r, "POST", "/echo", protocol.RawBody(""))
	assert.Equal(t, 1, m.RuleIndex)
	assert.Equal(t, 204, m.Response.Status)

	assertNoMatch(t, r, "POST", "/echo", protocol.RawBody("Hello"))
	// A raw body never matches jrpc rules, even if it spells the method.
	assertNoMatch(t, r, "POST", "/echo", protocol.RawBody(`{"method":"ping"}`))
}

func TestMatch_ZeroBodyIsEmptyString(t *testing.T) {
	r := newRouter(t, config.RouteConfig{Path: "/a", Requests: []config.RequestRule{bodyRule("", 200)}})
	mustMatch(t, r, "GET", "/a", protocol.Body{})
}

// ── JSON-RPC bodies ──

func TestMatch_JSONRPCMethod(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:    "/mcp",
		Methods: []string{"POST"},
		Requests: []config.RequestRule{
			bodyRule(`{"method":"initialize"}`, 500),
			rpcRule("initialize", 200),
			rpcRule("tools/list", 201),
		},
	})

	m := mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	assert.Equal(t, 2, m.RuleIndex)
	assert.Equal(t, "tools/list", m.RPCMethod)

	m = mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"initialize"}`))
	assert.Equal(t, 1, m.RuleIndex)

	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"resources/list"}`))
	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `{"id":1}`))
	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `[{"method":"initialize"}]`))
}

func TestMatch_ToolsCallArguments(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:    "/mcp",
		Methods: []string{"POST"},
		Requests: []config.RequestRule{
			callRule(map[string]any{"a": 1}, 201),
			callRule(map[string]any{"a": 2}, 202),
		},
	})

	m := mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{"name":"t","arguments":{"a":1}}}`))
	assert.Equal(t, 201, m.Response.Status)

	// {"a":2} skips the first rule and falls through to the next one.
	m = mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{"arguments":{"a":2}}}`))
	assert.Equal(t, 1, m.RuleIndex)
	assert.Equal(t, 202, m.Response.Status)

	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{"arguments":{"a":3}}}`))
	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{"arguments":{"a":1,"b":0}}}`))
}

func TestMatch_ToolsCallNestedInputFromYAML(t *testing.T) {
	yamlCfg := `
routes:
  - path: /mcp
    methods: [POST]
    requests:
      - jrpc: tools/call
        call:
          input:
            query: find
            limit: 10
            filters: [{field: tag, values: [a, b]}]
        response: {status: 200}
`
	cfg, err := config.Parse([]byte(yamlCfg), config.FormatYAML)
	require.NoError(t, err)
	config.ApplyDefaults(cfg)
	r, err := New(cfg.Routes)
	require.NoError(t, err)

	body := `{"method":"tools/call","params":{"arguments":{"limit":10,"query":"find","filters":[{"field":"tag","values":["a","b"]}]}}}`
	mustMatch(t, r, "POST", "/mcp", jsonBody(t, body))

	body = `{"method":"tools/call","params":{"arguments":{"limit":10,"query":"find","filters":[{"field":"tag","values":["b","a"]}]}}}`
	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, body))
}

func TestMatch_ToolsCallWithoutInput(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:     "/mcp",
		Methods:  []string{"POST"},
		Requests: []config.RequestRule{rpcRule(protocol.MethodToolsCall, 200)},
	})

	mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{}}`))
	assertNoMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"tools/call","params":{"arguments":{}}}`))
}

func TestMatch_OtherMethodsIgnoreArguments(t *testing.T) {
	r := newRouter(t, config.RouteConfig{
		Path:     "/mcp",
		Methods:  []string{"POST"},
		Requests: []config.RequestRule{rpcRule("prompts/get", 200)},
	})
	mustMatch(t, r, "POST", "/mcp", jsonBody(t, `{"method":"prompts/get","params":{"arguments":{"x":1}}}`))
}

// ── No fall-through ──

func TestMatch_NoFallThroughToLaterRoutes(t *testing.T) {
	r := newRouter(t,
		config.RouteConfig{Path: "/x", Methods: []string{"POST"}, Requests: []config.RequestRule{bodyRule("a", 201)}},
		config.RouteConfig{Path: "/x", Methods: []string{"POST"}, Requests: []config.RequestRule{bodyRule("b", 202)}},
	)

	mustMatch(t, r, "POST", "/x", protocol.RawBody("a"))

	// "b" would match the second route, but the first route owns /x.
	_, err := r.Match("POST", "/x", protocol.RawBody("b"))
	require.Error(t, err)
	assert.ErrorIs(t, err, mockerrors.ErrNoRoute)
	assert.Contains(t, err.Error(), "has no rule")
}

func TestMatch_RouteWithoutRules(t *testing.T) {
	r := newRouter(t, config.RouteConfig{Path: "/empty"})
	assertNoMatch(t, r, "GET", "/empty", protocol.RawBody(""))
}

func TestMatch_NoRoutes(t *testing.T) {
	r := newRouter(t)
	assert.Equal(t, 0, r.Len())
	assertNoMatch(t, r, "GET", "/", protocol.RawBody(""))
}

// ── Construction ──

func TestNew_InvalidRegex(t *testing.T) {
	_, err := New([]config.RouteConfig{{Path: "(", Regex: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes[0]")
}

func TestNew_UnencodableInput(t *testing.T) {
	_, err := New([]config.RouteConfig{{
		Path:     "/a",
		Requests: []config.RequestRule{{JRPC: "tools/call", Call: &config.CallSpec{Input: map[any]any{1: "x"}}}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call.input")
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	routes := []config.RouteConfig{{
		Path:     "/a",
		Methods:  []string{"GET"},
		Requests: []config.RequestRule{bodyRule("", 200)},
	}}
	r, err := New(routes)
	require.NoError(t, err)

	routes[0].Path = "/b"
	routes[0].Methods[0] = "POST"
	mustMatch(t, r, "GET", "/a", protocol.RawBody(""))
}
