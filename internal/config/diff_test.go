package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *Config {
	body := ""
	cfg := &Config{
		Routes: []RouteConfig{
			{Path: "/a", Requests: []RequestRule{{Body: &body}}},
			{Path: "/b", Requests: []RequestRule{{JRPC: "ping"}}},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func findChange(changes []Change, field string) (Change, bool) {
	for _, c := range changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

func TestDiff_Identical(t *testing.T) {
	assert.Empty(t, Diff(baseConfig(), baseConfig()))
}

func TestDiff_ListenIsNotReloadable(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Listen.Port = 9000
	new.Admin.Enabled = true

	changes := Diff(old, new)
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.False(t, c.Reloadable, c.Field)
	}
	c, ok := findChange(changes, "listen.port")
	require.True(t, ok)
	assert.Equal(t, 8080, c.OldValue)
	assert.Equal(t, 9000, c.NewValue)
}

func TestDiff_RoutesAreReloadable(t *testing.T) {
	t.Run("modified", func(t *testing.T) {
		old, new := baseConfig(), baseConfig()
		new.Routes[1].Requests[0].JRPC = "pong"

		changes := Diff(old, new)
		require.Len(t, changes, 1)
		assert.Equal(t, "routes[1]", changes[0].Field)
		assert.True(t, changes[0].Reloadable)
	})

	t.Run("added", func(t *testing.T) {
		old, new := baseConfig(), baseConfig()
		new.Routes = append(new.Routes, RouteConfig{Path: "/c", Methods: []string{"POST"}})

		changes := Diff(old, new)
		require.Len(t, changes, 1)
		assert.Equal(t, "routes[2]", changes[0].Field)
		assert.Nil(t, changes[0].OldValue)
		assert.Equal(t, "[POST] /c (exact, 0 rules)", changes[0].NewValue)
	})

	t.Run("removed", func(t *testing.T) {
		old, new := baseConfig(), baseConfig()
		new.Routes = new.Routes[:1]

		changes := Diff(old, new)
		require.Len(t, changes, 1)
		assert.Equal(t, "routes[1]", changes[0].Field)
		assert.Nil(t, changes[0].NewValue)
	})

	t.Run("reordered", func(t *testing.T) {
		old, new := baseConfig(), baseConfig()
		new.Routes[0], new.Routes[1] = new.Routes[1], new.Routes[0]

		assert.Len(t, Diff(old, new), 2)
	})
}
