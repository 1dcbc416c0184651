package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vivars7/rpcmock/internal/config"
)

// maxMatchWidth caps the body/input excerpt shown per rule.
const maxMatchWidth = 40

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes <config>",
		Short: "List the routes and rules of a config file in match order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			renderRoutes(cmd.OutOrStdout(), cfg.Routes)
			return nil
		},
	}
}

func renderRoutes(w io.Writer, routes []config.RouteConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Methods", "Path", "Rule", "Match", "Status", "Delay"})

	for i, rc := range routes {
		path := rc.Path
		if rc.Regex {
			path += " (regex)"
		}
		methods := strings.Join(rc.Methods, ",")

		if len(rc.Requests) == 0 {
			t.AppendRow(table.Row{i, methods, path, "-", "(no rules)", "", ""})
			continue
		}
		for j, rq := range rc.Requests {
			delay := ""
			if d := rq.Response.Delay.Duration; d > 0 {
				delay = d.String()
			}
			t.AppendRow(table.Row{i, methods, path, j, describeRule(rq), rq.Response.Status, delay})
		}
	}
	t.AppendFooter(table.Row{"", "", "", "", "routes", len(routes), ""})
	t.Render()
}

// describeRule summarizes what a rule matches on.
func describeRule(rq config.RequestRule) string {
	switch {
	case rq.Body != nil:
		return "body " + truncate(strconv.Quote(*rq.Body), maxMatchWidth)
	case rq.Call != nil:
		input, err := json.Marshal(rq.Call.Input)
		if err != nil {
			input = []byte(fmt.Sprint(rq.Call.Input))
		}
		return "jrpc " + rq.JRPC + " " + truncate(string(input), maxMatchWidth)
	default:
		return "jrpc " + rq.JRPC
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
