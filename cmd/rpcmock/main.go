// Package main is the entrypoint for the rpcmock mock protocol server.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/vivars7/rpcmock/internal/config"
	"github.com/vivars7/rpcmock/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// serveFlags are the listener overrides accepted by the root command.
type serveFlags struct {
	host      string
	port      int
	watch     bool
	adminPort int
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags serveFlags

	root := &cobra.Command{
		Use:   "rpcmock <config>",
		Short: "Configurable mock HTTP/JSON-RPC server",
		Long: `rpcmock answers HTTP and JSON-RPC requests with canned responses taken
from a JSON or YAML config file. Requests are matched on HTTP method, path
(exact or regex prefix), raw body, JSON-RPC method and tools/call arguments.

Send any request to /stop to shut the server down gracefully.`,
		Example: `  rpcmock mocks.yaml
  rpcmock mocks.json --host 0.0.0.0 --port 9000
  rpcmock mocks.yaml --watch --admin-port 9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, args[0], flags)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.Flags().StringVar(&flags.host, "host", "localhost", "host to bind (overrides listen.host)")
	root.Flags().IntVar(&flags.port, "port", 8080, "port to bind (overrides listen.port)")
	root.Flags().BoolVar(&flags.watch, "watch", false, "reload routes when the config file changes or on SIGHUP")
	root.Flags().IntVar(&flags.adminPort, "admin-port", 0, "serve /healthz, /readyz and /metrics on this port")

	root.AddCommand(
		newValidateCmd(),
		newRoutesCmd(),
		newConvertCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// overrides returns a function applying explicitly set flags to a config.
// Flags left at their defaults do not override the file.
func overrides(cmd *cobra.Command, flags serveFlags) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("host") {
			cfg.Listen.Host = flags.host
		}
		if cmd.Flags().Changed("port") {
			cfg.Listen.Port = flags.port
		}
		if cmd.Flags().Changed("admin-port") {
			cfg.Admin.Enabled = true
			cfg.Admin.Port = flags.adminPort
		}
		if flags.watch {
			cfg.Reload.Enabled = true
		}
	}
}

// serve loads the config and runs the server until /stop or a signal.
func serve(cmd *cobra.Command, path string, flags serveFlags) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	apply := overrides(cmd, flags)
	apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	srv, err := server.New(cfg, Version, server.WithConfigPath(path))
	if err != nil {
		return fmt.Errorf("server initialization: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reload.Enabled {
		reloader := config.NewReloader(path, cfg, srv.Logger())
		reloader.SetPrepare(apply)
		reloader.SetResultHook(srv.ReloadResult)
		reloader.Register(srv)
		if err := reloader.Start(ctx); err != nil {
			return fmt.Errorf("starting config watcher: %w", err)
		}
		defer reloader.Stop()
	}

	return srv.Start(ctx)
}

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strict {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
				if err := config.CheckSchema(data); err != nil {
					return err
				}
			}
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			for _, w := range config.Warnings(cfg) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config valid (%d routes)\n", len(cfg.Routes))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also reject unknown keys and mistyped values")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var to, output string

	cmd := &cobra.Command{
		Use:   "convert <config>",
		Short: "Convert a config file between JSON and YAML",
		Long: `Converts a config file between JSON and YAML. The target format defaults to
the opposite of the source format. Keys are written in sorted order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}

			target := config.Format(to)
			if target == "" {
				target = config.FormatJSON
				if config.FormatFromPath(args[0]) == config.FormatJSON {
					target = config.FormatYAML
				}
			}

			out, err := convert(data, target)
			if err != nil {
				return err
			}
			if _, err := config.Parse(out, target); err != nil {
				return fmt.Errorf("converted document is not a valid config: %w", err)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// convert re-encodes a JSON or YAML document as target.
func convert(data []byte, target config.Format) ([]byte, error) {
	// YAMLToJSON accepts JSON input as well, since JSON is a subset of YAML.
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch target {
	case config.FormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, js, "", "  "); err != nil {
			return nil, fmt.Errorf("formatting JSON: %w", err)
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	case config.FormatYAML:
		out, err := yaml.JSONToYAML(js)
		if err != nil {
			return nil, fmt.Errorf("encoding YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown target format %q (use json or yaml)", target)
	}
}

func newInitCmd() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := os.WriteFile(output, []byte(config.SampleYAML()), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "rpcmock.yaml", "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rpcmock %s\n", Version)
		},
	}
}

var _ config.Reloadable = (*server.Server)(nil)
