// Package config handles JSON/YAML configuration parsing, defaults, and
// validation for the rpcmock server.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmptyConfig is returned when the configuration file has no content.
var ErrEmptyConfig = errors.New("config file is empty")

// Config is the root configuration for rpcmock. A loaded Config is treated
// as read-only: request handling never mutates it.
type Config struct {
	Listen   ListenConfig   `yaml:"listen" json:"listen"`
	Admin    AdminConfig    `yaml:"admin" json:"admin"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Shutdown ShutdownConfig `yaml:"shutdown" json:"shutdown"`
	Reload   ReloadConfig   `yaml:"reload" json:"reload"`
	Routes   []RouteConfig  `yaml:"routes" json:"routes"`
}

// ListenConfig defines the mock listener address and connection limits.
type ListenConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"` // 0 = unlimited
	RateLimit      int    `yaml:"rate_limit" json:"rate_limit"`           // requests per minute, 0 = off
}

// AdminConfig controls the optional admin listener serving health and metrics.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

// LoggingConfig defines log level, format, and destination.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// ShutdownConfig bounds how long in-flight requests may drain.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// ReloadConfig controls config hot-reload (SIGHUP and file watching).
type ReloadConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Debounce Duration `yaml:"debounce" json:"debounce"`
}

// RouteConfig groups request rules under an HTTP method set and a path pattern.
type RouteConfig struct {
	Path     string        `yaml:"path" json:"path"`
	Regex    bool          `yaml:"regex" json:"regex"`
	Methods  []string      `yaml:"methods" json:"methods"`
	Requests []RequestRule `yaml:"requests" json:"requests"`
	// Request is the older spelling of Requests; ApplyDefaults folds it in.
	Request []RequestRule `yaml:"request,omitempty" json:"request,omitempty"`
}

// CompilePattern compiles a regex route path so that it only matches from
// the start of the request path. The end is left unanchored.
func (r RouteConfig) CompilePattern() (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + r.Path + ")")
}

// RequestRule pairs one request condition with a canned response. Exactly
// one of Body or JRPC is set.
type RequestRule struct {
	Body     *string      `yaml:"body,omitempty" json:"body,omitempty"`
	JRPC     string       `yaml:"jrpc,omitempty" json:"jrpc,omitempty"`
	Call     *CallSpec    `yaml:"call,omitempty" json:"call,omitempty"`
	Response ResponseSpec `yaml:"response" json:"response"`
}

// CallSpec holds the expected tools/call arguments.
type CallSpec struct {
	Input any `yaml:"input" json:"input"`
}

// ResponseSpec describes the response returned for a matched rule.
type ResponseSpec struct {
	Status  int               `yaml:"status" json:"status"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	Body    ResponseBody      `yaml:"body" json:"body"`
	Delay   Duration          `yaml:"delay" json:"delay"`
}

// ResponseBody is either a literal string or a structured value that is
// served as JSON.
type ResponseBody struct {
	Text       string
	Structured bool
	// Encoded is the JSON encoding of a structured body, produced at decode time.
	Encoded []byte
}

// StringBody returns a literal ResponseBody.
func StringBody(s string) ResponseBody {
	return ResponseBody{Text: s}
}

// JSONBody returns a structured ResponseBody for v.
func JSONBody(v any) (ResponseBody, error) {
	var b ResponseBody
	err := b.setValue(v)
	return b, err
}

// Bytes returns the bytes written to the client.
func (b ResponseBody) Bytes() []byte {
	if b.Structured {
		return b.Encoded
	}
	return []byte(b.Text)
}

func (b *ResponseBody) setValue(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding response body: %w", err)
	}
	*b = ResponseBody{Structured: true, Encoded: encoded}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Quoted or plain string scalars
// stay literal; everything else is re-encoded as JSON.
func (b *ResponseBody) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch node.Tag {
		case "!!str":
			*b = ResponseBody{Text: node.Value}
			return nil
		case "!!null":
			*b = ResponseBody{}
			return nil
		}
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return b.setValue(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ResponseBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*b = ResponseBody{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = ResponseBody{Text: s}
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	return b.setValue(v)
}

// Duration is a time.Duration that accepts either a number of seconds
// (e.g. 0.5) or a Go duration string (e.g. "500ms").
type Duration struct {
	time.Duration
}

// Seconds returns a Duration of the given (possibly fractional) seconds.
func Seconds(s float64) Duration {
	return Duration{time.Duration(s * float64(time.Second))}
}

func parseDuration(s string) (Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Seconds(secs), nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration{dur}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a number of seconds or a duration string", value.Line)
	}
	if value.Tag == "!!null" {
		*d = Duration{}
		return nil
	}
	dur, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Seconds(val)
		return nil
	case string:
		dur, err := parseDuration(val)
		if err != nil {
			return err
		}
		*d = dur
		return nil
	case nil:
		*d = Duration{}
		return nil
	}
	return fmt.Errorf("invalid duration %s", string(data))
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Format identifies a configuration file syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatAuto tries JSON first and falls back to YAML.
	FormatAuto Format = "auto"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

// Parse decodes raw configuration bytes without applying defaults.
func Parse(data []byte, format Format) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyConfig
	}

	var cfg Config
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		jsonErr := json.Unmarshal(data, &cfg)
		if jsonErr == nil {
			break
		}
		cfg = Config{}
		if yamlErr := yaml.Unmarshal(data, &cfg); yamlErr != nil {
			return nil, fmt.Errorf("config is neither valid JSON (%v) nor valid YAML (%w)", jsonErr, yamlErr)
		}
	}
	return &cfg, nil
}

// Load reads, parses, applies defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
