package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

// schemaJSON describes the config document. Unlike Parse, it rejects unknown
// keys, which catches typos such as "respone" or "method" for "methods".
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "listen": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer"},
        "max_connections": {"type": "integer"},
        "rate_limit": {"type": "integer"}
      }
    },
    "admin": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "host": {"type": "string"},
        "port": {"type": "integer"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string"},
        "format": {"type": "string"},
        "output": {"type": "string"}
      }
    },
    "shutdown": {
      "type": "object",
      "additionalProperties": false,
      "properties": {"timeout": {"$ref": "#/$defs/duration"}}
    },
    "reload": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "debounce": {"$ref": "#/$defs/duration"}
      }
    },
    "routes": {"type": ["array", "null"], "items": {"$ref": "#/$defs/route"}}
  },
  "$defs": {
    "duration": {"type": ["number", "string", "null"]},
    "route": {
      "type": "object",
      "additionalProperties": false,
      "required": ["path"],
      "properties": {
        "path": {"type": "string"},
        "regex": {"type": "boolean"},
        "methods": {"type": "array", "items": {"type": "string"}},
        "requests": {"type": ["array", "null"], "items": {"$ref": "#/$defs/rule"}},
        "request": {"type": ["array", "null"], "items": {"$ref": "#/$defs/rule"}}
      }
    },
    "rule": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "body": {"type": "string"},
        "jrpc": {"type": "string"},
        "call": {
          "type": "object",
          "additionalProperties": false,
          "properties": {"input": true}
        },
        "response": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "status": {"type": "integer"},
            "headers": {"type": ["object", "null"], "additionalProperties": {"type": "string"}},
            "body": true,
            "delay": {"$ref": "#/$defs/duration"}
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("rpcmock.schema.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("adding config schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("rpcmock.schema.json")
	})
	return schema, schemaErr
}

// CheckSchema validates a raw JSON or YAML config document against the
// config schema. All violations are reported, one per line, sorted by location.
func CheckSchema(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	var msgs []string
	collectSchemaErrors(verr, &msgs)
	sort.Strings(msgs)
	return fmt.Errorf("schema errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

func collectSchemaErrors(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		loc := strings.ReplaceAll(strings.TrimPrefix(err.InstanceLocation, "/"), "/", ".")
		if loc == "" {
			loc = "(root)"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}
