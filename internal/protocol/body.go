// Package protocol decodes inbound request bodies into the form the matcher
// consumes and extracts JSON-RPC fields from them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// BodyKind tags which variant a Body holds.
type BodyKind string

const (
	// KindRaw is a body kept as the raw string that was sent.
	KindRaw BodyKind = "raw"
	// KindJSON is a body parsed from application/json.
	KindJSON BodyKind = "json"
)

// ErrMalformedJSON is returned by Decode when a JSON body does not parse.
var ErrMalformedJSON = errors.New("malformed JSON body")

// Body is either Raw(string) or JSON(value). The variant is chosen once, at
// decode time, from the request's Content-Type.
type Body struct {
	kind  BodyKind
	raw   string
	value any
}

// RawBody returns a Raw body. An absent body is RawBody("").
func RawBody(s string) Body {
	return Body{kind: KindRaw, raw: s}
}

// JSONBody returns a JSON body holding a value decoded with encoding/json.
func JSONBody(v any) Body {
	return Body{kind: KindJSON, value: v}
}

// Kind reports the variant. The zero Body is Raw("").
func (b Body) Kind() BodyKind {
	if b.kind == "" {
		return KindRaw
	}
	return b.kind
}

// Raw returns the raw string and true for a Raw body.
func (b Body) Raw() (string, bool) {
	return b.raw, b.Kind() == KindRaw
}

// JSON returns the decoded value and true for a JSON body.
func (b Body) JSON() (any, bool) {
	return b.value, b.kind == KindJSON
}

// Decode reads the whole request body. A non-empty body whose media type is
// application/json is parsed; anything else stays raw.
func Decode(r *http.Request) (Body, error) {
	if r.Body == nil {
		return RawBody(""), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return Body{}, fmt.Errorf("reading request body: %w", err)
	}

	if len(data) == 0 || !IsJSONContentType(r.Header.Get("Content-Type")) {
		return RawBody(string(data)), nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Body{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return JSONBody(v), nil
}

// IsJSONContentType reports whether a Content-Type header names application/json.
// Parameters such as charset are ignored.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
