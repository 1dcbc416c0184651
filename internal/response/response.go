// Package response turns a matched rule's response spec into bytes on the wire.
package response

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vivars7/rpcmock/internal/config"
)

// ContentTypeJSON is injected for structured bodies when no Content-Type is configured.
const ContentTypeJSON = "application/json"

// Header is a single response header in emission order.
type Header struct {
	Name  string
	Value string
}

// Rendered is a fully prepared response.
type Rendered struct {
	Status  int
	Headers []Header
	Body    []byte
	Delay   time.Duration
}

// Render prepares the response described by spec. Configured headers come
// first in name order; Content-Type is appended for structured bodies unless
// a Content-Type header is already configured (compared case-insensitively).
func Render(spec config.ResponseSpec) Rendered {
	status := spec.Status
	if status == 0 {
		status = http.StatusOK
	}

	names := make([]string, 0, len(spec.Headers))
	for name := range spec.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]Header, 0, len(names)+1)
	hasContentType := false
	for _, name := range names {
		if strings.EqualFold(name, "Content-Type") {
			hasContentType = true
		}
		headers = append(headers, Header{Name: name, Value: spec.Headers[name]})
	}
	if spec.Body.Structured && !hasContentType {
		headers = append(headers, Header{Name: "Content-Type", Value: ContentTypeJSON})
	}

	return Rendered{
		Status:  status,
		Headers: headers,
		Body:    spec.Body.Bytes(),
		Delay:   spec.Delay.Duration,
	}
}

// Write waits out the configured delay and then writes the response. The wait
// is bounded by ctx; if ctx ends first nothing is written and ctx.Err() is
// returned.
func Write(ctx context.Context, w http.ResponseWriter, r Rendered) error {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h := w.Header()
	for _, hdr := range r.Headers {
		h.Add(hdr.Name, hdr.Value)
	}

	if !bodyAllowed(r.Status) {
		w.WriteHeader(r.Status)
		return nil
	}

	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	_, err := w.Write(r.Body)
	return err
}

// bodyAllowed mirrors net/http: 1xx, 204 and 304 responses carry no body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
