// This file implements parsing of request bodies and day parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tally/internal/core"
)

// maxBodyBytes caps request bodies; event payloads are a single field.
const maxBodyBytes = 4 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser reads a JSON or form-encoded body once.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes from the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse decodes the body as JSON when it looks like JSON, as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns a trimmed string field from the parsed body.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if s, ok := p.jsonData[key].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ParseDayParam reads a DayKey from the query parameter name, falling back
// to def when absent.
func ParseDayParam(query url.Values, name string, def core.DayKey) (core.DayKey, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	day, err := core.ParseDayKey(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s=%q", err, name, v)
	}
	return day, nil
}
