package endpoint

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"time"

	"github.com/roach88/courier"
	"github.com/roach88/courier/cache"
)

// ErrNoFiles is returned when a catalogue directory holds no .cue files.
var ErrNoFiles = errors.New("no CUE files found")

// Catalogue is a compiled set of endpoints.
type Catalogue struct {
	endpoints map[string]*Endpoint
	names     []string
}

// Names returns endpoint names in sorted order.
func (c *Catalogue) Names() []string {
	return append([]string(nil), c.names...)
}

// Get returns the named endpoint.
func (c *Catalogue) Get(name string) (*Endpoint, bool) {
	ep, ok := c.endpoints[name]
	return ep, ok
}

// Len returns the number of endpoints.
func (c *Catalogue) Len() int { return len(c.names) }

// Endpoint is a request template.
type Endpoint struct {
	Name         string
	Description  string
	Method       string
	Path         string
	Placeholders []string
	Response     courier.ResponseType
	Body         courier.BodyEncoding
	CDN          bool
	BaseURL      string
	Timeout      time.Duration
	Params       map[string]any
	Header       map[string]string
	Cache        *cache.Policy
	Require      courier.JSONValidator
	Envelope     *courier.EnvelopeFilter
}

// Expand substitutes path placeholders with path-escaped values from vars.
func (e *Endpoint) Expand(vars map[string]string) (string, error) {
	var missing string
	path := placeholderRE.ReplaceAllStringFunc(e.Path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return url.PathEscape(v)
	})
	if missing != "" {
		return "", fmt.Errorf("endpoint %s: missing value for {%s}", e.Name, missing)
	}
	return path, nil
}

// NewRequest builds a request on m from the template. params are merged
// over the template's params; opts apply after the template's options.
func (e *Endpoint) NewRequest(m *courier.Manager, vars map[string]string, params map[string]any, opts ...courier.RequestOption) (*courier.Request, error) {
	path, err := e.Expand(vars)
	if err != nil {
		return nil, err
	}

	merged := maps.Clone(e.Params)
	if merged == nil && len(params) > 0 {
		merged = make(map[string]any, len(params))
	}
	maps.Copy(merged, params)

	base := []courier.RequestOption{
		courier.WithResponseType(e.Response),
		courier.WithBodyEncoding(e.Body),
	}
	if len(merged) > 0 {
		base = append(base, courier.WithParams(merged))
	}
	for k, v := range e.Header {
		base = append(base, courier.WithHeader(k, v))
	}
	if e.CDN {
		base = append(base, courier.UseCDN())
	}
	if e.BaseURL != "" {
		base = append(base, courier.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		base = append(base, courier.WithTimeout(e.Timeout))
	}
	if e.Cache != nil {
		base = append(base, courier.WithCachePolicy(*e.Cache))
	}
	if len(e.Require) > 0 {
		base = append(base, courier.WithResponseFilter(e.Require))
	}
	if e.Envelope != nil {
		base = append(base, courier.WithResponseFilter(*e.Envelope))
	}
	return m.NewRequest(e.Method, path, append(base, opts...)...), nil
}
