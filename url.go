package courier

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// URLFilter rewrites outgoing requests. Filters run in registration order.
type URLFilter interface {
	// FilterURL rewrites the relative path before it is joined with the
	// base URL. It is not consulted for absolute URLs.
	FilterURL(original string, r *Request) string

	// FilterURLRequest adjusts the built transport request. A non-nil error
	// fails the request without a network call.
	FilterURLRequest(hr *http.Request, r *Request) error
}

// URLFilterFuncs adapts closures to URLFilter. Nil fields pass through.
type URLFilterFuncs struct {
	URL     func(original string, r *Request) string
	Request func(hr *http.Request, r *Request) error
}

func (f URLFilterFuncs) FilterURL(original string, r *Request) string {
	if f.URL == nil {
		return original
	}
	return f.URL(original, r)
}

func (f URLFilterFuncs) FilterURLRequest(hr *http.Request, r *Request) error {
	if f.Request == nil {
		return nil
	}
	return f.Request(hr, r)
}

// CachePathFilter rewrites the cache directory for a request.
type CachePathFilter interface {
	FilterCacheDirPath(original string, r *Request) string
}

// CachePathFilterFunc adapts a function to CachePathFilter.
type CachePathFilterFunc func(original string, r *Request) string

func (f CachePathFilterFunc) FilterCacheDirPath(original string, r *Request) string {
	return f(original, r)
}

// isAbsoluteURL reports whether s already names a scheme and host.
func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// baseFor picks the base URL a relative request resolves against:
// the request's own base, else the CDN when requested, else the session base.
func baseFor(cfg SessionConfig, r *Request) string {
	switch {
	case r.baseURL != "":
		return r.baseURL
	case r.useCDN:
		return cfg.CDNURL
	default:
		return cfg.BaseURL
	}
}

// composeURL produces the final URL for r.
//
// Absolute paths are returned untouched. Relative paths go through filters
// in order and are then joined under the base URL's path, so "users" and
// "/users" against "https://api.example.com/v1" both yield
// "https://api.example.com/v1/users".
func composeURL(cfg SessionConfig, r *Request, filters []URLFilter) (string, error) {
	detail := r.path
	if isAbsoluteURL(detail) {
		return detail, nil
	}

	for _, f := range filters {
		detail = f.FilterURL(detail, r)
	}
	if isAbsoluteURL(detail) {
		return detail, nil
	}

	base := baseFor(cfg, r)
	if base == "" {
		return "", fmt.Errorf("no base URL configured for relative path %q", detail)
	}
	bu, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}
	if bu.Scheme == "" || bu.Host == "" {
		return "", fmt.Errorf("base URL %q is not absolute", base)
	}
	if !strings.HasSuffix(bu.Path, "/") {
		bu.Path += "/"
		bu.RawPath = ""
	}

	ref, err := url.Parse(strings.TrimLeft(detail, "/"))
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", detail, err)
	}
	return bu.ResolveReference(ref).String(), nil
}
