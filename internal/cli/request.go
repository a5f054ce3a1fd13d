package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/courier"
	"github.com/roach88/courier/cache"
)

// requestFlags are the flags shared by commands that build requests.
type requestFlags struct {
	Method   string
	Params   []string
	Headers  []string
	Vars     []string
	Response string
	JSONBody bool
	TTL      time.Duration
	Version  int64
	NoCache  bool
	Timeout  time.Duration
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.Method, "method", "X", "", "HTTP method (default GET, or the endpoint's)")
	fs.StringArrayVarP(&f.Params, "param", "p", nil, "request parameter key=value (repeatable)")
	fs.StringArrayVarP(&f.Headers, "header", "H", nil, "request header key=value (repeatable)")
	fs.StringArrayVar(&f.Vars, "var", nil, "endpoint path placeholder key=value (repeatable)")
	fs.StringVar(&f.Response, "response", "", "response type (json|xml|plain|raw)")
	fs.BoolVar(&f.JSONBody, "json", false, "send body params as JSON instead of a form")
	fs.DurationVar(&f.TTL, "ttl", 0, "cache responses for this long (0 disables caching)")
	fs.Int64Var(&f.Version, "cache-version", 0, "cache entry version")
	fs.BoolVar(&f.NoCache, "no-cache", false, "skip cached responses (still writes the cache)")
	fs.DurationVar(&f.Timeout, "timeout", 0, "per-request timeout")
}

// parseKV splits key=value pairs.
func parseKV(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--%s %q: want key=value", flag, p)
		}
		out[k] = v
	}
	return out, nil
}

// build creates a request for target, which is a path, an absolute URL or
// @name for a catalogue endpoint.
func (f *requestFlags) build(c *client, target string) (*courier.Request, error) {
	params, err := parseKV("param", f.Params)
	if err != nil {
		return nil, err
	}
	headers, err := parseKV("header", f.Headers)
	if err != nil {
		return nil, err
	}
	vars, err := parseKV("var", f.Vars)
	if err != nil {
		return nil, err
	}

	var opts []courier.RequestOption
	for k, v := range headers {
		opts = append(opts, courier.WithHeader(k, v))
	}
	if f.Response != "" {
		rt, err := courier.ParseResponseType(f.Response)
		if err != nil {
			return nil, err
		}
		opts = append(opts, courier.WithResponseType(rt))
	}
	if f.JSONBody {
		opts = append(opts, courier.WithBodyEncoding(courier.BodyJSON))
	}
	if f.TTL > 0 {
		opts = append(opts, courier.WithCachePolicy(cache.Policy{
			UseCacheResponse:      true,
			TTL:                   f.TTL,
			Version:               f.Version,
			InvalidateOnAppUpdate: true,
		}))
	}
	if f.Timeout > 0 {
		opts = append(opts, courier.WithTimeout(f.Timeout))
	}

	anyParams := make(map[string]any, len(params))
	for k, v := range params {
		anyParams[k] = v
	}

	if name, ok := strings.CutPrefix(target, "@"); ok {
		ep, err := c.endpoint(name)
		if err != nil {
			return nil, err
		}
		if f.Method != "" && !strings.EqualFold(f.Method, ep.Method) {
			return nil, fmt.Errorf("endpoint @%s is %s; --method %s conflicts", name, ep.Method, f.Method)
		}
		return ep.NewRequest(c.mgr, vars, anyParams, opts...)
	}
	if len(vars) > 0 {
		return nil, fmt.Errorf("--var only applies to @endpoint targets")
	}

	method := strings.ToUpper(f.Method)
	if method == "" {
		method = http.MethodGet
	}
	if len(anyParams) > 0 {
		opts = append(opts, courier.WithParams(anyParams))
	}
	return c.mgr.NewRequest(method, target, opts...), nil
}

// RequestView is the printable summary of a finished request.
type RequestView struct {
	ID        string `json:"id"`
	Target    string `json:"target"`
	Method    string `json:"method"`
	URL       string `json:"url,omitempty"`
	State     string `json:"state"`
	Status    int    `json:"status,omitempty"`
	FromCache bool   `json:"from_cache"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Body      any    `json:"body,omitempty"`
}

func viewOf(target string, r *courier.Request, withBody bool) RequestView {
	v := RequestView{
		ID:        r.ID(),
		Target:    target,
		Method:    r.Method(),
		URL:       r.URL(),
		State:     r.State().String(),
		Status:    r.StatusCode(),
		FromCache: r.IsDataFromCache(),
	}
	if err := r.Err(); err != nil {
		v.ErrorKind = string(courier.KindOf(err))
		v.Error = err.Error()
	}
	if withBody {
		if body := r.ResponseBytes(); len(body) > 0 {
			if json.Valid(body) {
				v.Body = json.RawMessage(body)
			} else {
				v.Body = string(body)
			}
		}
	}
	return v
}

// stateColor renders a state name in its colour.
func stateColor(state string) string {
	switch state {
	case courier.StateSucceeded.String():
		return color.GreenString(state)
	case courier.StateFailed.String():
		return color.RedString(state)
	case courier.StateCancelled.String():
		return color.YellowString(state)
	default:
		return state
	}
}

// line renders v as one line of text output.
func (v RequestView) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-9s %s %s", stateColor(v.State), v.Method, v.Target)
	if v.Status != 0 {
		fmt.Fprintf(&b, " (%d)", v.Status)
	}
	if v.FromCache {
		b.WriteString(" " + color.CyanString("[cache]"))
	}
	if v.Error != "" {
		b.WriteString(" " + v.Error)
	}
	return b.String()
}

// bodyText renders a body for text output.
func bodyText(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(b)
	default:
		return fmt.Sprint(b)
	}
}
