package endpoint

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/courier"
	"github.com/roach88/courier/cache"
)

//go:embed schema.cue
var schemaSource string

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// CompileError locates a problem in a catalogue.
type CompileError struct {
	Endpoint string
	Field    string
	Message  string
	Pos      token.Pos
}

func (e *CompileError) Error() string {
	where := e.Field
	if e.Endpoint != "" {
		where = "endpoint." + e.Endpoint
		if e.Field != "" {
			where += "." + e.Field
		}
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(name string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Endpoint: name, Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Endpoint: name, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// rawEndpoint is the decoded form of a schema-checked endpoint.
type rawEndpoint struct {
	Description string            `json:"description"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Response    string            `json:"response"`
	Body        string            `json:"body"`
	CDN         bool              `json:"cdn"`
	BaseURL     string            `json:"base_url"`
	Timeout     string            `json:"timeout"`
	Params      map[string]any    `json:"params"`
	Headers     map[string]string `json:"headers"`
	Cache       *struct {
		TTL                   string `json:"ttl"`
		Version               int64  `json:"version"`
		Fingerprint           string `json:"fingerprint"`
		InvalidateOnAppUpdate bool   `json:"invalidate_on_app_update"`
		UseResponse           bool   `json:"use_response"`
	} `json:"cache"`
	Require  map[string]string `json:"require"`
	Envelope *struct {
		Code    string   `json:"code"`
		OK      []string `json:"ok"`
		Message string   `json:"message"`
	} `json:"envelope"`
}

// Compile parses catalogue source. filename is used in error positions.
func Compile(src []byte, filename string) (*Catalogue, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("", err)
	}
	return compileValue(ctx, v)
}

// Load reads a catalogue file, or every .cue file in a directory unified
// into one catalogue.
func Load(path string) (*Catalogue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("endpoint catalogue: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("endpoint catalogue: %w", err)
		}
		return Compile(src, path)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("endpoint catalogue: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("endpoint catalogue: %w in %s", ErrNoFiles, path)
	}
	sort.Strings(files)

	ctx := cuecontext.New()
	var merged cue.Value
	for i, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("endpoint catalogue: %w", err)
		}
		v := ctx.CompileBytes(src, cue.Filename(f))
		if err := v.Err(); err != nil {
			return nil, formatCUEError("", err)
		}
		if i == 0 {
			merged = v
		} else {
			merged = merged.Unify(v)
		}
	}
	if err := merged.Err(); err != nil {
		return nil, formatCUEError("", err)
	}
	return compileValue(ctx, merged)
}

func compileValue(ctx *cue.Context, v cue.Value) (*Catalogue, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("endpoint schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Endpoint"))

	endpoints := v.LookupPath(cue.ParsePath("endpoint"))
	if !endpoints.Exists() {
		return nil, &CompileError{Field: "endpoint", Message: "no endpoints declared", Pos: v.Pos()}
	}
	iter, err := endpoints.Fields()
	if err != nil {
		return nil, formatCUEError("", err)
	}

	cat := &Catalogue{endpoints: make(map[string]*Endpoint)}
	for iter.Next() {
		name := iter.Label()
		ep, err := compileEndpoint(name, iter.Value(), def.Unify(iter.Value()))
		if err != nil {
			return nil, err
		}
		cat.endpoints[name] = ep
		cat.names = append(cat.names, name)
	}
	if len(cat.names) == 0 {
		return nil, &CompileError{Field: "endpoint", Message: "no endpoints declared", Pos: endpoints.Pos()}
	}
	sort.Strings(cat.names)
	return cat, nil
}

// compileEndpoint decodes v, the schema-unified form of src. Field errors
// point into src so positions name the catalogue rather than the schema.
func compileEndpoint(name string, src, v cue.Value) (*Endpoint, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(name, err)
	}
	var raw rawEndpoint
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(name, err)
	}

	ep := &Endpoint{
		Name:        name,
		Description: raw.Description,
		Method:      raw.Method,
		Path:        raw.Path,
		CDN:         raw.CDN,
		BaseURL:     raw.BaseURL,
		Params:      raw.Params,
		Header:      raw.Headers,
	}
	fieldErr := func(field, msg string) error {
		pos := src.Pos()
		if fv := src.LookupPath(cue.ParsePath(field)); fv.Exists() {
			pos = fv.Pos()
		}
		return &CompileError{Endpoint: name, Field: field, Message: msg, Pos: pos}
	}

	rt, err := courier.ParseResponseType(raw.Response)
	if err != nil {
		return nil, fieldErr("response", err.Error())
	}
	ep.Response = rt
	if raw.Body == "json" {
		ep.Body = courier.BodyJSON
	}

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil || d <= 0 {
			return nil, fieldErr("timeout", fmt.Sprintf("invalid duration %q", raw.Timeout))
		}
		ep.Timeout = d
	}

	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(raw.Path, -1) {
		if seen[m[1]] {
			return nil, fieldErr("path", fmt.Sprintf("placeholder {%s} appears twice", m[1]))
		}
		seen[m[1]] = true
		ep.Placeholders = append(ep.Placeholders, m[1])
	}
	if rest := placeholderRE.ReplaceAllString(raw.Path, ""); strings.ContainsAny(rest, "{}") {
		return nil, fieldErr("path", "unbalanced or invalid placeholder")
	}

	if c := raw.Cache; c != nil {
		ttl, err := time.ParseDuration(c.TTL)
		if err != nil {
			return nil, fieldErr("cache.ttl", fmt.Sprintf("invalid duration %q", c.TTL))
		}
		ep.Cache = &cache.Policy{
			UseCacheResponse:      c.UseResponse,
			TTL:                   ttl,
			Version:               c.Version,
			SensitiveFingerprint:  c.Fingerprint,
			InvalidateOnAppUpdate: c.InvalidateOnAppUpdate,
		}
	}

	if len(raw.Require) > 0 {
		if ep.Response != courier.ResponseJSON {
			return nil, fieldErr("require", "required paths need a json response")
		}
		ep.Require = make(courier.JSONValidator, len(raw.Require))
		for path, kind := range raw.Require {
			ep.Require[path] = courier.JSONType(kind)
		}
	}
	if e := raw.Envelope; e != nil {
		ep.Envelope = &courier.EnvelopeFilter{CodePath: e.Code, OKCodes: e.OK, MessagePath: e.Message}
	}
	return ep, nil
}
