package courier

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/sjson"

	"github.com/roach88/courier/internal/canon"
)

// BodyEncoding selects how params are sent for methods with a body.
type BodyEncoding int

const (
	// BodyForm sends params as application/x-www-form-urlencoded.
	BodyForm BodyEncoding = iota

	// BodyJSON sends params as a JSON object. Dotted keys nest:
	// "user.name" becomes {"user":{"name":...}}.
	BodyJSON

	// BodyRaw sends the bytes given to WithRawBody verbatim; params go to
	// the query string.
	BodyRaw
)

// paramsInQuery reports whether method carries params in the URL.
func paramsInQuery(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	default:
		return false
	}
}

// formValues flattens params into url.Values in key order. Slices become
// repeated keys; everything else is formatted with fmt.
func formValues(params map[string]any) url.Values {
	vals := url.Values{}
	for _, k := range canon.SortedKeys(params) {
		switch v := params[k].(type) {
		case nil:
			vals.Add(k, "")
		case []string:
			for _, s := range v {
				vals.Add(k, s)
			}
		case []any:
			for _, e := range v {
				vals.Add(k, fmt.Sprint(e))
			}
		default:
			vals.Add(k, fmt.Sprint(v))
		}
	}
	return vals
}

// jsonBody builds a JSON object from params using sjson paths.
func jsonBody(params map[string]any) ([]byte, error) {
	body := []byte("{}")
	for _, k := range canon.SortedKeys(params) {
		var err error
		body, err = sjson.SetBytes(body, k, params[k])
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", k, err)
		}
	}
	return body, nil
}

// encodeParams places params in rawURL's query or in a body, returning the
// final URL, body reader and content type.
func encodeParams(method, rawURL string, params map[string]any, enc BodyEncoding, raw []byte, rawType string) (string, io.Reader, string, error) {
	inQuery := paramsInQuery(method) || enc == BodyRaw
	if inQuery && len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", nil, "", fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range formValues(params) {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	if paramsInQuery(method) {
		return rawURL, nil, "", nil
	}

	switch enc {
	case BodyRaw:
		return rawURL, bytes.NewReader(raw), rawType, nil
	case BodyJSON:
		body, err := jsonBody(params)
		if err != nil {
			return "", nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return rawURL, bytes.NewReader(body), "application/json", nil
	default:
		return rawURL, bytes.NewReader([]byte(formValues(params).Encode())), "application/x-www-form-urlencoded", nil
	}
}
