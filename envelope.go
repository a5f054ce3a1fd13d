package courier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// EnvelopeFilter fails responses whose JSON envelope carries a non-success
// application code, e.g. {"code": 1001, "msg": "quota exceeded"}.
// Bodies that are not JSON or lack the code path pass through.
type EnvelopeFilter struct {
	// CodePath is the gjson path of the application code.
	CodePath string

	// OKCodes are the code values (as strings) meaning success.
	// Defaults to "0".
	OKCodes []string

	// MessagePath optionally names the human-readable message.
	MessagePath string
}

func (f EnvelopeFilter) FilterResponse(r *Request, err error) error {
	if err != nil || f.CodePath == "" {
		return err
	}
	body := r.ResponseBytes()
	if !gjson.ValidBytes(body) {
		return nil
	}
	code := gjson.GetBytes(body, f.CodePath)
	if !code.Exists() {
		return nil
	}

	ok := f.OKCodes
	if len(ok) == 0 {
		ok = []string{"0"}
	}
	if slices.Contains(ok, code.String()) {
		return nil
	}

	msg := "application error"
	if f.MessagePath != "" {
		if m := gjson.GetBytes(body, f.MessagePath); m.Exists() && m.String() != "" {
			msg = m.String()
		}
	}
	return &Error{
		Kind:       KindLogic,
		Message:    msg,
		StatusCode: r.StatusCode(),
		AppCode:    code.String(),
	}
}

// JSONType is the kind of value a JSONValidator expects at a path.
type JSONType string

const (
	JSONAny    JSONType = "any"
	JSONString JSONType = "string"
	JSONNumber JSONType = "number"
	JSONBool   JSONType = "bool"
	JSONObject JSONType = "object"
	JSONArray  JSONType = "array"
)

func (t JSONType) matches(res gjson.Result) bool {
	switch t {
	case JSONAny, "":
		return true
	case JSONString:
		return res.Type == gjson.String
	case JSONNumber:
		return res.Type == gjson.Number
	case JSONBool:
		return res.Type == gjson.True || res.Type == gjson.False
	case JSONObject:
		return res.IsObject()
	case JSONArray:
		return res.IsArray()
	default:
		return false
	}
}

// JSONValidator requires that each path exists in the body with the given
// type. Violations are reported together as one LogicError.
type JSONValidator map[string]JSONType

func (v JSONValidator) FilterResponse(r *Request, err error) error {
	if err != nil || len(v) == 0 {
		return err
	}
	body := r.ResponseBytes()
	if !gjson.ValidBytes(body) {
		return &Error{Kind: KindLogic, Message: "response is not valid JSON", StatusCode: r.StatusCode()}
	}

	paths := make([]string, 0, len(v))
	for p := range v {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var problems []string
	for _, p := range paths {
		res := gjson.GetBytes(body, p)
		switch {
		case !res.Exists():
			problems = append(problems, fmt.Sprintf("%s: missing", p))
		case !v[p].matches(res):
			problems = append(problems, fmt.Sprintf("%s: want %s", p, v[p]))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &Error{
		Kind:       KindLogic,
		Message:    "response failed validation: " + strings.Join(problems, "; "),
		StatusCode: r.StatusCode(),
	}
}
