package courier

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// ResponseType selects how a response body is decoded.
type ResponseType int

const (
	// ResponseJSON decodes into the request schema, or into any.
	ResponseJSON ResponseType = iota

	// ResponseXML decodes into the request schema, or into an *XMLNode tree.
	ResponseXML

	// ResponsePlain yields the body as a string.
	ResponsePlain

	// ResponseRaw yields the body bytes.
	ResponseRaw
)

func (t ResponseType) String() string {
	switch t {
	case ResponseJSON:
		return "json"
	case ResponseXML:
		return "xml"
	case ResponsePlain:
		return "plain"
	case ResponseRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseResponseType maps a name ("json", "xml", "plain", "raw") to its type.
func ParseResponseType(s string) (ResponseType, error) {
	switch s {
	case "json", "":
		return ResponseJSON, nil
	case "xml":
		return ResponseXML, nil
	case "plain", "text":
		return ResponsePlain, nil
	case "raw":
		return ResponseRaw, nil
	default:
		return 0, fmt.Errorf("unknown response type %q", s)
	}
}

// XMLNode is a generic XML element used when no schema is given.
type XMLNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []*XMLNode `xml:",any"`
}

// decodeBody decodes body per rt. newValue, when non-nil, supplies a pointer
// to decode JSON or XML into. An empty JSON or XML body decodes to nil.
func decodeBody(rt ResponseType, newValue func() any, body []byte) (any, error) {
	switch rt {
	case ResponseRaw:
		return bytes.Clone(body), nil
	case ResponsePlain:
		return string(body), nil
	case ResponseXML:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var v any = &XMLNode{}
		if newValue != nil {
			v = newValue()
		}
		if err := xml.Unmarshal(body, v); err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		return v, nil
	default:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		if newValue != nil {
			v := newValue()
			if err := json.Unmarshal(body, v); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return v, nil
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	}
}
