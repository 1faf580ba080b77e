// internal/common/validation/input.go
// Request fields visible to validation rules

package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
)

// ErrInvalidBody is returned when the body is not a JSON object
var ErrInvalidBody = errors.New("invalid request body")

// Input holds the decoded JSON body and the query string of a request.
// Lookups check the body first and then the query. A field read from the
// query is copied into the body, so the handler decodes the checked value.
type Input struct {
	body       map[string]any
	query      url.Values
	bodyDirty  bool
	queryDirty bool
	fromQuery  map[string]bool
}

// NewInput decodes raw as a JSON object. An empty body yields no fields.
func NewInput(raw []byte, query url.Values) (*Input, error) {
	in := &Input{body: map[string]any{}, query: query, fromQuery: map[string]bool{}}
	if in.query == nil {
		in.query = url.Values{}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return in, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, ErrInvalidBody
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrInvalidBody
	}
	in.body = obj

	return in, nil
}

// Has reports whether the field is present in the body or the query
func (in *Input) Has(field string) bool {
	if _, ok := in.body[field]; ok {
		return true
	}
	return in.query.Has(field)
}

// Get returns the textual form of the field, or "" when missing
func (in *Input) Get(field string) string {
	if v, ok := in.body[field]; ok {
		return stringify(v)
	}
	if !in.query.Has(field) {
		return ""
	}

	value := in.query.Get(field)
	in.body[field] = value
	in.bodyDirty = true
	in.fromQuery[field] = true
	return value
}

// Set overwrites the field in the body and, when it came from there, in the query
func (in *Input) Set(field, value string) {
	if !in.Has(field) {
		return
	}
	if _, ok := in.body[field]; !ok {
		in.fromQuery[field] = true
	}
	in.body[field] = value
	in.bodyDirty = true

	if in.fromQuery[field] {
		in.query.Set(field, value)
		in.queryDirty = true
	}
}

// Body returns the body to forward, re-encoded when a sanitizer changed it
func (in *Input) Body(original []byte) ([]byte, error) {
	if !in.bodyDirty {
		return original, nil
	}
	return json.Marshal(in.body)
}

// Query returns the possibly sanitized query values
func (in *Input) Query() url.Values {
	return in.query
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
