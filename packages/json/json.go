package json

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidJSON is returned when a body is not well-formed JSON
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrNotArray is returned when no array exists at a key path
	ErrNotArray = errors.New("no array at key path")
)

// Kind identifies the variant held by a JSON value
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// JSON is an immutable JSON tree. The zero value is null.
type JSON struct {
	r gjson.Result
}

// Parse validates and parses a body. An empty or whitespace-only body is null.
func Parse(body []byte) (JSON, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return JSON{}, nil
	}
	if !gjson.ValidBytes(body) {
		return JSON{}, fmt.Errorf("%w: %s", ErrInvalidJSON, preview(body))
	}
	return JSON{r: gjson.ParseBytes(body)}, nil
}

// MustParse is like Parse but panics on invalid input. Meant for literals.
func MustParse(s string) JSON {
	j, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return j
}

// FromValue marshals a Go value and parses the result
func FromValue(v any) (JSON, error) {
	data, err := stdjson.Marshal(v)
	if err != nil {
		return JSON{}, err
	}
	return Parse(data)
}

func (j JSON) Kind() Kind {
	switch j.r.Type {
	case gjson.False, gjson.True:
		return Bool
	case gjson.Number:
		return Number
	case gjson.String:
		return String
	case gjson.JSON:
		if j.r.IsArray() {
			return Array
		}
		return Object
	default:
		return Null
	}
}

func (j JSON) IsNull() bool {
	return j.Kind() == Null
}

func (j JSON) AsString() (string, bool) {
	if j.Kind() != String {
		return "", false
	}
	return j.r.Str, true
}

func (j JSON) AsInt() (int64, bool) {
	if j.Kind() != Number {
		return 0, false
	}
	return j.r.Int(), true
}

func (j JSON) AsFloat() (float64, bool) {
	if j.Kind() != Number {
		return 0, false
	}
	return j.r.Num, true
}

func (j JSON) AsBool() (bool, bool) {
	if j.Kind() != Bool {
		return false, false
	}
	return j.r.Bool(), true
}

func (j JSON) AsArray() ([]JSON, bool) {
	if j.Kind() != Array {
		return nil, false
	}
	items := j.r.Array()
	out := make([]JSON, len(items))
	for i, item := range items {
		out[i] = JSON{r: item}
	}
	return out, true
}

func (j JSON) AsObject() (map[string]JSON, bool) {
	if j.Kind() != Object {
		return nil, false
	}
	fields := j.r.Map()
	out := make(map[string]JSON, len(fields))
	for k, v := range fields {
		out[k] = JSON{r: v}
	}
	return out, true
}

// Get looks up a gjson path. The empty path is the value itself.
func (j JSON) Get(path string) (JSON, bool) {
	if path == "" {
		return j, true
	}
	if j.Kind() != Array && j.Kind() != Object {
		return JSON{}, false
	}
	res := j.r.Get(path)
	if !res.Exists() {
		return JSON{}, false
	}
	return JSON{r: res}, true
}

// ArrayAt returns the elements of the array found at path
func (j JSON) ArrayAt(path string) ([]JSON, error) {
	v, ok := j.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w %q: missing", ErrNotArray, path)
	}
	items, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("%w %q: found %s", ErrNotArray, path, v.Kind())
	}
	return items, nil
}

// Value converts the tree into plain Go values (map[string]any, []any, ...)
func (j JSON) Value() any {
	return j.r.Value()
}

// Raw returns the JSON text of the value
func (j JSON) Raw() string {
	if j.r.Raw == "" {
		return "null"
	}
	return j.r.Raw
}

func (j JSON) String() string {
	return j.Raw()
}

func (j JSON) MarshalJSON() ([]byte, error) {
	return []byte(j.Raw()), nil
}

// Decode unmarshals the value into v
func (j JSON) Decode(v any) error {
	return stdjson.Unmarshal([]byte(j.Raw()), v)
}

// DecodeAt unmarshals the value found at path into v
func (j JSON) DecodeAt(path string, v any) error {
	sub, ok := j.Get(path)
	if !ok {
		return fmt.Errorf("no value at key path %q", path)
	}
	return sub.Decode(v)
}

func preview(body []byte) string {
	const limit = 64
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
