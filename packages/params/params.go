package params

import (
	"encoding/base64"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/abdul-hamid-achik/ws/packages/json"
)

var (
	// ErrEmptyKey is returned when a parameter is set with an empty key
	ErrEmptyKey = errors.New("params: key must not be empty")
	// ErrUnsupportedValue is returned when a value cannot be serialized
	ErrUnsupportedValue = errors.New("params: unsupported value type")
)

// Binary marks a raw payload. In multipart requests it becomes a file part,
// elsewhere it is sent base64 encoded.
type Binary struct {
	Data     []byte
	FileName string
	MimeType string
}

func (b Binary) MarshalJSON() ([]byte, error) {
	return stdjson.Marshal(base64.StdEncoding.EncodeToString(b.Data))
}

// Params is an ordered mapping from key to value. The zero value is not
// usable, use New.
type Params struct {
	m *orderedmap.OrderedMap[string, any]
}

func New() *Params {
	return &Params{m: orderedmap.New[string, any]()}
}

// FromMap builds Params from a map. Keys are inserted in sorted order since
// maps carry no order of their own.
func FromMap(values map[string]any) (*Params, error) {
	p := New()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Set stores value under key. Setting an existing key replaces its value but
// keeps its position.
func (p *Params) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := validate(value); err != nil {
		return fmt.Errorf("%w: key %q: %T", ErrUnsupportedValue, key, value)
	}
	p.m.Set(key, value)
	return nil
}

// Get returns the value stored under key
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return p.m.Get(key)
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order
func (p *Params) Keys() []string {
	keys := make([]string, 0, p.Len())
	p.Each(func(k string, _ any) {
		keys = append(keys, k)
	})
	return keys
}

// Each calls fn for every pair in insertion order
func (p *Params) Each(fn func(key string, value any)) {
	if p == nil {
		return
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Clone returns a shallow copy that can be modified independently
func (p *Params) Clone() *Params {
	c := New()
	p.Each(func(k string, v any) {
		c.m.Set(k, v)
	})
	return c
}

// Merge returns a new Params holding p's pairs overridden by other's.
// Neither input is modified.
func (p *Params) Merge(other *Params) *Params {
	result := p.Clone()
	other.Each(func(k string, v any) {
		result.m.Set(k, v)
	})
	return result
}

// EachBinary calls fn for every binary payload in insertion order. Raw byte
// slices are reported with the key as file name.
func (p *Params) EachBinary(fn func(key string, b Binary)) {
	p.Each(func(k string, v any) {
		switch b := v.(type) {
		case Binary:
			fn(k, b)
		case []byte:
			fn(k, Binary{Data: b, FileName: k})
		}
	})
}

// Values flattens the parameters for query strings and form bodies.
// Nested containers use bracket notation: user[name]=x, ids[]=1.
func (p *Params) Values() url.Values {
	values := url.Values{}
	p.Each(func(k string, v any) {
		flatten(values, k, v)
	})
	return values
}

// FormValues is like Values but leaves out binary payloads, which multipart
// bodies carry as file parts.
func (p *Params) FormValues() url.Values {
	values := url.Values{}
	p.Each(func(k string, v any) {
		switch v.(type) {
		case Binary, []byte:
			return
		}
		flatten(values, k, v)
	})
	return values
}

func (p *Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

func validate(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, stdjson.Number,
		[]byte, Binary, []string, json.JSON:
		return nil
	case *Params:
		if val == nil {
			return ErrUnsupportedValue
		}
		return nil
	case map[string]any:
		for _, nested := range val {
			if err := validate(nested); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, nested := range val {
			if err := validate(nested); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnsupportedValue
	}
}

func flatten(values url.Values, key string, v any) {
	switch val := v.(type) {
	case *Params:
		val.Each(func(k string, nested any) {
			flatten(values, key+"["+k+"]", nested)
		})
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(values, key+"["+k+"]", val[k])
		}
	case []any:
		for _, nested := range val {
			flatten(values, key+"[]", nested)
		}
	case []string:
		for _, s := range val {
			values.Add(key+"[]", s)
		}
	default:
		values.Add(key, scalar(v))
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case stdjson.Number:
		return val.String()
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case Binary:
		return base64.StdEncoding.EncodeToString(val.Data)
	case json.JSON:
		return val.Raw()
	default:
		return fmt.Sprintf("%v", val)
	}
}
