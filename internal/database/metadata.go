package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// ValueKind is the closed set of metadata value kinds.
type ValueKind uint8

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a metadata value: a string, a number or a bool.
// The zero Value is invalid and is rejected by Metadata.Validate.
type Value struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
}

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number constructs a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Num returns the numeric payload and whether v is a number.
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Boolean returns the bool payload and whether v is a bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Text renders the value for display.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("cannot marshal invalid metadata value")
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case 'n':
		return fmt.Errorf("metadata value must not be null")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("metadata value must be a string, number or bool: %s", data)
		}
		*v = Number(n)
	}
	return nil
}

// Metadata is the typed attribute map attached to an index entry.
type Metadata map[string]Value

// Validate rejects empty keys, zero values and non-finite numbers (which cannot be persisted).
func (m Metadata) Validate() error {
	for k, v := range m {
		if k == "" {
			return fmt.Errorf("metadata key must not be empty")
		}
		if v.kind == 0 {
			return fmt.Errorf("metadata %q has no value", k)
		}
		if v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)) {
			return fmt.Errorf("metadata %q is not a finite number", k)
		}
	}
	return nil
}

// Clone returns an independent copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Equal reports whether both maps hold the same keys and values.
func (m Metadata) Equal(o Metadata) bool {
	return maps.EqualFunc(m, o, Value.Equal)
}

// MetadataFromAny converts decoded JSON attributes into typed metadata.
// Nested objects, arrays and nulls are rejected.
func MetadataFromAny(attrs map[string]any) (Metadata, error) {
	md := make(Metadata, len(attrs))
	for k, raw := range attrs {
		switch x := raw.(type) {
		case string:
			md[k] = String(x)
		case bool:
			md[k] = Bool(x)
		case float64:
			md[k] = Number(x)
		case float32:
			md[k] = Number(float64(x))
		case int:
			md[k] = Number(float64(x))
		case int64:
			md[k] = Number(float64(x))
		case json.Number:
			n, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", k, err)
			}
			md[k] = Number(n)
		default:
			return nil, fmt.Errorf("attribute %q: unsupported value type %T", k, raw)
		}
	}
	return md, md.Validate()
}
