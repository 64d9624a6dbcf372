package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// TransformKind names a store-side field transform.
type TransformKind string

const (
	TransformServerTimestamp TransformKind = "serverTimestamp"
	TransformArrayUnion      TransformKind = "arrayUnion"
	TransformArrayRemove     TransformKind = "arrayRemove"
)

// TimestampLayout is the layout used for resolved server timestamps.
const TimestampLayout = time.RFC3339Nano

const transformKey = "$transform"

// Transform is a field value the store resolves at write time.
type Transform struct {
	Kind   TransformKind
	Values []any
}

// ServerTimestamp resolves to the store's clock when the write is applied.
func ServerTimestamp() Transform {
	return Transform{Kind: TransformServerTimestamp}
}

// ArrayUnion adds each value to the array field unless already present.
func ArrayUnion(values ...any) Transform {
	return Transform{Kind: TransformArrayUnion, Values: values}
}

// ArrayRemove removes every occurrence of each value from the array field.
func ArrayRemove(values ...any) Transform {
	return Transform{Kind: TransformArrayRemove, Values: values}
}

type transformWire struct {
	Kind   TransformKind `json:"$transform"`
	Values []any         `json:"values,omitempty"`
}

// MarshalJSON encodes the transform as a tagged object so it survives the
// sync transport.
func (t Transform) MarshalJSON() ([]byte, error) {
	return json.Marshal(transformWire{Kind: t.Kind, Values: t.Values})
}

// Apply returns a copy of current with updates merged in. Plain values are
// normalized to their JSON form; transforms are resolved against now.
func Apply(current, updates Fields, now time.Time) (Fields, error) {
	out := current.Clone()
	for key, value := range updates {
		var tr *Transform
		switch v := value.(type) {
		case Transform:
			tr = &v
		case *Transform:
			tr = v
		}
		if tr == nil {
			normalized, err := Normalize(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out[key] = normalized
			continue
		}

		switch tr.Kind {
		case TransformServerTimestamp:
			out[key] = now.UTC().Format(TimestampLayout)
		case TransformArrayUnion:
			arr := asArray(out[key])
			for _, raw := range tr.Values {
				v, err := Normalize(raw)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", key, err)
				}
				if !contains(arr, v) {
					arr = append(arr, v)
				}
			}
			out[key] = arr
		case TransformArrayRemove:
			arr := asArray(out[key])
			for _, raw := range tr.Values {
				v, err := Normalize(raw)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", key, err)
				}
				arr = without(arr, v)
			}
			out[key] = arr
		default:
			return nil, fmt.Errorf("field %q: unknown transform %q", key, tr.Kind)
		}
	}
	return out, nil
}

// Normalize converts v into the value a JSON round trip would produce.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t, nil
	case Transform, *Transform:
		return nil, fmt.Errorf("transform is only allowed as a top-level field value")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported field value %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeFields serializes resolved fields for persistence.
func EncodeFields(f Fields) ([]byte, error) {
	if f == nil {
		f = Fields{}
	}
	return json.Marshal(f)
}

// DecodeFields parses persisted fields.
func DecodeFields(data []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

// ParseFields decodes fields received over the wire, turning tagged
// transform objects at the top level back into Transform values.
func ParseFields(data []byte) (Fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	out := make(Fields, len(raw))
	for key, msg := range raw {
		var probe map[string]json.RawMessage
		if json.Unmarshal(msg, &probe) == nil {
			if _, ok := probe[transformKey]; ok {
				var w transformWire
				if err := json.Unmarshal(msg, &w); err != nil {
					return nil, fmt.Errorf("field %q: %w", key, err)
				}
				out[key] = Transform{Kind: w.Kind, Values: w.Values}
				continue
			}
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func asArray(v any) []any {
	arr, ok := v.([]any)
	if !ok {
		return []any{}
	}
	return append([]any{}, arr...)
}

func contains(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func without(arr []any, v any) []any {
	out := arr[:0]
	for _, e := range arr {
		if !reflect.DeepEqual(e, v) {
			out = append(out, e)
		}
	}
	return out
}
