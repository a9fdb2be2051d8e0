package game

import (
	"reflect"
)

// Schema identifies which FlipMatch contract version produced a game tuple.
type Schema uint8

const (
	SchemaUnknown Schema = iota
	// SchemaFull is the FlipMatch struct with name, timestamps and card order.
	SchemaFull
	// SchemaLite is FlipMatchLite: no name, createdAt, completedAt, endTime
	// or cardOrder, and winnerScore instead of winnerFlipCount.
	SchemaLite
)

func (s Schema) String() string {
	switch s {
	case SchemaFull:
		return "full"
	case SchemaLite:
		return "lite"
	default:
		return "unknown"
	}
}

// Fields is a decoded tuple keyed by its ABI component names.
type Fields map[string]interface{}

// Has reports whether the tuple carried the named component.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// RawGame is a getGame result tagged with the schema it was decoded as.
type RawGame struct {
	Schema Schema
	Fields Fields
}

// RawPlayer is a getPlayer result.
type RawPlayer struct {
	Fields Fields
}

// DetectSchema picks the contract version from the fields present.
func DetectSchema(f Fields) Schema {
	switch {
	case f.Has("name") || f.Has("createdAt") || f.Has("cardOrder"):
		return SchemaFull
	case f.Has("winnerScore"):
		return SchemaLite
	default:
		return SchemaUnknown
	}
}

// NewRawGame wraps decoded fields, detecting their schema.
func NewRawGame(f Fields) RawGame {
	return RawGame{Schema: DetectSchema(f), Fields: f}
}

// FieldsOf flattens an ABI-decoded tuple struct into Fields using the json
// tags go-ethereum attaches to generated tuple types. Maps pass through.
func FieldsOf(v interface{}) Fields {
	if v == nil {
		return Fields{}
	}
	if f, ok := v.(Fields); ok {
		return f
	}
	if m, ok := v.(map[string]interface{}); ok {
		return Fields(m)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Fields{}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return Fields{}
	}
	out := make(Fields, rv.NumField())
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Tag.Get("json")
		if name == "" || name == "-" {
			name = lowerFirst(sf.Name)
		}
		out[name] = rv.Field(i).Interface()
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
