// Package schema models typed extension-config fields. Each field kind
// carries its default and validation rule as explicit data, so a config
// form can be rendered and checked without reflection.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the field variants.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Field is one schema entry: a name, a kind, the kind's default, and
// any constraints. Exactly one of the variant slots is populated,
// matching Kind.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind"`
	Required    bool   `json:"required,omitempty"`

	StringDefault string   `json:"string_default,omitempty"`
	StringEnum    []string `json:"string_enum,omitempty"`

	IntDefault int  `json:"int_default,omitempty"`
	IntMin     *int `json:"int_min,omitempty"`
	IntMax     *int `json:"int_max,omitempty"`

	BoolDefault bool `json:"bool_default,omitempty"`

	// Elem describes every element of an array field.
	Elem *Field `json:"elem,omitempty"`

	// Fields describes the members of an object field.
	Fields []Field `json:"fields,omitempty"`
}

// StringField builds a string field with an optional enum constraint.
func StringField(name, def string, enum ...string) Field {
	return Field{Name: name, Kind: KindString, StringDefault: def, StringEnum: enum}
}

// IntField builds an integer field with inclusive bounds.
func IntField(name string, def, min, max int) Field {
	return Field{Name: name, Kind: KindInt, IntDefault: def, IntMin: &min, IntMax: &max}
}

// BoolField builds a boolean field.
func BoolField(name string, def bool) Field {
	return Field{Name: name, Kind: KindBool, BoolDefault: def}
}

// ArrayField builds an array field whose elements all match elem.
func ArrayField(name string, elem Field) Field {
	return Field{Name: name, Kind: KindArray, Elem: &elem}
}

// ObjectField builds an object field with the given members.
func ObjectField(name string, fields ...Field) Field {
	return Field{Name: name, Kind: KindObject, Fields: fields}
}

// Default returns the field's default value in Go form: the variant's
// default for scalars, an empty slice for arrays, and a map of member
// defaults for objects.
func (f Field) Default() interface{} {
	switch f.Kind {
	case KindString:
		return f.StringDefault
	case KindInt:
		return f.IntDefault
	case KindBool:
		return f.BoolDefault
	case KindArray:
		return []interface{}{}
	case KindObject:
		out := make(map[string]interface{}, len(f.Fields))
		for _, m := range f.Fields {
			out[m.Name] = m.Default()
		}
		return out
	default:
		return nil
	}
}

// Validate checks a decoded JSON value against the field. Numbers
// arrive as json.Number or float64 depending on the decoder; both are
// accepted for int fields as long as the value is integral.
func (f Field) Validate(value interface{}) error {
	if value == nil {
		if f.Required {
			return fmt.Errorf("field %q is required", f.Name)
		}
		return nil
	}

	switch f.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", f.Name, value)
		}
		if len(f.StringEnum) > 0 {
			for _, allowed := range f.StringEnum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("field %q: %q is not one of %v", f.Name, s, f.StringEnum)
		}
		return nil

	case KindInt:
		n, err := intValue(value)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.IntMin != nil && n < *f.IntMin {
			return fmt.Errorf("field %q: %d is below minimum %d", f.Name, n, *f.IntMin)
		}
		if f.IntMax != nil && n > *f.IntMax {
			return fmt.Errorf("field %q: %d is above maximum %d", f.Name, n, *f.IntMax)
		}
		return nil

	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q: expected bool, got %T", f.Name, value)
		}
		return nil

	case KindArray:
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("field %q: expected array, got %T", f.Name, value)
		}
		if f.Elem == nil {
			return fmt.Errorf("field %q: array field has no element schema", f.Name)
		}
		for i, item := range items {
			if err := f.Elem.Validate(item); err != nil {
				return fmt.Errorf("field %q[%d]: %w", f.Name, i, err)
			}
		}
		return nil

	case KindObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("field %q: expected object, got %T", f.Name, value)
		}
		for _, member := range f.Fields {
			if err := member.Validate(obj[member.Name]); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}
}

func intValue(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v.String())
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}
