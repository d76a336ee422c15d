package edk

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FieldType enumerates the structural types a parameter field may declare.
type FieldType string

const (
	TString FieldType = "string"
	TInt    FieldType = "int"
	TFloat  FieldType = "float"
	TBool   FieldType = "bool"
	TList   FieldType = "list"
	TMap    FieldType = "map"
	// TAny accepts any value. Useful for fields whose shape is only known
	// to the plugin, like pass-through widget content.
	TAny FieldType = "any"
)

// Field declares one parameter a plugin accepts.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Min/Max bound numeric fields when non-nil.
	Min, Max *float64
	// Enum restricts a string field to the listed values when non-empty.
	Enum []string
	// Elem validates each element of a TList field when non-nil.
	Elem *Field
	// Fields validates the contents of a TMap field when non-empty.
	Fields []Field
	Help   string
}

// Schema is a plugin's declared parameter schema. Field order is the order
// violations are reported in, so validation is deterministic.
type Schema struct {
	Fields []Field
}

// Params is a validated parameter map as handed to Plugin.Invoke.
type Params map[string]interface{}

// String returns the named string parameter, or "" if absent.
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns the named integer parameter, or def if absent.
func (p Params) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the named bool parameter, or def if absent.
func (p Params) Bool(name string, def bool) bool {
	if b, ok := p[name].(bool); ok {
		return b
	}
	return def
}

// List returns the named list parameter, or nil if absent. Values produced
// by loader steps and referenced as "@key.all" arrive as Rows; those are
// normalized to a generic slice here.
func (p Params) List(name string) []interface{} {
	switch v := p[name].(type) {
	case []interface{}:
		return v
	case Rows:
		out := make([]interface{}, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out
	}
	return nil
}

// Rows returns the named parameter as Rows if it holds tabular data.
func (p Params) Rows(name string) Rows {
	switch v := p[name].(type) {
	case Rows:
		return v
	case []interface{}:
		out := make(Rows, 0, len(v))
		for _, e := range v {
			if r, ok := e.(Row); ok {
				out = append(out, r)
			}
		}
		if len(out) == len(v) {
			return out
		}
	}
	return nil
}

// ParameterValidationError reports the first schema violation found in a
// step's raw parameters.
type ParameterValidationError struct {
	Plugin    string
	FieldPath string
	Reason    string
}

func (e *ParameterValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for plugin '%s': %s: %s", e.Plugin, e.FieldPath, e.Reason)
}

// Validate structurally checks raw against the schema and returns the
// validated parameter map. It fails on the first violation encountered,
// walking fields in declaration order. Unknown parameters are rejected so
// configuration typos surface instead of being silently ignored.
//
// When skipRefs is true, values that are (or contain) unresolved References
// are passed over; this is the configuration-load-time check, where
// reference values are not yet known.
func (s Schema) validate(plugin string, raw map[string]interface{}, skipRefs bool) (Params, error) {
	known := make(map[string]struct{}, len(s.Fields))
	out := make(Params, len(raw))
	for _, f := range s.Fields {
		known[f.Name] = struct{}{}
		v, ok := raw[f.Name]
		if !ok {
			// A reference can change a value's type at run time, but it can
			// never add a missing key, so absence is checkable statically.
			if f.Required {
				return nil, &ParameterValidationError{Plugin: plugin, FieldPath: f.Name, Reason: "required parameter is missing"}
			}
			continue
		}
		if skipRefs && containsReference(v) {
			out[f.Name] = v
			continue
		}
		cv, err := checkField(plugin, f.Name, f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = cv
	}
	for k := range raw {
		if _, ok := known[k]; !ok {
			return nil, &ParameterValidationError{Plugin: plugin, FieldPath: k, Reason: "unknown parameter"}
		}
	}
	return out, nil
}

// Validate checks fully-resolved parameters, as done immediately before each
// plugin invocation.
func (s Schema) Validate(plugin string, raw map[string]interface{}) (Params, error) {
	return s.validate(plugin, raw, false)
}

// ValidateStatic checks literal parameters at configuration load time,
// skipping reference values whose resolved type is unknown until run time.
func (s Schema) ValidateStatic(plugin string, raw map[string]interface{}) error {
	_, err := s.validate(plugin, raw, true)
	return err
}

func checkField(plugin, path string, f Field, v interface{}) (interface{}, error) {
	fail := func(reason string) error {
		return &ParameterValidationError{Plugin: plugin, FieldPath: path, Reason: reason}
	}
	switch f.Type {
	case TAny:
		return v, nil
	case TString:
		s, ok := v.(string)
		if !ok {
			return nil, fail(fmt.Sprintf("expected string, got %T", v))
		}
		if len(f.Enum) > 0 {
			for _, e := range f.Enum {
				if s == e {
					return s, nil
				}
			}
			return nil, fail(fmt.Sprintf("'%s' is not one of [%s]", s, strings.Join(f.Enum, ", ")))
		}
		return s, nil
	case TBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fail(fmt.Sprintf("expected bool, got %T", v))
		}
		return b, nil
	case TInt:
		var n int
		switch t := v.(type) {
		case int:
			n = t
		case int64:
			n = int(t)
		case float64:
			// YAML and JSON decoders disagree on number types. Accept a
			// float only if it is integral.
			if t != float64(int(t)) {
				return nil, fail(fmt.Sprintf("expected integer, got %v", t))
			}
			n = int(t)
		default:
			return nil, fail(fmt.Sprintf("expected integer, got %T", v))
		}
		if err := checkRange(float64(n), f); err != nil {
			return nil, fail(err.Error())
		}
		return n, nil
	case TFloat:
		var x float64
		switch t := v.(type) {
		case float64:
			x = t
		case int:
			x = float64(t)
		case int64:
			x = float64(t)
		default:
			return nil, fail(fmt.Sprintf("expected number, got %T", v))
		}
		if err := checkRange(x, f); err != nil {
			return nil, fail(err.Error())
		}
		return x, nil
	case TList:
		var list []interface{}
		switch t := v.(type) {
		case []interface{}:
			list = t
		case Rows:
			// Tabular step output referenced into a list field.
			return t, nil
		default:
			return nil, fail(fmt.Sprintf("expected list, got %T", v))
		}
		if f.Elem == nil {
			return list, nil
		}
		out := make([]interface{}, len(list))
		for i, e := range list {
			ce, err := checkField(plugin, fmt.Sprintf("%s[%d]", path, i), *f.Elem, e)
			if err != nil {
				return nil, err
			}
			out[i] = ce
		}
		return out, nil
	case TMap:
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fail(fmt.Sprintf("expected map, got %T", v))
		}
		if len(f.Fields) == 0 {
			return m, nil
		}
		sub := Schema{Fields: f.Fields}
		known := make(map[string]struct{}, len(f.Fields))
		out := make(map[string]interface{}, len(m))
		for _, sf := range sub.Fields {
			known[sf.Name] = struct{}{}
			sv, ok := m[sf.Name]
			if !ok {
				if sf.Required {
					return nil, &ParameterValidationError{Plugin: plugin, FieldPath: path + "." + sf.Name, Reason: "required parameter is missing"}
				}
				continue
			}
			cv, err := checkField(plugin, path+"."+sf.Name, sf, sv)
			if err != nil {
				return nil, err
			}
			out[sf.Name] = cv
		}
		for k := range m {
			if _, ok := known[k]; !ok {
				return nil, &ParameterValidationError{Plugin: plugin, FieldPath: path + "." + k, Reason: "unknown parameter"}
			}
		}
		return out, nil
	}
	return nil, errors.Errorf("plugin '%s' declares field '%s' with unsupported type '%s'", plugin, path, f.Type)
}

func checkRange(x float64, f Field) error {
	if f.Min != nil && x < *f.Min {
		return errors.Errorf("%v is below minimum %v", x, *f.Min)
	}
	if f.Max != nil && x > *f.Max {
		return errors.Errorf("%v is above maximum %v", x, *f.Max)
	}
	return nil
}

// MinMax is a convenience for building range-bounded schema fields.
func MinMax(min, max float64) (*float64, *float64) {
	return &min, &max
}
