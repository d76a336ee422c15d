package edk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// RefOp is an extraction operator applied when a reference points at a list
// result (a loader's rows, a prior step's array output).
type RefOp int

const (
	// OpValue takes the referenced value as-is.
	OpValue RefOp = iota
	// OpAll takes the entire list.
	OpAll
	// OpCount takes the length of the list.
	OpCount
	// OpFirst takes the first element, or the named field of it.
	OpFirst
	// OpUnique takes the distinct values of the named field across the
	// list, in first-seen order.
	OpUnique
	// OpTake takes the first N elements.
	OpTake
)

// Reference is a parsed "@outputKey.path" expression from a step's raw
// parameters. References are parsed once at configuration load time; the
// executor only resolves the structured form, never re-parses strings.
type Reference struct {
	OutputKey string
	Path      []string
	Op        RefOp
	// Field is the field name for first:<field> and unique:<field>.
	Field string
	// N is the element count for take:<n>.
	N int
}

func (r *Reference) String() string {
	s := "@" + r.OutputKey
	if len(r.Path) > 0 {
		s += "." + strings.Join(r.Path, ".")
	}
	switch r.Op {
	case OpAll:
		s += ".all"
	case OpCount:
		s += ".count"
	case OpFirst:
		if r.Field != "" {
			s += ".first:" + r.Field
		} else {
			s += ".first"
		}
	case OpUnique:
		s += ".unique:" + r.Field
	case OpTake:
		s += fmt.Sprintf(".take:%d", r.N)
	}
	return s
}

// UnresolvedReferenceError is returned when a reference names an output key
// that has not been produced yet. Chain validation rejects forward and
// cyclic references at load time, so seeing this at run time means the chain
// bypassed validation.
type UnresolvedReferenceError struct {
	OutputKey string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("reference to output '%s' which has not been produced", e.OutputKey)
}

// ParseReference parses s as a reference expression. The second return is
// false when s is not a reference (does not start with '@'); such strings
// pass through as literals.
//
// Grammar: "@outputKey[.pathSegment...][.op]" where op is one of all,
// count, first, first:<field>, unique:<field>, take:<n>.
func ParseReference(s string) (*Reference, bool, error) {
	if !strings.HasPrefix(s, "@") {
		return nil, false, nil
	}
	body := s[1:]
	if body == "" {
		return nil, true, errors.Errorf("empty reference '%s'", s)
	}
	segs := strings.Split(body, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, true, errors.Errorf("reference '%s' has an empty path segment", s)
		}
	}
	ref := &Reference{OutputKey: segs[0], Op: OpValue}
	rest := segs[1:]
	if len(rest) == 0 {
		return ref, true, nil
	}
	last := rest[len(rest)-1]
	op, field, isOp, err := parseOp(last)
	if err != nil {
		return nil, true, errors.Wrapf(err, "reference '%s'", s)
	}
	if isOp {
		rest = rest[:len(rest)-1]
		ref.Op = op
		switch op {
		case OpFirst, OpUnique:
			ref.Field = field
		case OpTake:
			ref.N, _ = strconv.Atoi(field)
		}
	}
	ref.Path = rest
	return ref, true, nil
}

func parseOp(seg string) (op RefOp, arg string, isOp bool, err error) {
	name, arg := seg, ""
	if i := strings.IndexByte(seg, ':'); i >= 0 {
		name, arg = seg[:i], seg[i+1:]
	}
	switch name {
	case "all":
		op = OpAll
	case "count":
		op = OpCount
	case "first":
		op = OpFirst
	case "unique":
		op = OpUnique
	case "take":
		op = OpTake
	default:
		return OpValue, "", false, nil
	}
	switch op {
	case OpUnique:
		if arg == "" {
			return 0, "", false, errors.New("unique requires a field, e.g. unique:name")
		}
	case OpTake:
		n, cerr := strconv.Atoi(arg)
		if cerr != nil || n <= 0 {
			return 0, "", false, errors.Errorf("take requires a positive count, got '%s'", arg)
		}
	case OpAll, OpCount:
		if arg != "" {
			return 0, "", false, errors.Errorf("%s takes no argument", name)
		}
	}
	return op, arg, true, nil
}

// Resolve looks the reference up in the accumulated results of a chain and
// applies the path walk and extraction operator.
func (r *Reference) Resolve(results map[string]interface{}) (interface{}, error) {
	v, ok := results[r.OutputKey]
	if !ok {
		return nil, &UnresolvedReferenceError{OutputKey: r.OutputKey}
	}
	for _, seg := range r.Path {
		fv, err := fieldOf(v, seg)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s", r)
		}
		v = fv
	}
	switch r.Op {
	case OpValue, OpAll:
		return v, nil
	}
	list, ok := asList(v)
	if !ok {
		return nil, errors.Errorf("resolving %s: value of type %T is not a list", r, v)
	}
	switch r.Op {
	case OpCount:
		return len(list), nil
	case OpFirst:
		if len(list) == 0 {
			return nil, errors.Errorf("resolving %s: list is empty", r)
		}
		if r.Field == "" {
			return list[0], nil
		}
		return fieldOf(list[0], r.Field)
	case OpUnique:
		seen := make(map[string]struct{})
		uniq := make([]interface{}, 0)
		for _, e := range list {
			fv, err := fieldOf(e, r.Field)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving %s", r)
			}
			key := fmt.Sprintf("%v", fv)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			uniq = append(uniq, fv)
		}
		return uniq, nil
	case OpTake:
		if r.N < len(list) {
			list = list[:r.N]
		}
		return list, nil
	}
	return nil, errors.Errorf("resolving %s: unknown operator", r)
}

func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case Rows:
		out := make([]interface{}, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func fieldOf(v interface{}, name string) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		fv, ok := t[name]
		if !ok {
			return nil, errors.Errorf("no field '%s'", name)
		}
		return fv, nil
	case Params:
		fv, ok := t[name]
		if !ok {
			return nil, errors.Errorf("no field '%s'", name)
		}
		return fv, nil
	case Row:
		fv, ok := t[name]
		if !ok {
			return nil, errors.Errorf("no column '%s'", name)
		}
		return fv, nil
	}
	return nil, errors.Errorf("can't get field '%s' out of %T", name, v)
}

// ParseParams walks a raw parameter tree and replaces every "@..." string
// with its parsed *Reference, returning the rewritten tree. Called once per
// step at configuration load time.
func ParseParams(raw map[string]interface{}) (map[string]interface{}, error) {
	v, err := parseParamValue(raw)
	if err != nil {
		return nil, err
	}
	return v.(map[string]interface{}), nil
}

func parseParamValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		ref, isRef, err := ParseReference(t)
		if err != nil {
			return nil, err
		}
		if isRef {
			return ref, nil
		}
		return t, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			pe, err := parseParamValue(e)
			if err != nil {
				return nil, errors.Wrapf(err, "in parameter '%s'", k)
			}
			out[k] = pe
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			pe, err := parseParamValue(e)
			if err != nil {
				return nil, errors.Wrapf(err, "at index %d", i)
			}
			out[i] = pe
		}
		return out, nil
	}
	return v, nil
}

// resolveParams deep-copies params, replacing every *Reference with its
// resolved value.
func resolveParams(params map[string]interface{}, results map[string]interface{}) (map[string]interface{}, error) {
	v, err := resolveParamValue(params, results)
	if err != nil {
		return nil, err
	}
	return v.(map[string]interface{}), nil
}

func resolveParamValue(v interface{}, results map[string]interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *Reference:
		return t.Resolve(results)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			re, err := resolveParamValue(e, results)
			if err != nil {
				return nil, err
			}
			out[k] = re
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			re, err := resolveParamValue(e, results)
			if err != nil {
				return nil, err
			}
			out[i] = re
		}
		return out, nil
	}
	return v, nil
}

// containsReference reports whether v is or contains a *Reference.
func containsReference(v interface{}) bool {
	switch t := v.(type) {
	case *Reference:
		return true
	case map[string]interface{}:
		for _, e := range t {
			if containsReference(e) {
				return true
			}
		}
	case []interface{}:
		for _, e := range t {
			if containsReference(e) {
				return true
			}
		}
	}
	return false
}

// collectReferences appends every *Reference found in v to out.
func collectReferences(v interface{}, out *[]*Reference) {
	switch t := v.(type) {
	case *Reference:
		*out = append(*out, t)
	case map[string]interface{}:
		for _, e := range t {
			collectReferences(e, out)
		}
	case []interface{}:
		for _, e := range t {
			collectReferences(e, out)
		}
	}
}
