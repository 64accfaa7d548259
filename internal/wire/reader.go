package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalidMessage is returned when a Struct does not have the expected shape.
var ErrInvalidMessage = errors.New("invalid message")

// reader pulls typed fields out of a Struct and keeps the first failure.
type reader struct {
	fields map[string]*structpb.Value
	path   string
	err    error
}

func newReader(s *structpb.Struct, path string) *reader {
	r := &reader{path: path}
	if s == nil {
		r.err = fmt.Errorf("%w: %s is missing", ErrInvalidMessage, path)
		return r
	}

	r.fields = s.GetFields()

	return r
}

func (r *reader) fail(key, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s.%s must be %s", ErrInvalidMessage, r.path, key, want)
	}
}

func (r *reader) value(key string, optional bool) *structpb.Value {
	if r.err != nil {
		return nil
	}

	v, ok := r.fields[key]
	if !ok || v == nil {
		if !optional {
			r.err = fmt.Errorf("%w: %s.%s is missing", ErrInvalidMessage, r.path, key)
		}

		return nil
	}

	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		if !optional {
			r.err = fmt.Errorf("%w: %s.%s is null", ErrInvalidMessage, r.path, key)
		}

		return nil
	}

	return v
}

func (r *reader) str(key string) string {
	return r.strValue(key, false)
}

func (r *reader) optStr(key string) string {
	return r.strValue(key, true)
}

func (r *reader) strValue(key string, optional bool) string {
	v := r.value(key, optional)
	if v == nil {
		return ""
	}

	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		r.fail(key, "a string")
		return ""
	}

	return s.StringValue
}

func (r *reader) num(key string) float64 {
	v := r.value(key, false)
	if v == nil {
		return 0
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		r.fail(key, "a number")
		return 0
	}

	return n.NumberValue
}

func (r *reader) integer(key string, optional bool) int {
	v := r.value(key, optional)
	if v == nil {
		return 0
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		r.fail(key, "an integer")
		return 0
	}

	return int(n.NumberValue)
}

func (r *reader) boolean(key string) bool {
	v := r.value(key, true)
	if v == nil {
		return false
	}

	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		r.fail(key, "a boolean")
		return false
	}

	return b.BoolValue
}

func (r *reader) object(key string, optional bool) *structpb.Struct {
	v := r.value(key, optional)
	if v == nil {
		return nil
	}

	s, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		r.fail(key, "an object")
		return nil
	}

	return s.StructValue
}

func (r *reader) list(key string) []*structpb.Value {
	v := r.value(key, true)
	if v == nil {
		return nil
	}

	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		r.fail(key, "a list")
		return nil
	}

	return l.ListValue.GetValues()
}

// objects returns the list under key as Structs.
func (r *reader) objects(key string) []*structpb.Struct {
	values := r.list(key)
	out := make([]*structpb.Struct, 0, len(values))

	for i, v := range values {
		s, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			r.fail(fmt.Sprintf("%s[%d]", key, i), "an object")
			return nil
		}

		out = append(out, s.StructValue)
	}

	return out
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func list(values []*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}
