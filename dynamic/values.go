package dynamic

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protoschema"
)

// EmptyString is the value read back from string fields that are unset or
// hold a zero-length string.
const EmptyString = ""

var emptyBytes = make([]byte, 0)

// EmptyBytes returns the shared zero-length byte slice that is read back from
// bytes fields that are unset or hold a zero-length value. It is never nil
// and has no capacity, so appending to it always allocates.
func EmptyBytes() []byte {
	return emptyBytes
}

// describeType describes the type of value that a field's elements (or a map
// field's keys or values) must have.
func describeType(fd *protoschema.FieldDescriptor) string {
	switch fd.Kind() {
	case protoreflect.EnumKind:
		return "enum " + string(fd.TypeName())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return "message " + string(fd.TypeName())
	default:
		return fd.Kind().String()
	}
}

func describeValue(val any) string {
	switch val := val.(type) {
	case nil:
		return "nil"
	case *Message:
		if val == nil {
			return "nil message"
		}
		return "message " + string(val.md.FullName())
	default:
		return fmt.Sprintf("%T", val)
	}
}

func mismatch(name protoreflect.FullName, fd *protoschema.FieldDescriptor, val any) error {
	return &protoschema.TypeMismatchError{Field: name, Want: describeType(fd), Got: describeValue(val)}
}

func outOfRange(name protoreflect.FullName, fd *protoschema.FieldDescriptor, val any) error {
	return &protoschema.TypeMismatchError{Field: name, Want: describeType(fd), Got: fmt.Sprintf("%T %v (out of range)", val, val)}
}

// validElementValue checks that val can be stored as a single element of the
// given field, returning it converted to the canonical Go type for the
// field's kind. The name is reported in errors; for map keys and values it
// identifies the map field.
func validElementValue(name protoreflect.FullName, fd *protoschema.FieldDescriptor, val any) (any, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if v, ok := val.(bool); ok {
			return v, nil
		}

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		switch v := val.(type) {
		case int32:
			return v, nil
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, outOfRange(name, fd, val)
			}
			return int32(v), nil
		}

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		switch v := val.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int:
			return int64(v), nil
		}

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		switch v := val.(type) {
		case uint32:
			return v, nil
		case uint:
			if v > math.MaxUint32 {
				return nil, outOfRange(name, fd, val)
			}
			return uint32(v), nil
		case int:
			if v < 0 || v > math.MaxUint32 {
				return nil, outOfRange(name, fd, val)
			}
			return uint32(v), nil
		}

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		switch v := val.(type) {
		case uint64:
			return v, nil
		case uint32:
			return uint64(v), nil
		case uint:
			return uint64(v), nil
		}

	case protoreflect.FloatKind:
		if v, ok := val.(float32); ok {
			return v, nil
		}

	case protoreflect.DoubleKind:
		switch v := val.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}

	case protoreflect.StringKind:
		if v, ok := val.(string); ok {
			if v == "" {
				return EmptyString, nil
			}
			return v, nil
		}

	case protoreflect.BytesKind:
		if v, ok := val.([]byte); ok {
			if len(v) == 0 {
				return EmptyBytes(), nil
			}
			return v, nil
		}

	case protoreflect.EnumKind:
		return validEnumValue(name, fd, val)

	case protoreflect.MessageKind, protoreflect.GroupKind:
		if v, ok := val.(*Message); ok && v != nil {
			if v.md != fd.Message() {
				return nil, mismatch(name, fd, val)
			}
			return v, nil
		}
	}
	return nil, mismatch(name, fd, val)
}

func validEnumValue(name protoreflect.FullName, fd *protoschema.FieldDescriptor, val any) (any, error) {
	ed := fd.Enum()
	var num protoreflect.EnumNumber
	switch v := val.(type) {
	case protoreflect.EnumNumber:
		num = v
	case int32:
		num = protoreflect.EnumNumber(v)
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, outOfRange(name, fd, val)
		}
		num = protoreflect.EnumNumber(v)
	case string:
		evd := ed.ValueByName(protoreflect.Name(v))
		if evd == nil {
			return nil, &protoschema.TypeMismatchError{Field: name, Want: describeType(fd), Got: fmt.Sprintf("unknown value name %q", v)}
		}
		return evd.Number(), nil
	default:
		return nil, mismatch(name, fd, val)
	}
	if ed.IsClosed() && ed.ValueByNumber(num) == nil {
		return nil, &protoschema.TypeMismatchError{Field: name, Want: describeType(fd), Got: fmt.Sprintf("unknown value number %d", num)}
	}
	return num, nil
}

// checkAcyclic returns an error if val, about to be stored under owner,
// contains owner.
func checkAcyclic(name protoreflect.FullName, owner *Message, val any) error {
	if owner == nil || !reaches(val, owner) {
		return nil
	}
	return fmt.Errorf("cannot set %s: value contains the %s message it is being added to", name, owner.md.FullName())
}

func reaches(val any, target *Message) bool {
	switch v := val.(type) {
	case *Message:
		if v == nil {
			return false
		}
		if v == target {
			return true
		}
		for _, fv := range v.values {
			if reaches(fv, target) {
				return true
			}
		}
	case *RepeatedField:
		for _, e := range v.elems {
			if reaches(e, target) {
				return true
			}
		}
	case *Map:
		for _, e := range v.entries {
			if reaches(e, target) {
				return true
			}
		}
	}
	return false
}

// defaultValue returns the value that an unset singular scalar field reads
// back as.
func defaultValue(fd *protoschema.FieldDescriptor) any {
	def := fd.Default()
	switch v := def.(type) {
	case []byte:
		if len(v) == 0 {
			return EmptyBytes()
		}
	case string:
		if v == "" {
			return EmptyString
		}
	}
	return def
}

// isZero returns true if val is the zero value of a field that does not track
// presence. Setting such a field to its zero value clears it.
func isZero(val any) bool {
	switch v := val.(type) {
	case bool:
		return !v
	case int32:
		return v == 0
	case int64:
		return v == 0
	case uint32:
		return v == 0
	case uint64:
		return v == 0
	case float32:
		return v == 0 && !math.Signbit(float64(v))
	case float64:
		return v == 0 && !math.Signbit(v)
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	case protoreflect.EnumNumber:
		return v == 0
	default:
		return false
	}
}

// sameType returns true if elements of the two fields have the same declared
// type.
func sameType(a, b *protoschema.FieldDescriptor) bool {
	return a.Kind() == b.Kind() && a.TypeName() == b.TypeName()
}

func valuesEqual(a, b any) bool {
	switch a := a.(type) {
	case *Message:
		bm, ok := b.(*Message)
		return ok && a.Equal(bm)
	case *RepeatedField:
		bl, ok := b.(*RepeatedField)
		return ok && a.Equal(bl)
	case *Map:
		bm, ok := b.(*Map)
		return ok && a.Equal(bm)
	case []byte:
		bb, ok := b.([]byte)
		return ok && bytes.Equal(a, bb)
	default:
		return a == b
	}
}

// deepCopyValue copies messages, containers and byte slices so that the
// result shares no mutable state with val.
func deepCopyValue(val any) any {
	switch v := val.(type) {
	case *Message:
		return v.DeepCopy()
	case *RepeatedField:
		return v.DeepCopy()
	case *Map:
		return v.DeepCopy()
	case []byte:
		if len(v) == 0 {
			return EmptyBytes()
		}
		return slices.Clone(v)
	default:
		return val
	}
}

// compareKeys orders map keys, which always have the same canonical type
// within a single map.
func compareKeys(a, b any) int {
	switch a := a.(type) {
	case bool:
		switch b := b.(bool); {
		case a == b:
			return 0
		case !a:
			return -1
		default:
			return 1
		}
	case int32:
		return cmp.Compare(a, b.(int32))
	case int64:
		return cmp.Compare(a, b.(int64))
	case uint32:
		return cmp.Compare(a, b.(uint32))
	case uint64:
		return cmp.Compare(a, b.(uint64))
	case string:
		return cmp.Compare(a, b.(string))
	default:
		panic(fmt.Sprintf("invalid map key type %T", a))
	}
}

func isMessageField(fd *protoschema.FieldDescriptor) bool {
	return internal.IsMessageKind(fd.Kind())
}
