package protoschema

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// DuplicateNameError is returned when an element is registered under a name
// (or a file under a path) that is already in use.
type DuplicateNameError struct {
	// Name is the fully-qualified name or file path that conflicts.
	Name string
	// Kind describes the element being registered, such as "message",
	// "enum" or "file".
	Kind string
	// Existing, if not empty, is the path of the file that already defines
	// Name.
	Existing string
}

func (e *DuplicateNameError) Error() string {
	if e.Existing != "" {
		return fmt.Sprintf("%s %q is already defined in %q", e.Kind, e.Name, e.Existing)
	}
	return fmt.Sprintf("%s %q is already defined", e.Kind, e.Name)
}

// UnresolvedTypeError is returned when a type name or a file dependency
// cannot be found when a descriptor is sealed.
type UnresolvedTypeError struct {
	// Name is the type name (or import path) as it was referenced.
	Name string
	// Referrer is the fully-qualified name of the element (or path of the
	// file) that refers to Name.
	Referrer string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("%s: could not resolve %q", e.Referrer, e.Name)
}

// IllegalStateError is returned when an operation is attempted on something
// that is no longer in a state that permits it, such as modifying or sealing
// a builder that has already been sealed.
type IllegalStateError struct {
	What   string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.What, e.Reason)
}

// NoSuchFieldError is returned when a message is asked for a field that its
// descriptor does not declare.
type NoSuchFieldError struct {
	Message protoreflect.FullName
	// Name is set when the field was referenced by name.
	Name protoreflect.Name
	// Number is set when the field was referenced by number.
	Number protoreflect.FieldNumber
}

func (e *NoSuchFieldError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("message %s has no field named %q", e.Message, e.Name)
	}
	return fmt.Sprintf("message %s has no field with number %d", e.Message, e.Number)
}

// TypeMismatchError is returned when a value does not agree with the type
// declared for the field, element, map key or map value it is assigned to.
type TypeMismatchError struct {
	// Field is the fully-qualified name of the field. For map keys and
	// values it is suffixed with "[key]" or "[value]".
	Field protoreflect.FullName
	// Want describes the declared type.
	Want string
	// Got describes the value that was supplied.
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %s requires a value of type %s; got %s", e.Field, e.Want, e.Got)
}

// RuntimeError wraps a failure reported by the external serialization
// engine, such as malformed wire data.
type RuntimeError struct {
	// Op is the operation that failed: "marshal", "unmarshal" or "convert".
	Op string
	// Type is the message type involved.
	Type protoreflect.FullName
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Type, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
