// Package internal contains some code that should not be exported but needs to
// be shared across more than one of the protomodel sub-packages.
package internal

import "google.golang.org/protobuf/reflect/protoreflect"

// MaxFieldNumber is the largest field number that protobuf allows.
const MaxFieldNumber = protoreflect.FieldNumber(1<<29 - 1)

// Field numbers in this range are reserved for the protobuf implementation.
const (
	FirstReservedNumber = protoreflect.FieldNumber(19000)
	LastReservedNumber  = protoreflect.FieldNumber(19999)
)

// IsMessageKind returns true if the given kind is a message or group.
func IsMessageKind(k protoreflect.Kind) bool {
	return k == protoreflect.MessageKind || k == protoreflect.GroupKind
}

// IsMapKeyKind returns true if values of the given kind may be used as map
// keys: integers, booleans and strings.
func IsMapKeyKind(k protoreflect.Kind) bool {
	switch k {
	case protoreflect.BoolKind, protoreflect.StringKind,
		protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return true
	default:
		return false
	}
}

// IsScalarKind returns true if the given kind is neither a message, a group,
// nor an enum.
func IsScalarKind(k protoreflect.Kind) bool {
	return !IsMessageKind(k) && k != protoreflect.EnumKind && k.IsValid()
}

// Field numbers of the key and value fields of a map entry message.
const (
	MapKeyNumber   = protoreflect.FieldNumber(1)
	MapValueNumber = protoreflect.FieldNumber(2)
)
