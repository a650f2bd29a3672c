package protobuilder

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/protoschema"
)

// FieldType represents the type of a field. It can represent a message or
// enum type or any of the scalar types supported by protobufs.
//
// Message and enum types can reference a message or enum builder. A type that
// refers to an already sealed message or enum descriptor is called an
// "imported" type. A type can also refer to a message or enum only by name,
// in which case both the kind and the referenced type are resolved when the
// field is sealed.
//
// There are numerous factory methods for creating FieldType instances.
type FieldType struct {
	kind             protoreflect.Kind
	localMsgType     *MessageBuilder
	localEnumType    *EnumBuilder
	importedMsgType  *protoschema.MessageDescriptor
	importedEnumType *protoschema.EnumDescriptor
	typeName         string
}

// Kind returns the kind of this field type. If the kind is a message or enum,
// TypeName() provides the name of the referenced type. For types created with
// FieldTypeNamed, the kind is not known until the field is sealed, so this
// returns zero.
func (ft *FieldType) Kind() protoreflect.Kind {
	return ft.kind
}

// TypeName returns the fully-qualified name of the referenced message or
// enum type. It returns an empty string if this type does not represent a
// message or enum type. For types created with FieldTypeNamed, this is the
// name as given, which may be relative.
func (ft *FieldType) TypeName() protoreflect.FullName {
	switch {
	case ft.importedMsgType != nil:
		return ft.importedMsgType.FullName()
	case ft.importedEnumType != nil:
		return ft.importedEnumType.FullName()
	case ft.localMsgType != nil:
		return FullName(ft.localMsgType)
	case ft.localEnumType != nil:
		return FullName(ft.localEnumType)
	default:
		return protoreflect.FullName(ft.typeName)
	}
}

var scalarTypes = map[protoreflect.Kind]*FieldType{}

func init() {
	for _, k := range []protoreflect.Kind{
		protoreflect.BoolKind,
		protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind,
		protoreflect.FloatKind, protoreflect.DoubleKind,
		protoreflect.StringKind, protoreflect.BytesKind,
	} {
		scalarTypes[k] = &FieldType{kind: k}
	}
}

// FieldTypeScalar returns a FieldType for the given scalar type. If the given
// type is not scalar (e.g. it is a message, group, or enum) than this function
// will panic.
func FieldTypeScalar(k protoreflect.Kind) *FieldType {
	if ft, ok := scalarTypes[k]; ok {
		return ft
	}
	panic(fmt.Sprintf("field kind %v is not scalar", k))
}

// FieldTypeInt32 returns a FieldType for the int32 scalar type.
func FieldTypeInt32() *FieldType {
	return FieldTypeScalar(protoreflect.Int32Kind)
}

// FieldTypeUint32 returns a FieldType for the uint32 scalar type.
func FieldTypeUint32() *FieldType {
	return FieldTypeScalar(protoreflect.Uint32Kind)
}

// FieldTypeSint32 returns a FieldType for the sint32 scalar type.
func FieldTypeSint32() *FieldType {
	return FieldTypeScalar(protoreflect.Sint32Kind)
}

// FieldTypeFixed32 returns a FieldType for the fixed32 scalar type.
func FieldTypeFixed32() *FieldType {
	return FieldTypeScalar(protoreflect.Fixed32Kind)
}

// FieldTypeSfixed32 returns a FieldType for the sfixed32 scalar type.
func FieldTypeSfixed32() *FieldType {
	return FieldTypeScalar(protoreflect.Sfixed32Kind)
}

// FieldTypeInt64 returns a FieldType for the int64 scalar type.
func FieldTypeInt64() *FieldType {
	return FieldTypeScalar(protoreflect.Int64Kind)
}

// FieldTypeUint64 returns a FieldType for the uint64 scalar type.
func FieldTypeUint64() *FieldType {
	return FieldTypeScalar(protoreflect.Uint64Kind)
}

// FieldTypeSint64 returns a FieldType for the sint64 scalar type.
func FieldTypeSint64() *FieldType {
	return FieldTypeScalar(protoreflect.Sint64Kind)
}

// FieldTypeFixed64 returns a FieldType for the fixed64 scalar type.
func FieldTypeFixed64() *FieldType {
	return FieldTypeScalar(protoreflect.Fixed64Kind)
}

// FieldTypeSfixed64 returns a FieldType for the sfixed64 scalar type.
func FieldTypeSfixed64() *FieldType {
	return FieldTypeScalar(protoreflect.Sfixed64Kind)
}

// FieldTypeFloat returns a FieldType for the float scalar type.
func FieldTypeFloat() *FieldType {
	return FieldTypeScalar(protoreflect.FloatKind)
}

// FieldTypeDouble returns a FieldType for the double scalar type.
func FieldTypeDouble() *FieldType {
	return FieldTypeScalar(protoreflect.DoubleKind)
}

// FieldTypeBool returns a FieldType for the bool scalar type.
func FieldTypeBool() *FieldType {
	return FieldTypeScalar(protoreflect.BoolKind)
}

// FieldTypeString returns a FieldType for the string scalar type.
func FieldTypeString() *FieldType {
	return FieldTypeScalar(protoreflect.StringKind)
}

// FieldTypeBytes returns a FieldType for the bytes scalar type.
func FieldTypeBytes() *FieldType {
	return FieldTypeScalar(protoreflect.BytesKind)
}

// FieldTypeMessage returns a FieldType for the given message type.
func FieldTypeMessage(mb *MessageBuilder) *FieldType {
	return &FieldType{
		kind:         protoreflect.MessageKind,
		localMsgType: mb,
	}
}

// FieldTypeImportedMessage returns a FieldType that references the given
// message descriptor.
func FieldTypeImportedMessage(md *protoschema.MessageDescriptor) *FieldType {
	return &FieldType{
		kind:            protoreflect.MessageKind,
		importedMsgType: md,
	}
}

// FieldTypeEnum returns a FieldType for the given enum type.
func FieldTypeEnum(eb *EnumBuilder) *FieldType {
	return &FieldType{
		kind:          protoreflect.EnumKind,
		localEnumType: eb,
	}
}

// FieldTypeImportedEnum returns a FieldType that references the given enum
// descriptor.
func FieldTypeImportedEnum(ed *protoschema.EnumDescriptor) *FieldType {
	return &FieldType{
		kind:             protoreflect.EnumKind,
		importedEnumType: ed,
	}
}

// FieldTypeNamed returns a FieldType that refers to a message or enum by
// name. The name is resolved when the field is sealed, using the same scoping
// rules as protoc: a name that starts with a dot is fully-qualified, and any
// other name is searched for starting in the scope of the field's message and
// moving outwards. Whether the field is a message or enum field depends on
// what the name resolves to.
func FieldTypeNamed(name string) *FieldType {
	return &FieldType{typeName: name}
}
