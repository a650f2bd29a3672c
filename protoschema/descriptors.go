package protoschema

import (
	"iter"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/internal"
)

// Descriptor is implemented by all named schema elements: messages, fields,
// oneofs, enums and enum values. Descriptors are immutable once sealed.
type Descriptor interface {
	// Name returns the element's simple name.
	Name() protoreflect.Name
	// FullName returns the element's fully-qualified name.
	FullName() protoreflect.FullName
	// ParentFile returns the file in which the element is declared.
	ParentFile() *FileDescriptor
	// Parent returns the enclosing element, or nil for top-level messages
	// and enums (whose parent is the file).
	Parent() Descriptor

	isDescriptor()
}

// FileDescriptor describes a sealed file: a named collection of message and
// enum types that share a package and syntax level.
type FileDescriptor struct {
	path     string
	pkg      protoreflect.FullName
	syntax   protoreflect.Syntax
	deps     []*FileDescriptor
	messages []*MessageDescriptor
	enums    []*EnumDescriptor
	proto    *descriptorpb.FileDescriptorProto
}

// Path returns the file's path, which is also its name in a pool.
func (fd *FileDescriptor) Path() string {
	return fd.path
}

// Package returns the file's package name. It may be empty.
func (fd *FileDescriptor) Package() protoreflect.FullName {
	return fd.pkg
}

// Syntax returns the syntax level of the file, proto2 or proto3.
func (fd *FileDescriptor) Syntax() protoreflect.Syntax {
	return fd.syntax
}

// Dependencies returns the files that this file depends on. This includes
// files that were declared as dependencies as well as files that define types
// that this file references.
func (fd *FileDescriptor) Dependencies() []*FileDescriptor {
	return slices.Clone(fd.deps)
}

// Messages returns the top-level messages declared in the file, in
// declaration order.
func (fd *FileDescriptor) Messages() []*MessageDescriptor {
	return slices.Clone(fd.messages)
}

// Enums returns the top-level enums declared in the file, in declaration
// order.
func (fd *FileDescriptor) Enums() []*EnumDescriptor {
	return slices.Clone(fd.enums)
}

// FindMessage returns the top-level message with the given name, or nil.
func (fd *FileDescriptor) FindMessage(name protoreflect.Name) *MessageDescriptor {
	for _, md := range fd.messages {
		if md.name == name {
			return md
		}
	}
	return nil
}

// FindEnum returns the top-level enum with the given name, or nil.
func (fd *FileDescriptor) FindEnum(name protoreflect.Name) *EnumDescriptor {
	for _, ed := range fd.enums {
		if ed.name == name {
			return ed
		}
	}
	return nil
}

// Types returns all message and enum types declared in the file, including
// nested ones. Enclosing messages are produced before the types nested in
// them.
func (fd *FileDescriptor) Types() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, ed := range fd.enums {
			if !yield(ed) {
				return
			}
		}
		for _, md := range fd.messages {
			if !md.rangeTypes(yield) {
				return
			}
		}
	}
}

// ToProto returns a descriptor proto equivalent of this file. The returned
// proto has all type references fully qualified and all implicit
// dependencies listed, so it is suitable for use with protodesc.NewFile.
func (fd *FileDescriptor) ToProto() *descriptorpb.FileDescriptorProto {
	return proto.Clone(fd.proto).(*descriptorpb.FileDescriptorProto)
}

// MessageDescriptor describes a sealed message type.
type MessageDescriptor struct {
	name     protoreflect.Name
	fullName protoreflect.FullName
	file     *FileDescriptor
	parent   *MessageDescriptor
	mapEntry bool

	fields         []*FieldDescriptor
	fieldsByName   map[protoreflect.Name]*FieldDescriptor
	fieldsByNumber map[protoreflect.FieldNumber]*FieldDescriptor
	oneofs         []*OneofDescriptor
	messages       []*MessageDescriptor
	enums          []*EnumDescriptor
}

var _ Descriptor = (*MessageDescriptor)(nil)

func (md *MessageDescriptor) isDescriptor() {}

// Name implements Descriptor.
func (md *MessageDescriptor) Name() protoreflect.Name {
	return md.name
}

// FullName implements Descriptor.
func (md *MessageDescriptor) FullName() protoreflect.FullName {
	return md.fullName
}

// ParentFile implements Descriptor.
func (md *MessageDescriptor) ParentFile() *FileDescriptor {
	return md.file
}

// Parent implements Descriptor. It returns the enclosing message for nested
// types and nil for top-level types.
func (md *MessageDescriptor) Parent() Descriptor {
	if md.parent == nil {
		return nil
	}
	return md.parent
}

// Syntax returns the syntax level of the file that declares this message.
func (md *MessageDescriptor) Syntax() protoreflect.Syntax {
	return md.file.syntax
}

// IsMapEntry returns true if this is the synthesized entry type of a map
// field.
func (md *MessageDescriptor) IsMapEntry() bool {
	return md.mapEntry
}

// Fields returns the message's fields in declaration order.
func (md *MessageDescriptor) Fields() []*FieldDescriptor {
	return slices.Clone(md.fields)
}

// NumFields returns the number of fields declared in the message.
func (md *MessageDescriptor) NumFields() int {
	return len(md.fields)
}

// Field returns the i-th field in declaration order.
func (md *MessageDescriptor) Field(i int) *FieldDescriptor {
	return md.fields[i]
}

// FieldByName returns the field with the given name, or nil.
func (md *MessageDescriptor) FieldByName(name protoreflect.Name) *FieldDescriptor {
	return md.fieldsByName[name]
}

// FieldByNumber returns the field with the given number, or nil.
func (md *MessageDescriptor) FieldByNumber(num protoreflect.FieldNumber) *FieldDescriptor {
	return md.fieldsByNumber[num]
}

// Oneofs returns the message's oneofs in declaration order. Synthetic oneofs
// (those that enclose proto3 optional fields) are included.
func (md *MessageDescriptor) Oneofs() []*OneofDescriptor {
	return slices.Clone(md.oneofs)
}

// OneofByName returns the oneof with the given name, or nil.
func (md *MessageDescriptor) OneofByName(name protoreflect.Name) *OneofDescriptor {
	for _, od := range md.oneofs {
		if od.name == name {
			return od
		}
	}
	return nil
}

// Messages returns the nested message types, in declaration order.
func (md *MessageDescriptor) Messages() []*MessageDescriptor {
	return slices.Clone(md.messages)
}

// Enums returns the nested enum types, in declaration order.
func (md *MessageDescriptor) Enums() []*EnumDescriptor {
	return slices.Clone(md.enums)
}

// RequiredFields returns the fields with required cardinality.
func (md *MessageDescriptor) RequiredFields() []*FieldDescriptor {
	var res []*FieldDescriptor
	for _, fld := range md.fields {
		if fld.cardinality == protoreflect.Required {
			res = append(res, fld)
		}
	}
	return res
}

func (md *MessageDescriptor) rangeTypes(yield func(Descriptor) bool) bool {
	if !yield(md) {
		return false
	}
	for _, ed := range md.enums {
		if !yield(ed) {
			return false
		}
	}
	for _, nmd := range md.messages {
		if !nmd.rangeTypes(yield) {
			return false
		}
	}
	return true
}

// FieldDescriptor describes a sealed field of a message.
type FieldDescriptor struct {
	name        protoreflect.Name
	fullName    protoreflect.FullName
	number      protoreflect.FieldNumber
	kind        protoreflect.Kind
	cardinality protoreflect.Cardinality
	jsonName    string
	index       int

	owner          *MessageDescriptor
	oneof          *OneofDescriptor
	proto3Optional bool

	typeName protoreflect.FullName
	msgType  *MessageDescriptor
	enumType *EnumDescriptor

	hasDefault     bool
	defaultLiteral string
	defaultValue   any
}

var _ Descriptor = (*FieldDescriptor)(nil)

func (fld *FieldDescriptor) isDescriptor() {}

// Name implements Descriptor.
func (fld *FieldDescriptor) Name() protoreflect.Name {
	return fld.name
}

// FullName implements Descriptor.
func (fld *FieldDescriptor) FullName() protoreflect.FullName {
	return fld.fullName
}

// ParentFile implements Descriptor.
func (fld *FieldDescriptor) ParentFile() *FileDescriptor {
	return fld.owner.file
}

// Parent implements Descriptor. It returns the message that declares the
// field.
func (fld *FieldDescriptor) Parent() Descriptor {
	return fld.owner
}

// ContainingMessage returns the message that declares the field.
func (fld *FieldDescriptor) ContainingMessage() *MessageDescriptor {
	return fld.owner
}

// Index returns the position of the field in its message's field list.
func (fld *FieldDescriptor) Index() int {
	return fld.index
}

// Number returns the field's number.
func (fld *FieldDescriptor) Number() protoreflect.FieldNumber {
	return fld.number
}

// Kind returns the field's kind. Map fields report MessageKind; use IsMap
// to distinguish them.
func (fld *FieldDescriptor) Kind() protoreflect.Kind {
	return fld.kind
}

// Cardinality returns whether the field is optional, required or repeated.
// Map fields are repeated.
func (fld *FieldDescriptor) Cardinality() protoreflect.Cardinality {
	return fld.cardinality
}

// JSONName returns the field's JSON name.
func (fld *FieldDescriptor) JSONName() string {
	return fld.jsonName
}

// IsList returns true for repeated fields that are not maps.
func (fld *FieldDescriptor) IsList() bool {
	return fld.cardinality == protoreflect.Repeated && !fld.IsMap()
}

// IsMap returns true if the field is a map field.
func (fld *FieldDescriptor) IsMap() bool {
	return fld.msgType != nil && fld.msgType.mapEntry && fld.cardinality == protoreflect.Repeated
}

// MapKey returns the key field of a map field's entry type, or nil if the
// field is not a map.
func (fld *FieldDescriptor) MapKey() *FieldDescriptor {
	if !fld.IsMap() {
		return nil
	}
	return fld.msgType.fieldsByNumber[1]
}

// MapValue returns the value field of a map field's entry type, or nil if the
// field is not a map.
func (fld *FieldDescriptor) MapValue() *FieldDescriptor {
	if !fld.IsMap() {
		return nil
	}
	return fld.msgType.fieldsByNumber[2]
}

// Message returns the field's message type if its kind is message or group.
// For map fields this is the entry type.
func (fld *FieldDescriptor) Message() *MessageDescriptor {
	return fld.msgType
}

// Enum returns the field's enum type if its kind is enum.
func (fld *FieldDescriptor) Enum() *EnumDescriptor {
	return fld.enumType
}

// TypeName returns the fully-qualified name of the field's message or enum
// type, or the empty string for scalar fields.
func (fld *FieldDescriptor) TypeName() protoreflect.FullName {
	return fld.typeName
}

// ContainingOneof returns the oneof that the field belongs to, if any. For
// proto3 optional fields this is a synthetic oneof.
func (fld *FieldDescriptor) ContainingOneof() *OneofDescriptor {
	return fld.oneof
}

// IsProto3Optional returns true for proto3 fields declared with the optional
// keyword.
func (fld *FieldDescriptor) IsProto3Optional() bool {
	return fld.proto3Optional
}

// HasPresence returns true if the field distinguishes between being unset
// and being set to its default value.
func (fld *FieldDescriptor) HasPresence() bool {
	if fld.cardinality == protoreflect.Repeated {
		return false
	}
	return internal.IsMessageKind(fld.kind) || fld.oneof != nil || fld.owner.file.syntax == protoreflect.Proto2
}

// HasDefault returns true if the field declares an explicit default value.
func (fld *FieldDescriptor) HasDefault() bool {
	return fld.hasDefault
}

// DefaultLiteral returns the textual form of the explicitly declared default
// value, or the empty string if there is none.
func (fld *FieldDescriptor) DefaultLiteral() string {
	return fld.defaultLiteral
}

// Default returns the value that a singular field reads back as when it is
// not set: the declared default if there is one, otherwise the zero value of
// its kind. Enum fields without a declared default report the number of the
// enum's first value. Message, repeated and map fields return nil.
//
// A non-empty bytes default is copied on every call.
func (fld *FieldDescriptor) Default() any {
	if b, ok := fld.defaultValue.([]byte); ok && len(b) > 0 {
		return slices.Clone(b)
	}
	return fld.defaultValue
}

// OneofDescriptor describes a group of mutually exclusive fields.
type OneofDescriptor struct {
	name      protoreflect.Name
	fullName  protoreflect.FullName
	owner     *MessageDescriptor
	index     int
	synthetic bool
	fields    []*FieldDescriptor
}

var _ Descriptor = (*OneofDescriptor)(nil)

func (od *OneofDescriptor) isDescriptor() {}

// Name implements Descriptor.
func (od *OneofDescriptor) Name() protoreflect.Name {
	return od.name
}

// FullName implements Descriptor.
func (od *OneofDescriptor) FullName() protoreflect.FullName {
	return od.fullName
}

// ParentFile implements Descriptor.
func (od *OneofDescriptor) ParentFile() *FileDescriptor {
	return od.owner.file
}

// Parent implements Descriptor.
func (od *OneofDescriptor) Parent() Descriptor {
	return od.owner
}

// ContainingMessage returns the message that declares the oneof.
func (od *OneofDescriptor) ContainingMessage() *MessageDescriptor {
	return od.owner
}

// Index returns the position of the oneof in its message's oneof list.
func (od *OneofDescriptor) Index() int {
	return od.index
}

// IsSynthetic returns true if the oneof was synthesized to track presence of
// a proto3 optional field.
func (od *OneofDescriptor) IsSynthetic() bool {
	return od.synthetic
}

// Fields returns the members of the oneof, in declaration order.
func (od *OneofDescriptor) Fields() []*FieldDescriptor {
	return slices.Clone(od.fields)
}

// EnumDescriptor describes a sealed enum type.
type EnumDescriptor struct {
	name     protoreflect.Name
	fullName protoreflect.FullName
	file     *FileDescriptor
	parent   *MessageDescriptor
	values   []*EnumValueDescriptor
	byName   map[protoreflect.Name]*EnumValueDescriptor
	byNumber map[protoreflect.EnumNumber]*EnumValueDescriptor
}

var _ Descriptor = (*EnumDescriptor)(nil)

func (ed *EnumDescriptor) isDescriptor() {}

// Name implements Descriptor.
func (ed *EnumDescriptor) Name() protoreflect.Name {
	return ed.name
}

// FullName implements Descriptor.
func (ed *EnumDescriptor) FullName() protoreflect.FullName {
	return ed.fullName
}

// ParentFile implements Descriptor.
func (ed *EnumDescriptor) ParentFile() *FileDescriptor {
	return ed.file
}

// Parent implements Descriptor. It returns the enclosing message for nested
// enums and nil for top-level enums.
func (ed *EnumDescriptor) Parent() Descriptor {
	if ed.parent == nil {
		return nil
	}
	return ed.parent
}

// IsClosed returns true if the enum only accepts its declared values. Enums
// declared in proto2 files are closed.
func (ed *EnumDescriptor) IsClosed() bool {
	return ed.file.syntax == protoreflect.Proto2
}

// Values returns the enum's values in declaration order.
func (ed *EnumDescriptor) Values() []*EnumValueDescriptor {
	return slices.Clone(ed.values)
}

// ValueByName returns the value with the given name, or nil.
func (ed *EnumDescriptor) ValueByName(name protoreflect.Name) *EnumValueDescriptor {
	return ed.byName[name]
}

// ValueByNumber returns the first declared value with the given number, or
// nil.
func (ed *EnumDescriptor) ValueByNumber(num protoreflect.EnumNumber) *EnumValueDescriptor {
	return ed.byNumber[num]
}

// Default returns the enum's first value, which is the default for fields of
// this type.
func (ed *EnumDescriptor) Default() *EnumValueDescriptor {
	return ed.values[0]
}

// EnumValueDescriptor describes one named value of an enum.
type EnumValueDescriptor struct {
	name     protoreflect.Name
	fullName protoreflect.FullName
	number   protoreflect.EnumNumber
	index    int
	enum     *EnumDescriptor
}

var _ Descriptor = (*EnumValueDescriptor)(nil)

func (evd *EnumValueDescriptor) isDescriptor() {}

// Name implements Descriptor.
func (evd *EnumValueDescriptor) Name() protoreflect.Name {
	return evd.name
}

// FullName implements Descriptor. Like in protobuf, enum values are scoped
// as siblings of their enum, not as children of it.
func (evd *EnumValueDescriptor) FullName() protoreflect.FullName {
	return evd.fullName
}

// ParentFile implements Descriptor.
func (evd *EnumValueDescriptor) ParentFile() *FileDescriptor {
	return evd.enum.file
}

// Parent implements Descriptor.
func (evd *EnumValueDescriptor) Parent() Descriptor {
	return evd.enum
}

// Number returns the value's number.
func (evd *EnumValueDescriptor) Number() protoreflect.EnumNumber {
	return evd.number
}

// Index returns the position of the value in its enum's value list.
func (evd *EnumValueDescriptor) Index() int {
	return evd.index
}
