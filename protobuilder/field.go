package protobuilder

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protoschema"
)

// FieldBuilder is a builder used to construct a protoschema.FieldDescriptor.
// A field builder must be added to a message (or to a one-of that is part of
// a message) before it can be sealed.
//
// To create a new FieldBuilder, use NewField or NewMapField.
type FieldBuilder struct {
	baseBuilder
	number protoreflect.FieldNumber

	// msgType is populated for map fields, where it is the synthesized map
	// entry message.
	msgType   *MessageBuilder
	fieldType *FieldType

	cardinality    protoreflect.Cardinality
	proto3Optional bool
	defaultValue   *string
	jsonName       string
}

var _ Element = (*FieldBuilder)(nil)

// NewField creates a new FieldBuilder for a field with the given name, type
// and number. To create a map field, use NewMapField.
//
// The new field will be optional. See SetRepeated and SetRequired for
// changing this aspect of the field. This function panics if the name is not
// a valid identifier.
func NewField(name protoreflect.Name, typ *FieldType, number protoreflect.FieldNumber) *FieldBuilder {
	return &FieldBuilder{
		baseBuilder: baseBuilderWithName(name),
		number:      number,
		fieldType:   typ,
		cardinality: protoreflect.Optional,
	}
}

// NewMapField creates a new FieldBuilder for a field with the given name and
// number whose type is a map of the given key and value types. Map keys can be
// any of the scalar integer types, booleans, or strings. If any other type is
// specified, this function will panic.
//
// The map entry message, named after the field with an "Entry" suffix, is
// synthesized and will be declared in the message to which the field is added.
func NewMapField(name protoreflect.Name, keyTyp, valTyp *FieldType, number protoreflect.FieldNumber) *FieldBuilder {
	if !internal.IsMapKeyKind(keyTyp.kind) {
		panic(fmt.Sprintf("map types cannot have keys of type %v", keyTyp.kind))
	}
	entryMsg := NewMessage(entryTypeName(name))
	entryMsg.isMapEntry = true
	entryMsg.AddField(NewField("key", keyTyp, internal.MapKeyNumber))
	entryMsg.AddField(NewField("value", valTyp, internal.MapValueNumber))

	flb := NewField(name, FieldTypeMessage(entryMsg), number)
	flb.cardinality = protoreflect.Repeated
	flb.msgType = entryMsg
	entryMsg.setParent(flb)
	return flb
}

func (flb *FieldBuilder) children() []Element {
	if flb.msgType != nil {
		return []Element{flb.msgType}
	}
	return nil
}

// Number returns the field's number.
func (flb *FieldBuilder) Number() protoreflect.FieldNumber {
	return flb.number
}

// Type returns the type of this field. For map fields, this refers to the
// synthesized map entry message.
func (flb *FieldBuilder) Type() *FieldType {
	return flb.fieldType
}

// Cardinality returns whether the field is optional, required or repeated.
func (flb *FieldBuilder) Cardinality() protoreflect.Cardinality {
	return flb.cardinality
}

// IsMap returns true if this is a map field.
func (flb *FieldBuilder) IsMap() bool {
	return flb.msgType != nil && flb.msgType.isMapEntry
}

// SetRepeated sets the cardinality of this field to repeated. This panics if
// the field is a map field, belongs to a one-of, or has been sealed. It returns
// the field builder, for method chaining.
func (flb *FieldBuilder) SetRepeated() *FieldBuilder {
	return flb.setCardinality(protoreflect.Repeated)
}

// SetRequired sets the cardinality of this field to required. Required fields
// can only be sealed in files with "proto2" syntax. This panics if the field is
// a map field, belongs to a one-of, or has been sealed. It returns the field
// builder, for method chaining.
func (flb *FieldBuilder) SetRequired() *FieldBuilder {
	return flb.setCardinality(protoreflect.Required)
}

// SetOptional sets the cardinality of this field to optional. This panics if
// the field is a map field or has been sealed. It returns the field builder,
// for method chaining.
func (flb *FieldBuilder) SetOptional() *FieldBuilder {
	return flb.setCardinality(protoreflect.Optional)
}

func (flb *FieldBuilder) setCardinality(card protoreflect.Cardinality) *FieldBuilder {
	mustBeMutable(flb)
	if flb.IsMap() {
		panic(fmt.Sprintf("cannot change cardinality of map field %s", FullName(flb)))
	}
	if _, ok := flb.parent.(*OneofBuilder); ok && card != protoreflect.Optional {
		panic(fmt.Sprintf("one-of member %s must be optional", FullName(flb)))
	}
	flb.cardinality = card
	if card != protoreflect.Optional {
		flb.proto3Optional = false
	}
	return flb
}

// SetProto3Optional sets whether this is a proto3 optional field, which tracks
// presence explicitly. Such fields can only be sealed in files with "proto3"
// syntax. A synthetic one-of that encloses the field is generated when the
// field is sealed. It returns the field builder, for method chaining.
func (flb *FieldBuilder) SetProto3Optional(p3o bool) *FieldBuilder {
	mustBeMutable(flb)
	if p3o && flb.cardinality != protoreflect.Optional {
		panic(fmt.Sprintf("field %s must be optional to be a proto3 optional field", FullName(flb)))
	}
	flb.proto3Optional = p3o
	return flb
}

// IsProto3Optional returns true if this is a proto3 optional field.
func (flb *FieldBuilder) IsProto3Optional() bool {
	return flb.proto3Optional
}

// SetDefaultValue sets the default value for this field, in the same textual
// form used in .proto source. Enum defaults are given as the value name.
// Default values are only allowed for singular, non-message fields in files
// with "proto2" syntax; the value is validated when the field is sealed. It
// returns the field builder, for method chaining.
func (flb *FieldBuilder) SetDefaultValue(defValue string) *FieldBuilder {
	mustBeMutable(flb)
	flb.defaultValue = proto.String(defValue)
	return flb
}

// SetJSONName sets the name used for this field in JSON. If never set, the
// JSON name is computed from the field's name. It returns the field builder,
// for method chaining.
func (flb *FieldBuilder) SetJSONName(jsonName string) *FieldBuilder {
	mustBeMutable(flb)
	flb.jsonName = jsonName
	return flb
}

func (flb *FieldBuilder) buildProto(imports *importSet) *descriptorpb.FieldDescriptorProto {
	var label descriptorpb.FieldDescriptorProto_Label
	switch flb.cardinality {
	case protoreflect.Repeated:
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	case protoreflect.Required:
		label = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
	default:
		label = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	}
	fp := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(string(flb.name)),
		Number: proto.Int32(int32(flb.number)),
		Label:  label.Enum(),
	}
	if flb.proto3Optional {
		fp.Proto3Optional = proto.Bool(true)
	}
	if flb.defaultValue != nil {
		fp.DefaultValue = proto.String(*flb.defaultValue)
	}
	if flb.jsonName != "" {
		fp.JsonName = proto.String(flb.jsonName)
	}

	ft := flb.fieldType
	switch {
	case ft.localMsgType != nil:
		fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		fp.TypeName = proto.String("." + string(ft.TypeName()))
		imports.addBuilder(ft.localMsgType)
	case ft.localEnumType != nil:
		fp.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
		fp.TypeName = proto.String("." + string(ft.TypeName()))
		imports.addBuilder(ft.localEnumType)
	case ft.importedMsgType != nil:
		fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		fp.TypeName = proto.String("." + string(ft.importedMsgType.FullName()))
		imports.add(ft.importedMsgType)
	case ft.importedEnumType != nil:
		fp.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
		fp.TypeName = proto.String("." + string(ft.importedEnumType.FullName()))
		imports.add(ft.importedEnumType)
	case ft.typeName != "":
		fp.TypeName = proto.String(ft.typeName)
	default:
		fp.Type = descriptorpb.FieldDescriptorProto_Type(ft.kind).Enum()
	}
	return fp
}

// OneofBuilder is a builder used to construct a protoschema.OneofDescriptor.
// A one-of builder must be added to a message before it can be sealed.
//
// To create a new OneofBuilder, use NewOneof.
type OneofBuilder struct {
	baseBuilder

	choices []*FieldBuilder
	symbols map[protoreflect.Name]*FieldBuilder
}

var _ Element = (*OneofBuilder)(nil)

// NewOneof creates a new OneofBuilder for a one-of with the given name.
func NewOneof(name protoreflect.Name) *OneofBuilder {
	return &OneofBuilder{
		baseBuilder: baseBuilderWithName(name),
		symbols:     map[protoreflect.Name]*FieldBuilder{},
	}
}

func (oob *OneofBuilder) children() []Element {
	ch := make([]Element, len(oob.choices))
	for i, flb := range oob.choices {
		ch[i] = flb
	}
	return ch
}

func (oob *OneofBuilder) parentMessage() *MessageBuilder {
	mb, _ := oob.parent.(*MessageBuilder)
	return mb
}

// Choices returns the fields in this one-of, in the order they were added.
func (oob *OneofBuilder) Choices() []*FieldBuilder {
	return append([]*FieldBuilder(nil), oob.choices...)
}

// GetChoice returns the field with the given name. If no such field exists in
// the one-of, nil is returned.
func (oob *OneofBuilder) GetChoice(name protoreflect.Name) *FieldBuilder {
	return oob.symbols[name]
}

// AddChoice adds the given field to this one-of. If an error prevents the
// field from being added, this method panics. It returns the one-of builder,
// for method chaining.
func (oob *OneofBuilder) AddChoice(flb *FieldBuilder) *OneofBuilder {
	if err := oob.TryAddChoice(flb); err != nil {
		panic(err)
	}
	return oob
}

// TryAddChoice adds the given field to this one-of, returning any error that
// prevents the field from being added (such as a name or number collision
// with another element already added to the one-of or its message). Fields
// in a one-of must be optional and cannot be map fields.
func (oob *OneofBuilder) TryAddChoice(flb *FieldBuilder) error {
	if err := checkMutable(oob); err != nil {
		return err
	}
	if err := checkMutable(flb); err != nil {
		return err
	}
	if flb.parent != nil {
		return fmt.Errorf("field %s has already been added to %s", flb.name, describe(flb.parent))
	}
	if flb.IsMap() || flb.cardinality != protoreflect.Optional {
		return fmt.Errorf("one-of %s cannot contain %v field %s", FullName(oob), flb.cardinality, flb.name)
	}
	if flb.proto3Optional {
		return fmt.Errorf("one-of %s cannot contain proto3 optional field %s", FullName(oob), flb.name)
	}
	if _, ok := oob.symbols[flb.name]; ok {
		return &protoschema.DuplicateNameError{Name: string(FullName(oob).Parent().Append(flb.name)), Kind: "field"}
	}
	if mb := oob.parentMessage(); mb != nil {
		if err := mb.registerField(flb); err != nil {
			return err
		}
	}
	oob.symbols[flb.name] = flb
	oob.choices = append(oob.choices, flb)
	flb.setParent(oob)
	return nil
}

// Optional is a shorthand that creates a new field with the given name, type
// and number and adds it to this one-of. It panics if the field cannot be
// added. It returns the one-of builder, for method chaining.
func (oob *OneofBuilder) Optional(name protoreflect.Name, typ *FieldType, number protoreflect.FieldNumber) *OneofBuilder {
	return oob.AddChoice(NewField(name, typ, number))
}

func entryTypeName(fieldName protoreflect.Name) protoreflect.Name {
	var sb strings.Builder
	upperNext := true
	for _, c := range fieldName {
		if c == '_' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upperNext = false
		sb.WriteRune(c)
	}
	sb.WriteString("Entry")
	return protoreflect.Name(sb.String())
}
