package protobuilder

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// MessageBuilder is a builder used to construct a
// protoschema.MessageDescriptor. A message builder can define nested messages
// and enums in addition to defining the message's fields and one-ofs.
//
// Names and numbers are checked for uniqueness as elements are added. All
// other validation, including resolution of the types that fields refer to,
// happens when the message is sealed.
//
// To create a new MessageBuilder, use NewMessage.
type MessageBuilder struct {
	baseBuilder

	isMapEntry bool

	fieldsAndOneofs []Element
	fieldTags       map[protoreflect.FieldNumber]*FieldBuilder
	nestedMessages  []*MessageBuilder
	nestedEnums     []*EnumBuilder
	symbols         map[protoreflect.Name]Element
}

var _ Element = (*MessageBuilder)(nil)

// NewMessage creates a new MessageBuilder for a message with the given name.
// Since the new message has no parent element, it also has no package name
// (e.g. it is in the unnamed package, until it is assigned to a file builder
// that defines a package name).
func NewMessage(name protoreflect.Name) *MessageBuilder {
	return &MessageBuilder{
		baseBuilder: baseBuilderWithName(name),
		fieldTags:   map[protoreflect.FieldNumber]*FieldBuilder{},
		symbols:     map[protoreflect.Name]Element{},
	}
}

// IsMapEntry returns true if this is the synthesized entry of a map field.
func (mb *MessageBuilder) IsMapEntry() bool {
	return mb.isMapEntry
}

func (mb *MessageBuilder) children() []Element {
	ch := append([]Element(nil), mb.fieldsAndOneofs...)
	for _, nmb := range mb.nestedMessages {
		ch = append(ch, nmb)
	}
	for _, eb := range mb.nestedEnums {
		ch = append(ch, eb)
	}
	return ch
}

func (mb *MessageBuilder) addSymbol(b Element, kind string) error {
	if _, ok := mb.symbols[b.Name()]; ok {
		return &protoschema.DuplicateNameError{Name: string(FullName(mb).Append(b.Name())), Kind: kind}
	}
	mb.symbols[b.Name()] = b
	return nil
}

func (mb *MessageBuilder) addTag(flb *FieldBuilder) error {
	if ex, ok := mb.fieldTags[flb.number]; ok {
		return fmt.Errorf("message %s already contains field with number %d: %s", FullName(mb), flb.number, ex.name)
	}
	mb.fieldTags[flb.number] = flb
	return nil
}

func (mb *MessageBuilder) registerField(flb *FieldBuilder) error {
	if err := mb.addSymbol(flb, "field"); err != nil {
		return err
	}
	if err := mb.addTag(flb); err != nil {
		delete(mb.symbols, flb.name)
		return err
	}
	if flb.msgType != nil {
		if err := mb.addSymbol(flb.msgType, "message"); err != nil {
			delete(mb.symbols, flb.name)
			delete(mb.fieldTags, flb.number)
			return err
		}
	}
	return nil
}

func (mb *MessageBuilder) unregisterField(flb *FieldBuilder) {
	delete(mb.symbols, flb.name)
	delete(mb.fieldTags, flb.number)
	if flb.msgType != nil {
		delete(mb.symbols, flb.msgType.name)
	}
}

// GetField returns the field with the given name. If no such field exists in
// the message, nil is returned. The field does not have to be an immediate
// child of this message but could instead be an indirect child via a one-of.
func (mb *MessageBuilder) GetField(name protoreflect.Name) *FieldBuilder {
	flb, _ := mb.symbols[name].(*FieldBuilder)
	return flb
}

// GetOneof returns the one-of with the given name. If no such one-of exists
// in the message, nil is returned.
func (mb *MessageBuilder) GetOneof(name protoreflect.Name) *OneofBuilder {
	oob, _ := mb.symbols[name].(*OneofBuilder)
	return oob
}

// GetNestedMessage returns the nested message with the given name. If no such
// message exists, nil is returned. Map entry messages are not returned.
func (mb *MessageBuilder) GetNestedMessage(name protoreflect.Name) *MessageBuilder {
	nmb, _ := mb.symbols[name].(*MessageBuilder)
	if nmb != nil && nmb.isMapEntry {
		return nil
	}
	return nmb
}

// GetNestedEnum returns the nested enum with the given name. If no such enum
// exists, nil is returned.
func (mb *MessageBuilder) GetNestedEnum(name protoreflect.Name) *EnumBuilder {
	eb, _ := mb.symbols[name].(*EnumBuilder)
	return eb
}

func checkAddable(parent, child Element) error {
	if err := checkMutable(parent); err != nil {
		return err
	}
	if err := checkMutable(child); err != nil {
		return err
	}
	if child.Parent() != nil {
		return fmt.Errorf("%s has already been added to %s", child.Name(), describe(child.Parent()))
	}
	return nil
}

// AddField adds the given field to this message. If an error prevents the
// field from being added, this method panics. This returns the message
// builder, for method chaining.
func (mb *MessageBuilder) AddField(flb *FieldBuilder) *MessageBuilder {
	if err := mb.TryAddField(flb); err != nil {
		panic(err)
	}
	return mb
}

// TryAddField adds the given field to this message, returning any error that
// prevents the field from being added (such as a name or number collision
// with another element already added to the message).
func (mb *MessageBuilder) TryAddField(flb *FieldBuilder) error {
	if err := checkAddable(mb, flb); err != nil {
		return err
	}
	if err := mb.registerField(flb); err != nil {
		return err
	}
	flb.setParent(mb)
	mb.fieldsAndOneofs = append(mb.fieldsAndOneofs, flb)
	return nil
}

// AddOneof adds the given one-of to this message. If an error prevents the
// one-of from being added, this method panics. This returns the message
// builder, for method chaining.
func (mb *MessageBuilder) AddOneof(oob *OneofBuilder) *MessageBuilder {
	if err := mb.TryAddOneof(oob); err != nil {
		panic(err)
	}
	return mb
}

// TryAddOneof adds the given one-of to this message, returning any error that
// prevents the one-of from being added (such as a name or number collision
// between the one-of or its fields and elements already added to the
// message).
func (mb *MessageBuilder) TryAddOneof(oob *OneofBuilder) error {
	if err := checkAddable(mb, oob); err != nil {
		return err
	}
	if err := mb.addSymbol(oob, "oneof"); err != nil {
		return err
	}
	for i, flb := range oob.choices {
		if err := mb.registerField(flb); err != nil {
			delete(mb.symbols, oob.name)
			for _, added := range oob.choices[:i] {
				mb.unregisterField(added)
			}
			return err
		}
	}
	oob.setParent(mb)
	mb.fieldsAndOneofs = append(mb.fieldsAndOneofs, oob)
	return nil
}

// AddNestedMessage adds the given message as a nested child of this message.
// If an error prevents the message from being added, this method panics. This
// returns the message builder, for method chaining.
func (mb *MessageBuilder) AddNestedMessage(nmb *MessageBuilder) *MessageBuilder {
	if err := mb.TryAddNestedMessage(nmb); err != nil {
		panic(err)
	}
	return mb
}

// TryAddNestedMessage adds the given message as a nested child of this
// message, returning any error that prevents the message from being added
// (such as a name collision with another element already added to the
// message).
func (mb *MessageBuilder) TryAddNestedMessage(nmb *MessageBuilder) error {
	if err := checkAddable(mb, nmb); err != nil {
		return err
	}
	if err := mb.addSymbol(nmb, "message"); err != nil {
		return err
	}
	nmb.setParent(mb)
	mb.nestedMessages = append(mb.nestedMessages, nmb)
	return nil
}

// AddNestedEnum adds the given enum as a nested child of this message. If an
// error prevents the enum from being added, this method panics. This returns
// the message builder, for method chaining.
func (mb *MessageBuilder) AddNestedEnum(eb *EnumBuilder) *MessageBuilder {
	if err := mb.TryAddNestedEnum(eb); err != nil {
		panic(err)
	}
	return mb
}

// TryAddNestedEnum adds the given enum as a nested child of this message,
// returning any error that prevents the enum from being added (such as a name
// collision with another element already added to the message).
func (mb *MessageBuilder) TryAddNestedEnum(eb *EnumBuilder) error {
	if err := checkAddable(mb, eb); err != nil {
		return err
	}
	if err := mb.addSymbol(eb, "enum"); err != nil {
		return err
	}
	eb.setParent(mb)
	mb.nestedEnums = append(mb.nestedEnums, eb)
	return nil
}

// Optional is a shorthand that adds an optional field with the given name,
// type and number. It panics if the field cannot be added. It returns the
// message builder, for method chaining.
func (mb *MessageBuilder) Optional(name protoreflect.Name, typ *FieldType, number protoreflect.FieldNumber) *MessageBuilder {
	return mb.AddField(NewField(name, typ, number))
}

// Required is a shorthand that adds a required field with the given name,
// type and number. It panics if the field cannot be added. It returns the
// message builder, for method chaining.
func (mb *MessageBuilder) Required(name protoreflect.Name, typ *FieldType, number protoreflect.FieldNumber) *MessageBuilder {
	return mb.AddField(NewField(name, typ, number).SetRequired())
}

// Repeated is a shorthand that adds a repeated field with the given name,
// type and number. It panics if the field cannot be added. It returns the
// message builder, for method chaining.
func (mb *MessageBuilder) Repeated(name protoreflect.Name, typ *FieldType, number protoreflect.FieldNumber) *MessageBuilder {
	return mb.AddField(NewField(name, typ, number).SetRepeated())
}

// Map is a shorthand that adds a map field with the given name, key and value
// types, and number. It panics if the field cannot be added. It returns the
// message builder, for method chaining.
func (mb *MessageBuilder) Map(name protoreflect.Name, keyTyp, valTyp *FieldType, number protoreflect.FieldNumber) *MessageBuilder {
	return mb.AddField(NewMapField(name, keyTyp, valTyp, number))
}

// Oneof is a shorthand that creates a one-of with the given name, invokes fn
// to populate it, and then adds it to this message. It panics if the one-of
// cannot be added. It returns the message builder, for method chaining.
func (mb *MessageBuilder) Oneof(name protoreflect.Name, fn func(*OneofBuilder)) *MessageBuilder {
	oob := NewOneof(name)
	fn(oob)
	return mb.AddOneof(oob)
}

func (mb *MessageBuilder) buildProto(imports *importSet) (*descriptorpb.DescriptorProto, error) {
	mp := &descriptorpb.DescriptorProto{
		Name: proto.String(string(mb.name)),
	}
	if mb.isMapEntry {
		mp.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	}

	for _, b := range mb.fieldsAndOneofs {
		switch b := b.(type) {
		case *FieldBuilder:
			mp.Field = append(mp.Field, b.buildProto(imports))
			if b.msgType != nil {
				nmp, err := b.msgType.buildProto(imports)
				if err != nil {
					return nil, err
				}
				mp.NestedType = append(mp.NestedType, nmp)
			}
		case *OneofBuilder:
			if len(b.choices) == 0 {
				return nil, fmt.Errorf("one-of %s must have at least one choice", FullName(b))
			}
			index := proto.Int32(int32(len(mp.OneofDecl)))
			mp.OneofDecl = append(mp.OneofDecl, &descriptorpb.OneofDescriptorProto{
				Name: proto.String(string(b.name)),
			})
			for _, flb := range b.choices {
				fp := flb.buildProto(imports)
				fp.OneofIndex = index
				mp.Field = append(mp.Field, fp)
			}
		}
	}

	// synthetic one-ofs for proto3 optional fields must follow all others
	for _, fp := range mp.Field {
		if !fp.GetProto3Optional() {
			continue
		}
		fp.OneofIndex = proto.Int32(int32(len(mp.OneofDecl)))
		mp.OneofDecl = append(mp.OneofDecl, &descriptorpb.OneofDescriptorProto{
			Name: proto.String(mb.syntheticOneofName(fp.GetName(), mp.OneofDecl)),
		})
	}

	for _, nmb := range mb.nestedMessages {
		nmp, err := nmb.buildProto(imports)
		if err != nil {
			return nil, err
		}
		mp.NestedType = append(mp.NestedType, nmp)
	}
	for _, eb := range mb.nestedEnums {
		mp.EnumType = append(mp.EnumType, eb.buildProto())
	}
	return mp, nil
}

// syntheticOneofName computes the name that protoc gives to the one-of that
// encloses a proto3 optional field: the field name with a leading underscore,
// prefixed with "X" until it no longer conflicts with another element.
func (mb *MessageBuilder) syntheticOneofName(fieldName string, oneofs []*descriptorpb.OneofDescriptorProto) string {
	name := "_" + fieldName
	for {
		conflict := mb.symbols[protoreflect.Name(name)] != nil
		for _, od := range oneofs {
			if od.GetName() == name {
				conflict = true
			}
		}
		if !conflict {
			return name
		}
		name = "X" + name
	}
}

// Build seals this message into a descriptor. The message must not belong to
// a file; use FileBuilder.Build for that. A file with a unique path is
// synthesized to hold the message (or the top-level message that encloses
// it). The given pool, which may be nil, is used to resolve types referenced
// by name but is not modified. To make the message available by name, register
// the result with protopool.Pool.Register.
//
// The synthesized file uses "proto3" syntax, unless a field requires "proto2"
// (such as a required field or one with a default value).
//
// If the message has been sealed before, a *protoschema.IllegalStateError is
// returned. If sealing fails, the builder is left unsealed so that it can be
// corrected and built again.
func (mb *MessageBuilder) Build(pool *protopool.Pool) (*protoschema.MessageDescriptor, error) {
	d, err := buildDetached(mb, pool)
	if err != nil {
		return nil, err
	}
	return d.(*protoschema.MessageDescriptor), nil
}
