package protobuilder

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

type enumValue struct {
	name   protoreflect.Name
	number protoreflect.EnumNumber
}

// EnumBuilder is a builder used to construct a protoschema.EnumDescriptor.
// Values are kept in the order they are added; the first one is the enum's
// default. More than one name may share a number.
//
// To create a new EnumBuilder, use NewEnum.
type EnumBuilder struct {
	baseBuilder

	values  []enumValue
	symbols map[protoreflect.Name]struct{}
}

var _ Element = (*EnumBuilder)(nil)

// NewEnum creates a new EnumBuilder for an enum with the given name. Since the
// new enum has no parent element, it also has no package name (e.g. it is in
// the unnamed package, until it is assigned to a file builder that defines a
// package name).
func NewEnum(name protoreflect.Name) *EnumBuilder {
	return &EnumBuilder{
		baseBuilder: baseBuilderWithName(name),
		symbols:     map[protoreflect.Name]struct{}{},
	}
}

func (eb *EnumBuilder) children() []Element {
	return nil
}

// NumValues returns the number of values added to the enum.
func (eb *EnumBuilder) NumValues() int {
	return len(eb.values)
}

// AddValue adds a value with the given name and number to this enum. If an
// error prevents the value from being added, this method panics. This returns
// the enum builder, for method chaining.
func (eb *EnumBuilder) AddValue(name protoreflect.Name, number protoreflect.EnumNumber) *EnumBuilder {
	if err := eb.TryAddValue(name, number); err != nil {
		panic(err)
	}
	return eb
}

// TryAddValue adds a value with the given name and number to this enum,
// returning any error that prevents it from being added, such as an invalid
// name or a name that is already used by another value.
func (eb *EnumBuilder) TryAddValue(name protoreflect.Name, number protoreflect.EnumNumber) error {
	if err := checkMutable(eb); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if _, ok := eb.symbols[name]; ok {
		// enum values are scoped as siblings of the enum
		return &protoschema.DuplicateNameError{Name: string(FullName(eb).Parent().Append(name)), Kind: "enum value"}
	}
	eb.symbols[name] = struct{}{}
	eb.values = append(eb.values, enumValue{name: name, number: number})
	return nil
}

func (eb *EnumBuilder) buildProto() *descriptorpb.EnumDescriptorProto {
	values := make([]*descriptorpb.EnumValueDescriptorProto, len(eb.values))
	for i, v := range eb.values {
		values[i] = &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(string(v.name)),
			Number: proto.Int32(int32(v.number)),
		}
	}
	return &descriptorpb.EnumDescriptorProto{
		Name:  proto.String(string(eb.name)),
		Value: values,
	}
}

// Build seals this enum into a descriptor. The enum must not belong to a
// file; use FileBuilder.Build for that. A file with a unique path is
// synthesized to hold the enum (or the top-level message that encloses it).
// The given pool, which may be nil, is not modified. To make the enum
// available by name, register the result with protopool.Pool.Register.
//
// If the enum has been sealed before, a *protoschema.IllegalStateError is
// returned. If sealing fails, the builder is left unsealed so that it can be
// corrected and built again.
func (eb *EnumBuilder) Build(pool *protopool.Pool) (*protoschema.EnumDescriptor, error) {
	d, err := buildDetached(eb, pool)
	if err != nil {
		return nil, err
	}
	return d.(*protoschema.EnumDescriptor), nil
}
