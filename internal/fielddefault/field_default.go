// Package fielddefault interprets the textual default values stored in the
// default_value field of a google.protobuf.FieldDescriptorProto.
package fielddefault

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

var noDeps protoregistry.Files

// Parse interprets s as the default value literal of a field with the given
// scalar kind. The returned value has the Go type used by dynamic messages
// for that kind (int32, int64, uint32, uint64, float32, float64, bool, string
// or []byte).
//
// Literals are interpreted by the protobuf runtime, so anything accepted here
// is also accepted when the field's file is later converted with protodesc.
//
// Enum, message and group kinds cannot be parsed here: enum literals are value
// names that must be resolved against the enum's descriptor.
func Parse(kind protoreflect.Kind, s string) (any, error) {
	switch kind {
	case protoreflect.EnumKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return nil, fmt.Errorf("cannot parse default value for field of kind %v", kind)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("cannot parse default value for field of kind %v", kind)
	}
	fd, err := protodesc.NewFile(&descriptorpb.FileDescriptorProto{
		Name:   proto.String("default.proto"),
		Syntax: proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Default"),
			Field: []*descriptorpb.FieldDescriptorProto{{
				Name:         proto.String("value"),
				Number:       proto.Int32(1),
				Label:        descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:         descriptorpb.FieldDescriptorProto_Type(kind).Enum(),
				DefaultValue: proto.String(s),
			}},
		}},
	}, &noDeps)
	if err != nil {
		return nil, fmt.Errorf("invalid %v literal %q", kind, s)
	}
	return fd.Messages().Get(0).Fields().Get(0).Default().Interface(), nil
}
