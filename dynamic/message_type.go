package dynamic

import (
	"google.golang.org/protobuf/proto"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// MessageType associates a message type with its descriptor. The descriptor
// is resolved once, when the MessageType is created, so creating instances
// needs no lookups.
type MessageType struct {
	md *protoschema.MessageDescriptor
}

// NewMessageType returns the MessageType for the given descriptor.
func NewMessageType(md *protoschema.MessageDescriptor) *MessageType {
	if md == nil {
		panic("dynamic: nil message descriptor")
	}
	return &MessageType{md: md}
}

// MessageTypeOf returns the MessageType for the type of the given generated
// message. The message's file, and the files it imports, are imported into
// the given pool if they are not already there.
//
// This is typically called once per generated type, during initialization:
//
//	var personType = must(dynamic.MessageTypeOf(protopool.Generated(), (*peoplepb.Person)(nil)))
func MessageTypeOf(pool *protopool.Pool, msg proto.Message) (*MessageType, error) {
	md, err := pool.ImportMessage(msg)
	if err != nil {
		return nil, err
	}
	return &MessageType{md: md}, nil
}

// Descriptor returns the descriptor of the message type.
func (mt *MessageType) Descriptor() *protoschema.MessageDescriptor {
	return mt.md
}

// New creates a new, empty instance of the message type.
func (mt *MessageType) New() *Message {
	return &Message{md: mt.md}
}
