// Package dynamic provides message instances, lists and maps whose shape is
// described at runtime by sealed protoschema descriptors.
//
// Field values use these Go types:
//
//	bool                              bool
//	int32, sint32, sfixed32           int32
//	int64, sint64, sfixed64           int64
//	uint32, fixed32                   uint32
//	uint64, fixed64                   uint64
//	float                             float32
//	double                            float64
//	string                            string
//	bytes                             []byte
//	enum                              protoreflect.EnumNumber
//	message, group                    *Message
//	repeated fields                   *RepeatedField
//	map fields                        *Map
//
// Values read from a message always have these types. When setting a value,
// some other types are accepted and converted, as long as no information is
// lost: int32 and int for 64-bit signed kinds, uint32 and uint for 64-bit
// unsigned kinds, float32 for doubles, and int (or uint, for unsigned kinds)
// for 32-bit kinds when the value is in range. Enum fields also accept int32,
// int, and the name of one of the enum's values. Message values must have the
// field's exact message type. Any other value is rejected with a
// *protoschema.TypeMismatchError.
//
// Zero-length strings and byte slices read back as EmptyString and the
// shared slice returned by EmptyBytes.
//
// Encoding and decoding of messages is done by the codec package.
package dynamic
