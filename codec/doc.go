// Package codec encodes and decodes dynamic messages in the protobuf binary
// format.
//
// The actual encoding is done by the protobuf runtime. An Engine converts
// sealed schema descriptors into the runtime's descriptors, caching them,
// and copies field values between dynamic.Message and dynamicpb.Message.
// Failures reported by the runtime, such as malformed input, are returned as
// *protoschema.RuntimeError.
//
// Most programs can use the package-level Marshal and Unmarshal functions,
// which share a single engine:
//
//	b, err := codec.Marshal(msg)
//	if err != nil {
//		return err
//	}
//	clone, err := codec.Unmarshal(b, msg.Descriptor())
package codec
