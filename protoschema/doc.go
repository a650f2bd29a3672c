// Package protoschema contains the sealed, immutable descriptor model: files,
// messages, fields, oneofs, enums and enum values.
//
// Descriptors are never constructed directly. They are produced by sealing a
// *descriptorpb.FileDescriptorProto with NewFile, which validates the file and
// resolves all type references. Usually this is done indirectly, by a builder
// in the protobuilder package or by importing compiled descriptors into a
// protopool.Pool.
//
// Sealing resolves type names lazily, against whatever a Resolver knows at the
// time the file is sealed, so types may be declared in any order within a file
// and across the files of a batch.
//
// This package also defines the error types shared by the other packages in
// this module. Use errors.As to test for them.
package protoschema
