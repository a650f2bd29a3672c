// Package protopool provides Pool, a thread-safe registry of sealed
// descriptors.
//
// A pool indexes messages and enums by fully-qualified name and files by path.
// It also serves as the protoschema.Resolver against which new files are
// sealed, so a file built or imported into a pool may refer to any type that
// the pool already contains. Pools are independent of one another.
//
// Descriptors compiled by other means, such as generated code or a .proto
// compiler, can be brought into a pool with ImportFile and ImportMessage.
package protopool
