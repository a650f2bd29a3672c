// Package protobuilder contains a means of building and modifying proto
// schemas programmatically, and sealing them into descriptors.
//
// Builders are mutable until they are sealed. A FileBuilder is sealed with
// its Build method, which also registers the resulting file with a
// protopool.Pool. A Builder collects several files that may refer to one
// another, and its Commit method seals them together and registers them
// atomically. Messages and enums that are not part of a file can also be
// built directly, in which case they are placed in a synthesized file.
//
// Once sealed, builders can no longer be changed: methods that mutate a
// sealed builder panic, and their Try* counterparts return a
// *protoschema.IllegalStateError. A builder whose seal fails is left
// unchanged, so the problem can be fixed and the build retried.
//
// Fields can refer to message and enum types in three ways: to another
// builder (FieldTypeMessage and FieldTypeEnum), to an already-sealed
// descriptor (FieldTypeImportedMessage and FieldTypeImportedEnum), or by name
// (FieldTypeNamed). Names are resolved at seal time, so a message can refer
// to a message that is declared after it, or to itself.
//
// Example:
//
//	fb := protobuilder.NewFile("person.proto").SetPackage("people")
//	fb.AddMessage(protobuilder.NewMessage("Person").
//		Optional("name", protobuilder.FieldTypeString(), 1).
//		Repeated("friends", protobuilder.FieldTypeNamed("Person"), 2))
//	fd, err := fb.Build(pool)
package protobuilder
