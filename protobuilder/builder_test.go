package protobuilder

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

func buildPersonFile() (*FileBuilder, *MessageBuilder) {
	status := NewEnum("Status").
		AddValue("STATUS_UNKNOWN", 0).
		AddValue("STATUS_ACTIVE", 1)
	addr := NewMessage("Address").
		Optional("street", FieldTypeString(), 1).
		Optional("zip", FieldTypeString(), 2)
	person := NewMessage("Person").
		Optional("name", FieldTypeString(), 1).
		Optional("id", FieldTypeInt32(), 2).
		Repeated("emails", FieldTypeString(), 3).
		Optional("status", FieldTypeEnum(status), 4).
		Map("labels", FieldTypeString(), FieldTypeString(), 5).
		Oneof("contact", func(oob *OneofBuilder) {
			oob.Optional("phone", FieldTypeString(), 6).
				Optional("address", FieldTypeMessage(addr), 7)
		}).
		Repeated("friends", FieldTypeNamed("Person"), 8).
		AddNestedMessage(addr)
	fb := NewFile("people/person.proto").
		SetPackage("people").
		AddMessage(person).
		AddEnum(status)
	return fb, person
}

func TestFileBuilder_Build(t *testing.T) {
	fb, person := buildPersonFile()
	pool := protopool.New()
	fd, err := fb.Build(pool)
	require.NoError(t, err)
	require.Equal(t, "people/person.proto", fd.Path())
	require.Equal(t, protoreflect.FullName("people"), fd.Package())
	require.Equal(t, protoreflect.Proto3, fd.Syntax())

	md := pool.LookupMessage("people.Person")
	require.NotNil(t, md)
	require.Same(t, fd, md.ParentFile())
	require.Equal(t, 8, md.NumFields())

	require.Equal(t, protoreflect.StringKind, md.FieldByName("name").Kind())
	require.Equal(t, protoreflect.Repeated, md.FieldByName("emails").Cardinality())
	require.Equal(t, protoreflect.FullName("people.Status"), md.FieldByName("status").Enum().FullName())

	labels := md.FieldByName("labels")
	require.True(t, labels.IsMap())
	require.Equal(t, protoreflect.StringKind, labels.MapKey().Kind())
	require.Equal(t, protoreflect.StringKind, labels.MapValue().Kind())
	require.Equal(t, protoreflect.FullName("people.Person.LabelsEntry"), labels.Message().FullName())

	contact := md.OneofByName("contact")
	require.NotNil(t, contact)
	require.Len(t, contact.Fields(), 2)
	require.Equal(t, protoreflect.FullName("people.Person.Address"), md.FieldByName("address").Message().FullName())
	require.Same(t, contact, md.FieldByName("phone").ContainingOneof())

	friends := md.FieldByName("friends")
	require.Same(t, md, friends.Message())
	require.Equal(t, protoreflect.MessageKind, friends.Kind())

	require.NotNil(t, pool.LookupEnum("people.Status"))
	require.NotNil(t, pool.LookupMessage("people.Person.Address"))
	require.Same(t, fd, pool.FindFileByPath("people/person.proto"))

	require.True(t, fb.IsSealed())
	require.True(t, person.IsSealed())
	require.True(t, person.GetField("name").IsSealed())
	require.True(t, person.GetField("phone").IsSealed())
	require.True(t, person.GetNestedMessage("Address").IsSealed())
	require.True(t, fb.GetEnum("Status").IsSealed())
}

func TestFileBuilder_Sealed(t *testing.T) {
	fb, person := buildPersonFile()
	pool := protopool.New()
	_, err := fb.Build(pool)
	require.NoError(t, err)

	var stateErr *protoschema.IllegalStateError
	_, err = fb.Build(pool)
	require.ErrorAs(t, err, &stateErr)

	err = person.TryAddField(NewField("extra", FieldTypeBool(), 20))
	require.ErrorAs(t, err, &stateErr)
	err = fb.TryAddMessage(NewMessage("Other"))
	require.ErrorAs(t, err, &stateErr)
	err = fb.GetEnum("Status").TryAddValue("STATUS_GONE", 2)
	require.ErrorAs(t, err, &stateErr)

	require.Panics(t, func() { person.Optional("extra", FieldTypeBool(), 20) })
	require.Panics(t, func() { person.GetField("name").SetJSONName("fullName") })
	require.Panics(t, func() { fb.SetPackage("other") })

	// a sealed field cannot be moved into a new message either
	err = NewMessage("Other").TryAddField(person.GetField("name"))
	require.ErrorAs(t, err, &stateErr)
}

func TestFileBuilder_FailedBuildCanBeRetried(t *testing.T) {
	fb := NewFile("retry.proto").SetPackage("retry")
	fb.AddMessage(NewMessage("Holder").Optional("missing", FieldTypeNamed("Missing"), 1))

	pool := protopool.New()
	_, err := fb.Build(pool)
	var unresolved *protoschema.UnresolvedTypeError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "Missing", unresolved.Name)
	require.Equal(t, "retry.Holder.missing", unresolved.Referrer)
	require.False(t, fb.IsSealed())
	require.Zero(t, pool.NumFiles())

	fb.AddEnum(NewEnum("Missing").AddValue("MISSING_ZERO", 0))
	fd, err := fb.Build(pool)
	require.NoError(t, err)
	require.Equal(t, protoreflect.EnumKind, fd.FindMessage("Holder").FieldByName("missing").Kind())
	require.Equal(t, 1, pool.NumFiles())
}

func TestFileBuilder_RegistrationConflict(t *testing.T) {
	pool := protopool.New()
	_, err := NewFile("first.proto").SetPackage("pkg").
		AddMessage(NewMessage("Thing")).
		Build(pool)
	require.NoError(t, err)

	fb := NewFile("second.proto").SetPackage("pkg").AddMessage(NewMessage("Thing"))
	_, err = fb.Build(pool)
	var dupErr *protoschema.DuplicateNameError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "pkg.Thing", dupErr.Name)
	require.Equal(t, "first.proto", dupErr.Existing)
	require.False(t, fb.IsSealed())
	require.Nil(t, pool.FindFileByPath("second.proto"))
}

func TestBuilder_DuplicatesRejectedWhenAdded(t *testing.T) {
	fb := NewFile("dups.proto").SetPackage("dups")
	color := NewEnum("Color").AddValue("RED", 0)
	msg := NewMessage("Foo").Optional("color", FieldTypeEnum(color), 1)
	fb.AddMessage(msg).AddEnum(color)

	var dupErr *protoschema.DuplicateNameError
	err := msg.TryAddField(NewField("color", FieldTypeString(), 2))
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dups.Foo.color", dupErr.Name)
	require.Equal(t, "field", dupErr.Kind)

	err = msg.TryAddField(NewField("other", FieldTypeBool(), 1))
	require.ErrorContains(t, err, "already contains field with number 1: color")
	require.Nil(t, msg.GetField("other"))

	err = color.TryAddValue("RED", 3)
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dups.RED", dupErr.Name)
	require.Equal(t, "enum value", dupErr.Kind)

	err = fb.TryAddEnum(NewEnum("Foo"))
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dups.Foo", dupErr.Name)
	require.Equal(t, "dups.proto", dupErr.Existing)

	// a one-of whose choice conflicts is rolled back entirely
	oob := NewOneof("choice").
		Optional("a", FieldTypeString(), 10).
		Optional("b", FieldTypeString(), 1)
	err = msg.TryAddOneof(oob)
	require.Error(t, err)
	require.Nil(t, msg.GetOneof("choice"))
	require.Nil(t, msg.GetField("a"))
	require.NoError(t, msg.TryAddField(NewField("a", FieldTypeString(), 10)))

	// elements cannot belong to two parents
	err = NewFile("other.proto").TryAddMessage(msg)
	require.ErrorContains(t, err, "has already been added to file \"dups.proto\"")

	require.Panics(t, func() { NewMessage("not valid") })
	require.Panics(t, func() { NewMapField("m", FieldTypeDouble(), FieldTypeString(), 1) })
}

func TestFileBuilder_BuildProto(t *testing.T) {
	color := NewEnum("Color").AddValue("RED", 0).AddValue("BLUE", 1)
	foo := NewMessage("Foo").
		Optional("color", FieldTypeEnum(color), 1).
		Map("counts", FieldTypeString(), FieldTypeInt64(), 2)
	fb := NewFile("foo.proto").SetPackage("foo.bar").AddMessage(foo).AddEnum(color)

	fdp, err := fb.BuildProto()
	require.NoError(t, err)

	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	expected := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("foo.proto"),
		Package: proto.String("foo.bar"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Foo"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("color"),
						Number:   proto.Int32(1),
						Label:    optional,
						Type:     descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(),
						TypeName: proto.String(".foo.bar.Color"),
					},
					{
						Name:     proto.String("counts"),
						Number:   proto.Int32(2),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						TypeName: proto.String(".foo.bar.Foo.CountsEntry"),
					},
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("CountsEntry"),
						Field: []*descriptorpb.FieldDescriptorProto{
							{
								Name:   proto.String("key"),
								Number: proto.Int32(1),
								Label:  optional,
								Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
							},
							{
								Name:   proto.String("value"),
								Number: proto.Int32(2),
								Label:  optional,
								Type:   descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
							},
						},
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
					},
				},
			},
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{
				Name: proto.String("Color"),
				Value: []*descriptorpb.EnumValueDescriptorProto{
					{Name: proto.String("RED"), Number: proto.Int32(0)},
					{Name: proto.String("BLUE"), Number: proto.Int32(1)},
				},
			},
		},
	}
	if diff := cmp.Diff(expected, fdp, protocmp.Transform()); diff != "" {
		t.Errorf("unexpected descriptor proto (-want +got):\n%s", diff)
	}
	// building the proto does not seal anything
	require.False(t, fb.IsSealed())
}

func TestMessageBuilder_Proto3Optional(t *testing.T) {
	msg := NewMessage("Profile").
		Oneof("choice", func(oob *OneofBuilder) {
			oob.Optional("a", FieldTypeString(), 1).
				Optional("b", FieldTypeInt64(), 2)
		}).
		AddField(NewField("nick", FieldTypeString(), 3).SetProto3Optional(true)).
		Optional("_nick", FieldTypeBool(), 4)

	mp, err := msg.buildProto(newImportSet())
	require.NoError(t, err)
	require.Len(t, mp.OneofDecl, 2)
	require.Equal(t, "choice", mp.OneofDecl[0].GetName())
	// the natural name conflicts with a field, so it gets a prefix
	require.Equal(t, "X_nick", mp.OneofDecl[1].GetName())
	require.Equal(t, int32(1), mp.Field[2].GetOneofIndex())

	md, err := msg.Build(nil)
	require.NoError(t, err)
	nick := md.FieldByName("nick")
	require.True(t, nick.IsProto3Optional())
	require.True(t, nick.HasPresence())
	require.True(t, nick.ContainingOneof().IsSynthetic())
	require.False(t, md.OneofByName("choice").IsSynthetic())
	require.False(t, md.FieldByName("_nick").HasPresence())
}

func TestMessageBuilder_BuildDetached(t *testing.T) {
	kind := NewEnum("Kind").AddValue("KIND_NONE", 0)
	point := NewMessage("Point").
		Optional("x", FieldTypeInt32(), 1).
		Optional("y", FieldTypeInt32(), 2).
		Optional("kind", FieldTypeEnum(kind), 3).
		AddNestedEnum(kind)

	ed, err := kind.Build(nil)
	require.NoError(t, err)
	require.Equal(t, protoreflect.FullName("Point.Kind"), ed.FullName())
	require.True(t, strings.HasPrefix(ed.ParentFile().Path(), "{generated-file-"))
	require.Equal(t, protoreflect.Proto3, ed.ParentFile().Syntax())
	require.True(t, point.IsSealed())

	var stateErr *protoschema.IllegalStateError
	_, err = point.Build(nil)
	require.ErrorAs(t, err, &stateErr)

	legacy := NewMessage("Legacy").
		Required("id", FieldTypeInt64(), 1).
		AddField(NewField("ratio", FieldTypeFloat(), 2).SetDefaultValue("1.5"))
	md, err := legacy.Build(nil)
	require.NoError(t, err)
	require.Equal(t, protoreflect.Proto2, md.Syntax())
	require.Equal(t, float32(1.5), md.FieldByName("ratio").Default())
	require.Len(t, md.RequiredFields(), 1)

	// detached builds do not register anything
	pool := protopool.New()
	_, err = NewMessage("Loose").Build(pool)
	require.NoError(t, err)
	require.Zero(t, pool.NumFiles())
	require.Nil(t, pool.LookupMessage("Loose"))

	inFile := NewMessage("InFile")
	NewFile("in_file.proto").AddMessage(inFile)
	_, err = inFile.Build(nil)
	require.ErrorAs(t, err, &stateErr)
	require.ErrorContains(t, err, "build the file instead")
}

func TestFileBuilder_ImportedTypes(t *testing.T) {
	pool := protopool.New()
	ts, err := pool.ImportMessage(&timestamppb.Timestamp{})
	require.NoError(t, err)
	_, err = pool.ImportMessage(&durationpb.Duration{})
	require.NoError(t, err)

	fb := NewFile("event.proto").SetPackage("events").
		AddMessage(NewMessage("Event").
			Optional("at", FieldTypeImportedMessage(ts), 1).
			Optional("took", FieldTypeNamed(".google.protobuf.Duration"), 2))
	fdp, err := fb.BuildProto()
	require.NoError(t, err)
	require.Equal(t, []string{"google/protobuf/timestamp.proto"}, fdp.GetDependency())

	fd, err := fb.Build(pool)
	require.NoError(t, err)
	var deps []string
	for _, dep := range fd.Dependencies() {
		deps = append(deps, dep.Path())
	}
	require.Equal(t, []string{"google/protobuf/timestamp.proto", "google/protobuf/duration.proto"}, deps)
	require.Same(t, ts, fd.FindMessage("Event").FieldByName("at").Message())
}

func TestBuilder_Commit(t *testing.T) {
	testCases := []struct {
		name    string
		reverse bool
	}{
		{name: "dependency first"},
		{name: "dependency last", reverse: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			base := NewMessage("Base").Optional("id", FieldTypeString(), 1)
			baseFile := NewFile("base.proto").SetPackage("base").AddMessage(base)
			useFile := NewFile("use.proto").SetPackage("use").
				AddMessage(NewMessage("User").
					Optional("base", FieldTypeMessage(base), 1).
					Optional("other", FieldTypeNamed("base.Base"), 2))

			b := New()
			if tc.reverse {
				b.AddFile(useFile).AddFile(baseFile)
			} else {
				b.AddFile(baseFile).AddFile(useFile)
			}
			pool := protopool.New()
			fds, err := b.Commit(pool)
			require.NoError(t, err)
			require.Len(t, fds, 2)
			if tc.reverse {
				fds[0], fds[1] = fds[1], fds[0]
			}
			require.Equal(t, "base.proto", fds[0].Path())
			require.Equal(t, "use.proto", fds[1].Path())
			require.Len(t, fds[1].Dependencies(), 1)
			require.Same(t, fds[0], fds[1].Dependencies()[0])

			user := pool.LookupMessage("use.User")
			require.NotNil(t, user)
			require.Same(t, pool.LookupMessage("base.Base"), user.FieldByName("base").Message())
			require.Same(t, pool.LookupMessage("base.Base"), user.FieldByName("other").Message())
			require.True(t, b.IsSealed())
			require.True(t, baseFile.IsSealed())
			require.True(t, useFile.IsSealed())

			var stateErr *protoschema.IllegalStateError
			_, err = b.Commit(pool)
			require.ErrorAs(t, err, &stateErr)
			require.ErrorAs(t, b.TryAddFile(NewFile("more.proto")), &stateErr)
		})
	}
}

func TestBuilder_CommitIsAtomic(t *testing.T) {
	pool := protopool.New()
	_, err := NewFile("existing.proto").SetPackage("x").AddMessage(NewMessage("A")).Build(pool)
	require.NoError(t, err)

	b := New()
	b.File("c.proto").SetPackage("x").AddMessage(NewMessage("C"))
	b.File("d.proto").SetPackage("x").AddMessage(NewMessage("A"))
	_, err = b.Commit(pool)
	var dupErr *protoschema.DuplicateNameError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "x.A", dupErr.Name)
	require.Equal(t, 1, pool.NumFiles())
	require.Nil(t, pool.FindFileByPath("c.proto"))
	require.Nil(t, pool.LookupMessage("x.C"))
	require.False(t, b.IsSealed())
	require.False(t, b.File("c.proto").IsSealed())

	// an unresolvable reference fails before anything is registered
	b2 := New()
	b2.File("e.proto").AddMessage(NewMessage("E").Optional("f", FieldTypeNamed("F"), 1))
	_, err = b2.Commit(pool)
	var unresolved *protoschema.UnresolvedTypeError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, 1, pool.NumFiles())

	// once fixed, the batch can be committed
	b2.File("f.proto").AddMessage(NewMessage("F"))
	fds, err := b2.Commit(pool)
	require.NoError(t, err)
	require.Len(t, fds, 2)
	require.Equal(t, 3, pool.NumFiles())
}

func TestBuilder_DefaultFile(t *testing.T) {
	b := New().
		AddMessage(NewMessage("Loose").Optional("mood", FieldTypeNamed("Mood"), 1)).
		AddEnum(NewEnum("Mood").AddValue("MOOD_OK", 0))
	require.Len(t, b.Files(), 1)

	var dupErr *protoschema.DuplicateNameError
	err := b.TryAddFile(NewFile(b.Files()[0].Path()))
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "file", dupErr.Kind)

	pool := protopool.New()
	fds, err := b.Commit(pool)
	require.NoError(t, err)
	require.Len(t, fds, 1)
	require.Empty(t, fds[0].Package())
	md := pool.LookupMessage("Loose")
	require.NotNil(t, md)
	require.Same(t, pool.LookupEnum("Mood"), md.FieldByName("mood").Enum())
}
