package dynamic

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/jhump/protomodel/protobuilder"
	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

type testTypes struct {
	pool    *protopool.Pool
	person  *protoschema.MessageDescriptor
	address *protoschema.MessageDescriptor
	legacy  *protoschema.MessageDescriptor
}

func loadTestTypes(t *testing.T) testTypes {
	t.Helper()
	color := protobuilder.NewEnum("Color").
		AddValue("COLOR_UNSPECIFIED", 0).
		AddValue("RED", 1).
		AddValue("BLUE", 2)
	address := protobuilder.NewMessage("Address").
		Optional("street", protobuilder.FieldTypeString(), 1)
	person := protobuilder.NewMessage("Person")
	person.Optional("name", protobuilder.FieldTypeString(), 1).
		Optional("age", protobuilder.FieldTypeInt32(), 2).
		Repeated("emails", protobuilder.FieldTypeString(), 3).
		Optional("color", protobuilder.FieldTypeEnum(color), 4).
		Map("scores", protobuilder.FieldTypeString(), protobuilder.FieldTypeInt64(), 5).
		Oneof("contact", func(oob *protobuilder.OneofBuilder) {
			oob.Optional("phone", protobuilder.FieldTypeString(), 6).
				Optional("address", protobuilder.FieldTypeMessage(address), 7)
		}).
		Optional("best_friend", protobuilder.FieldTypeMessage(person), 8).
		AddField(protobuilder.NewField("nickname_len", protobuilder.FieldTypeInt32(), 9).SetProto3Optional(true)).
		Optional("avatar", protobuilder.FieldTypeBytes(), 10).
		Repeated("past", protobuilder.FieldTypeMessage(address), 11).
		Map("by_id", protobuilder.FieldTypeInt32(), protobuilder.FieldTypeMessage(address), 12).
		Optional("ratio", protobuilder.FieldTypeDouble(), 13).
		Optional("big", protobuilder.FieldTypeUint64(), 14).
		AddNestedMessage(address)

	level := protobuilder.NewEnum("Level").
		AddValue("LOW", 1).
		AddValue("HIGH", 2)
	legacy := protobuilder.NewMessage("Legacy")
	legacy.Required("id", protobuilder.FieldTypeString(), 1).
		AddField(protobuilder.NewField("count", protobuilder.FieldTypeInt32(), 2).SetDefaultValue("7")).
		Optional("level", protobuilder.FieldTypeEnum(level), 3).
		Optional("child", protobuilder.FieldTypeMessage(legacy), 4).
		AddField(protobuilder.NewField("blob", protobuilder.FieldTypeBytes(), 5).SetDefaultValue("abc")).
		Repeated("children", protobuilder.FieldTypeMessage(legacy), 6)

	b := protobuilder.New()
	b.File("test/person.proto").SetPackage("test").AddMessage(person).AddEnum(color)
	b.File("legacy/legacy.proto").SetPackage("legacy").SetSyntax(protoreflect.Proto2).AddMessage(legacy).AddEnum(level)
	pool := protopool.New()
	_, err := b.Commit(pool)
	require.NoError(t, err)

	return testTypes{
		pool:    pool,
		person:  pool.LookupMessage("test.Person"),
		address: pool.LookupMessage("test.Person.Address"),
		legacy:  pool.LookupMessage("legacy.Legacy"),
	}
}

func sameBytes(a, b []byte) bool {
	return unsafe.SliceData(a) == unsafe.SliceData(b)
}

func TestMessage_Defaults(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	require.Same(t, types.person, m.Descriptor())

	require.Equal(t, EmptyString, m.GetFieldByName("name"))
	require.Equal(t, int32(0), m.GetFieldByName("age"))
	require.Equal(t, protoreflect.EnumNumber(0), m.GetFieldByName("color"))
	require.Equal(t, float64(0), m.GetFieldByName("ratio"))
	require.Equal(t, uint64(0), m.GetFieldByNumber(14))
	require.Equal(t, (*Message)(nil), m.GetFieldByName("best_friend"))

	avatar := m.GetFieldByName("avatar").([]byte)
	require.NotNil(t, avatar)
	require.Empty(t, avatar)
	require.True(t, sameBytes(EmptyBytes(), avatar))

	// unset containers are empty and detached
	emails := m.GetFieldByName("emails").(*RepeatedField)
	require.Zero(t, emails.Len())
	require.NoError(t, emails.Append("a@example.com"))
	require.False(t, m.HasFieldByName("emails"))
	scores := m.GetFieldByName("scores").(*Map)
	require.Zero(t, scores.Len())

	legacy := NewMessage(types.legacy)
	require.Equal(t, int32(7), legacy.GetFieldByName("count"))
	require.Equal(t, protoreflect.EnumNumber(1), legacy.GetFieldByName("level"))
	require.Equal(t, []byte("abc"), legacy.GetFieldByName("blob"))
	require.Equal(t, EmptyString, legacy.GetFieldByName("id"))
}

func TestMessage_BytesDefaultIsCopied(t *testing.T) {
	types := loadTestTypes(t)
	blob := NewMessage(types.legacy).GetFieldByName("blob").([]byte)
	blob[0] = 'X'

	require.Equal(t, []byte("abc"), NewMessage(types.legacy).GetFieldByName("blob"))
	require.Equal(t, []byte("abc"), types.legacy.FieldByName("blob").Default())
}

func TestMessage_SetAndClear(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)

	m.SetFieldByName("name", "Ada")
	m.SetFieldByNumber(2, int32(30))
	require.Equal(t, "Ada", m.GetFieldByName("name"))
	require.Equal(t, int32(30), m.GetFieldByName("age"))
	require.True(t, m.HasFieldByName("name"))

	// implicit presence: the zero value clears
	m.SetFieldByName("age", 0)
	require.False(t, m.HasFieldByName("age"))
	m.SetFieldByName("name", "")
	require.False(t, m.HasFieldByNumber(1))
	m.SetFieldByName("avatar", []byte{})
	require.False(t, m.HasFieldByName("avatar"))

	// explicit presence: the zero value is still set
	m.SetFieldByName("nickname_len", 0)
	require.True(t, m.HasFieldByName("nickname_len"))
	require.Equal(t, int32(0), m.GetFieldByName("nickname_len"))
	m.ClearFieldByName("nickname_len")
	require.False(t, m.HasFieldByName("nickname_len"))

	legacy := NewMessage(types.legacy)
	legacy.SetFieldByName("count", 7)
	require.True(t, legacy.HasFieldByName("count"))
	legacy.ClearFieldByNumber(2)
	require.False(t, legacy.HasFieldByName("count"))
	require.Equal(t, int32(7), legacy.GetFieldByName("count"))

	friend := NewMessage(types.person)
	friend.SetFieldByName("name", "Bob")
	bf := types.person.FieldByName("best_friend")
	m.SetField(bf, friend)
	require.True(t, m.HasField(bf))
	require.Same(t, friend, m.GetField(bf))
	m.ClearField(bf)
	require.False(t, m.HasField(bf))
	require.Equal(t, (*Message)(nil), m.GetField(bf))

	// conversions
	m.SetFieldByName("big", uint32(5))
	require.Equal(t, uint64(5), m.GetFieldByName("big"))
	m.SetFieldByName("ratio", float32(1.5))
	require.Equal(t, float64(1.5), m.GetFieldByName("ratio"))
	m.SetFieldByName("color", "BLUE")
	require.Equal(t, protoreflect.EnumNumber(2), m.GetFieldByName("color"))
	m.SetFieldByName("color", 42)
	require.Equal(t, protoreflect.EnumNumber(42), m.GetFieldByName("color"))

	m.Reset()
	require.False(t, m.HasFieldByName("color"))
	require.False(t, m.HasFieldByName("big"))
}

func TestMessage_Oneof(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	require.Nil(t, m.WhichOneofByName("contact"))

	m.SetFieldByName("phone", "555-1234")
	require.Equal(t, types.person.FieldByName("phone"), m.WhichOneofByName("contact"))

	addr := NewMessage(types.address)
	addr.SetFieldByName("street", "Main St")
	m.SetFieldByName("address", addr)
	require.Same(t, types.person.FieldByName("address"), m.WhichOneof(types.person.OneofByName("contact")))
	require.False(t, m.HasFieldByName("phone"))
	require.Equal(t, EmptyString, m.GetFieldByName("phone"))

	// a oneof member set to its zero value is still set
	m.SetFieldByName("phone", "")
	require.True(t, m.HasFieldByName("phone"))
	require.False(t, m.HasFieldByName("address"))

	// the synthetic oneof of a proto3 optional field
	m.SetFieldByName("nickname_len", 3)
	require.Equal(t, types.person.FieldByName("nickname_len"), m.WhichOneof(types.person.FieldByName("nickname_len").ContainingOneof()))

	// oneofs of other messages are never set
	require.Nil(t, NewMessage(types.legacy).WhichOneof(types.person.OneofByName("contact")))
	require.Nil(t, m.WhichOneof(nil))
}

func TestMessage_TypeMismatch(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	m.SetFieldByName("age", 10)

	var mismatchErr *protoschema.TypeMismatchError
	err := m.TrySetFieldByName("age", "ten")
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, protoreflect.FullName("test.Person.age"), mismatchErr.Field)
	require.Equal(t, "int32", mismatchErr.Want)
	require.Equal(t, "string", mismatchErr.Got)

	require.ErrorAs(t, m.TrySetFieldByName("age", 1<<40), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("age", int64(1)), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("big", -1), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("ratio", "1.5"), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("color", "PURPLE"), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("emails", "not-a-list"), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("scores", []string{"a"}), &mismatchErr)
	require.ErrorAs(t, m.TrySetFieldByName("best_friend", (*Message)(nil)), &mismatchErr)

	err = m.TrySetFieldByName("address", NewMessage(types.legacy))
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, "message test.Person.Address", mismatchErr.Want)
	require.Equal(t, "message legacy.Legacy", mismatchErr.Got)

	// failed sets leave the previous value in place
	require.Equal(t, int32(10), m.GetFieldByName("age"))
	require.Nil(t, m.WhichOneofByName("contact"))

	legacy := NewMessage(types.legacy)
	err = legacy.TrySetFieldByName("level", 7)
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, "enum legacy.Level", mismatchErr.Want)
	require.NoError(t, legacy.TrySetFieldByName("level", protoreflect.EnumNumber(2)))

	require.Panics(t, func() { m.SetFieldByName("age", "ten") })
}

func TestMessage_NoSuchField(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)

	var noField *protoschema.NoSuchFieldError
	_, err := m.TryGetFieldByName("nope")
	require.ErrorAs(t, err, &noField)
	require.Equal(t, protoreflect.FullName("test.Person"), noField.Message)
	require.Equal(t, protoreflect.Name("nope"), noField.Name)

	_, err = m.TryGetFieldByNumber(99)
	require.ErrorAs(t, err, &noField)
	require.Equal(t, protoreflect.FieldNumber(99), noField.Number)

	// a field of some other message
	_, err = m.TryGetField(types.legacy.FieldByName("id"))
	require.ErrorAs(t, err, &noField)
	require.ErrorAs(t, m.TrySetField(types.legacy.FieldByName("id"), "x"), &noField)
	require.ErrorAs(t, m.TryClearFieldByName("nope"), &noField)
	require.ErrorAs(t, m.TrySetFieldByNumber(99, 1), &noField)
	require.False(t, m.HasField(types.legacy.FieldByName("id")))
	require.False(t, m.HasFieldByName("nope"))

	require.Panics(t, func() { m.GetFieldByName("nope") })
	require.Panics(t, func() { m.ClearFieldByNumber(99) })
}

func TestMessage_RepeatedAndMapFields(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)

	emails, err := m.RepeatedByName("emails")
	require.NoError(t, err)
	require.NoError(t, emails.Append("a@example.com", "b@example.com"))
	require.True(t, m.HasFieldByName("emails"))
	require.Same(t, emails, m.GetFieldByName("emails"))

	m.SetFieldByName("emails", []string{"x@example.com"})
	list := m.GetFieldByName("emails").(*RepeatedField)
	require.NotSame(t, emails, list)
	require.Equal(t, 1, list.Len())
	require.Equal(t, "x@example.com", list.Get(0))

	// setting from another list copies it
	m.SetFieldByName("emails", emails)
	require.NoError(t, emails.Append("c@example.com"))
	require.Equal(t, 2, m.GetFieldByName("emails").(*RepeatedField).Len())

	m.SetFieldByName("emails", []any{})
	require.False(t, m.HasFieldByName("emails"))

	scores, err := m.MapFieldByName("scores")
	require.NoError(t, err)
	require.NoError(t, scores.Put("ada", 10))
	require.True(t, m.HasFieldByName("scores"))
	m.SetFieldByName("scores", map[string]int64{"bob": 3, "cy": 4})
	require.Equal(t, []any{"bob", "cy"}, m.GetFieldByName("scores").(*Map).Keys())

	_, err = m.RepeatedByName("scores")
	require.ErrorContains(t, err, "not a repeated field")
	_, err = m.MapFieldByName("emails")
	require.ErrorContains(t, err, "not a map field")
}

func TestMessage_DeepCopyAndEqual(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	m.SetFieldByName("name", "Ada")
	friend := NewMessage(types.person)
	friend.SetFieldByName("name", "Bob")
	m.SetFieldByName("best_friend", friend)
	addr := NewMessage(types.address)
	addr.SetFieldByName("street", "Main St")
	m.SetFieldByName("past", []*Message{addr})
	m.SetFieldByName("by_id", map[int32]*Message{7: addr})
	m.SetFieldByName("avatar", []byte{1, 2, 3})
	m.SetUnknown([]byte{0xa0, 0x06, 0x01})

	cp := m.DeepCopy()
	require.True(t, m.Equal(cp))
	require.True(t, cp.Equal(m))

	cpFriend := cp.GetFieldByName("best_friend").(*Message)
	require.NotSame(t, friend, cpFriend)
	require.True(t, friend.Equal(cpFriend))
	cpPast := cp.GetFieldByName("past").(*RepeatedField)
	require.NotSame(t, addr, cpPast.Get(0))
	v, ok := cp.GetFieldByName("by_id").(*Map).Get(7)
	require.True(t, ok)
	require.NotSame(t, addr, v)

	cpFriend.SetFieldByName("name", "Carol")
	require.Equal(t, "Bob", friend.GetFieldByName("name"))
	require.False(t, m.Equal(cp))

	cp = m.DeepCopy()
	cp.GetFieldByName("avatar").([]byte)[0] = 9
	require.Equal(t, []byte{1, 2, 3}, m.GetFieldByName("avatar"))
	require.False(t, m.Equal(cp))

	cp = m.DeepCopy()
	cp.SetUnknown(nil)
	require.False(t, m.Equal(cp))

	require.False(t, m.Equal(NewMessage(types.legacy)))
	require.False(t, m.Equal(nil))
	require.True(t, NewMessage(types.person).Equal(NewMessage(types.person)))
}

func TestMessage_RejectsCycles(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	m.SetFieldByName("name", "Ada")

	err := m.TrySetFieldByName("best_friend", m)
	require.ErrorContains(t, err, "cannot set test.Person.best_friend: value contains the test.Person message")
	require.False(t, m.HasFieldByName("best_friend"))

	// indirect: m -> friend -> m
	friend := NewMessage(types.person)
	m.SetFieldByName("best_friend", friend)
	require.Error(t, friend.TrySetFieldByName("best_friend", m))

	legacy := NewMessage(types.legacy)
	children, err := legacy.RepeatedByName("children")
	require.NoError(t, err)
	require.Error(t, children.Append(legacy))
	require.Zero(t, children.Len())
	child := NewMessage(types.legacy)
	require.NoError(t, children.Append(child))
	require.Error(t, children.Set(0, legacy))
	require.Error(t, children.Insert(0, legacy))
	require.Error(t, child.TrySetFieldByName("child", legacy))
	require.Error(t, legacy.TrySetFieldByName("children", []*Message{legacy}))

	byID, err := m.MapFieldByName("by_id")
	require.NoError(t, err)
	addr := NewMessage(types.address)
	require.NoError(t, byID.Put(int32(1), addr))
	require.Equal(t, 1, byID.Len())

	// a copy is a different message, so it can be nested
	require.NoError(t, m.TrySetFieldByName("best_friend", m.DeepCopy()))
	require.True(t, m.DeepCopy().Equal(m))
}

func TestMessage_DiscardUnknown(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	friend := NewMessage(types.person)
	friend.SetUnknown([]byte{0xa0, 0x06, 0x01})
	m.SetFieldByName("best_friend", friend)
	addr := NewMessage(types.address)
	addr.SetUnknown([]byte{0x10, 0x01})
	m.SetFieldByName("past", []any{addr})
	m.SetUnknown([]byte{0xa0, 0x06, 0x02})

	m.DiscardUnknown()
	require.Nil(t, m.Unknown())
	require.Nil(t, friend.Unknown())
	require.Nil(t, m.GetFieldByName("past").(*RepeatedField).Get(0).(*Message).Unknown())
}

func TestMessage_CheckInitialized(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.legacy)
	require.ErrorContains(t, m.CheckInitialized(), "missing required fields: id")

	m.SetFieldByName("id", "root")
	require.NoError(t, m.CheckInitialized())

	m.SetFieldByName("child", NewMessage(types.legacy))
	kid := NewMessage(types.legacy)
	m.SetFieldByName("children", []any{kid})
	require.ErrorContains(t, m.CheckInitialized(), "missing required fields: child.id, children[0].id")

	m.GetFieldByName("child").(*Message).SetFieldByName("id", "c1")
	kid.SetFieldByName("id", "c2")
	require.NoError(t, m.CheckInitialized())
}

func TestMessage_RangeAndString(t *testing.T) {
	types := loadTestTypes(t)
	m := NewMessage(types.person)
	m.SetFieldByName("age", 30)
	m.SetFieldByName("name", "Ada")
	m.SetFieldByName("color", "BLUE")
	m.SetFieldByName("emails", []string{"a", "b"})
	friend := NewMessage(types.person)
	friend.SetFieldByName("name", "Bob")
	m.SetFieldByName("best_friend", friend)
	m.SetFieldByName("scores", map[string]int64{"z": 1})

	var names []protoreflect.Name
	m.Range(func(fd *protoschema.FieldDescriptor, _ any) bool {
		names = append(names, fd.Name())
		return true
	})
	require.Equal(t, []protoreflect.Name{"name", "age", "emails", "color", "scores", "best_friend"}, names)

	require.Equal(t,
		`name: "Ada" age: 30 emails: "a" emails: "b" color: BLUE scores {key: "z" value: 1} best_friend {name: "Bob"}`,
		m.String())
	require.Equal(t, "<nil>", (*Message)(nil).String())
}

func TestMessageType(t *testing.T) {
	types := loadTestTypes(t)
	mt := NewMessageType(types.person)
	require.Same(t, types.person, mt.Descriptor())
	m := mt.New()
	require.Same(t, types.person, m.Descriptor())
	require.False(t, m.HasFieldByName("name"))

	tsType, err := MessageTypeOf(types.pool, (*timestamppb.Timestamp)(nil))
	require.NoError(t, err)
	require.Equal(t, protoreflect.FullName("google.protobuf.Timestamp"), tsType.Descriptor().FullName())
	again, err := MessageTypeOf(types.pool, &timestamppb.Timestamp{})
	require.NoError(t, err)
	require.Same(t, tsType.Descriptor(), again.Descriptor())

	ts := tsType.New()
	ts.SetFieldByName("seconds", 1234)
	require.Equal(t, int64(1234), ts.GetFieldByName("seconds"))
}
