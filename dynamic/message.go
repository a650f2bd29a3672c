package dynamic

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/protoschema"
)

// Message is a message instance whose fields are described by a sealed
// protoschema.MessageDescriptor. Values are stored per field number, using
// the canonical Go type for each field's kind (see the package doc).
//
// Methods that take a field descriptor require it to belong to the message's
// own descriptor. Methods come in pairs: Try* variants return errors, and the
// others panic instead.
//
// Messages form trees: a value that contains the message it is being added to
// is rejected, so a message never contains itself.
//
// A Message is not safe for concurrent mutation.
type Message struct {
	md      *protoschema.MessageDescriptor
	values  map[protoreflect.FieldNumber]any
	unknown []byte
}

// NewMessage creates a new, empty message of the given type.
func NewMessage(md *protoschema.MessageDescriptor) *Message {
	if md == nil {
		panic("dynamic: nil message descriptor")
	}
	return &Message{md: md}
}

// Descriptor returns the descriptor for this message's type.
func (m *Message) Descriptor() *protoschema.MessageDescriptor {
	return m.md
}

func (m *Message) checkField(fd *protoschema.FieldDescriptor) error {
	if fd == nil {
		return &protoschema.NoSuchFieldError{Message: m.md.FullName()}
	}
	if fd.ContainingMessage() != m.md {
		return &protoschema.NoSuchFieldError{Message: m.md.FullName(), Name: fd.Name()}
	}
	return nil
}

func (m *Message) fieldByName(name protoreflect.Name) (*protoschema.FieldDescriptor, error) {
	fd := m.md.FieldByName(name)
	if fd == nil {
		return nil, &protoschema.NoSuchFieldError{Message: m.md.FullName(), Name: name}
	}
	return fd, nil
}

func (m *Message) fieldByNumber(num protoreflect.FieldNumber) (*protoschema.FieldDescriptor, error) {
	fd := m.md.FieldByNumber(num)
	if fd == nil {
		return nil, &protoschema.NoSuchFieldError{Message: m.md.FullName(), Number: num}
	}
	return fd, nil
}

// GetField returns the value of the given field. See TryGetField.
func (m *Message) GetField(fd *protoschema.FieldDescriptor) any {
	v, err := m.TryGetField(fd)
	if err != nil {
		panic(err)
	}
	return v
}

// TryGetField returns the value of the given field. If the field is not set,
// singular scalar fields return their default value, message fields return a
// nil *Message, and repeated and map fields return an empty *RepeatedField or
// *Map that is not attached to the message (use Repeated or MapField for a
// container that is).
func (m *Message) TryGetField(fd *protoschema.FieldDescriptor) (any, error) {
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	return m.getField(fd), nil
}

// GetFieldByName returns the value of the field with the given name. See
// TryGetField.
func (m *Message) GetFieldByName(name protoreflect.Name) any {
	v, err := m.TryGetFieldByName(name)
	if err != nil {
		panic(err)
	}
	return v
}

// TryGetFieldByName returns the value of the field with the given name. See
// TryGetField.
func (m *Message) TryGetFieldByName(name protoreflect.Name) (any, error) {
	fd, err := m.fieldByName(name)
	if err != nil {
		return nil, err
	}
	return m.getField(fd), nil
}

// GetFieldByNumber returns the value of the field with the given number. See
// TryGetField.
func (m *Message) GetFieldByNumber(num protoreflect.FieldNumber) any {
	v, err := m.TryGetFieldByNumber(num)
	if err != nil {
		panic(err)
	}
	return v
}

// TryGetFieldByNumber returns the value of the field with the given number.
// See TryGetField.
func (m *Message) TryGetFieldByNumber(num protoreflect.FieldNumber) (any, error) {
	fd, err := m.fieldByNumber(num)
	if err != nil {
		return nil, err
	}
	return m.getField(fd), nil
}

func (m *Message) getField(fd *protoschema.FieldDescriptor) any {
	if v, ok := m.values[fd.Number()]; ok {
		return v
	}
	switch {
	case fd.IsMap():
		return NewMap(fd)
	case fd.IsList():
		return NewRepeatedField(fd)
	case isMessageField(fd):
		return (*Message)(nil)
	default:
		return defaultValue(fd)
	}
}

// SetField sets the value of the given field. See TrySetField.
func (m *Message) SetField(fd *protoschema.FieldDescriptor, val any) {
	if err := m.TrySetField(fd, val); err != nil {
		panic(err)
	}
}

// TrySetField sets the value of the given field. The value must have a type
// that is compatible with the field: see the package doc for the accepted Go
// types. Repeated fields accept a *RepeatedField or a slice, and map fields a
// *Map or a Go map; the contents are copied.
//
// Setting a member of a one-of clears the other members. Setting a field that
// does not track presence to its zero value clears it.
func (m *Message) TrySetField(fd *protoschema.FieldDescriptor, val any) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	return m.setField(fd, val)
}

// SetFieldByName sets the value of the field with the given name. See
// TrySetField.
func (m *Message) SetFieldByName(name protoreflect.Name, val any) {
	if err := m.TrySetFieldByName(name, val); err != nil {
		panic(err)
	}
}

// TrySetFieldByName sets the value of the field with the given name. See
// TrySetField.
func (m *Message) TrySetFieldByName(name protoreflect.Name, val any) error {
	fd, err := m.fieldByName(name)
	if err != nil {
		return err
	}
	return m.setField(fd, val)
}

// SetFieldByNumber sets the value of the field with the given number. See
// TrySetField.
func (m *Message) SetFieldByNumber(num protoreflect.FieldNumber, val any) {
	if err := m.TrySetFieldByNumber(num, val); err != nil {
		panic(err)
	}
}

// TrySetFieldByNumber sets the value of the field with the given number. See
// TrySetField.
func (m *Message) TrySetFieldByNumber(num protoreflect.FieldNumber, val any) error {
	fd, err := m.fieldByNumber(num)
	if err != nil {
		return err
	}
	return m.setField(fd, val)
}

func (m *Message) setField(fd *protoschema.FieldDescriptor, val any) error {
	v, err := validFieldValue(fd, val)
	if err != nil {
		return err
	}
	if err := checkAcyclic(fd.FullName(), m, v); err != nil {
		return err
	}
	m.internalSetField(fd, v)
	return nil
}

func (m *Message) internalSetField(fd *protoschema.FieldDescriptor, val any) {
	switch v := val.(type) {
	case *RepeatedField:
		if v.Len() == 0 {
			m.clearField(fd)
			return
		}
		v.owner = m
	case *Map:
		if v.Len() == 0 {
			m.clearField(fd)
			return
		}
		v.owner = m
	default:
		if !fd.HasPresence() && isZero(val) {
			m.clearField(fd)
			return
		}
	}
	if m.values == nil {
		m.values = map[protoreflect.FieldNumber]any{}
	}
	m.values[fd.Number()] = val
	// if this field is part of a one-of, make sure all other one-of choices are cleared
	if od := fd.ContainingOneof(); od != nil {
		for _, other := range od.Fields() {
			if other != fd {
				delete(m.values, other.Number())
			}
		}
	}
}

func validFieldValue(fd *protoschema.FieldDescriptor, val any) (any, error) {
	switch {
	case fd.IsMap():
		return validMapValue(fd, val)
	case fd.IsList():
		return validListValue(fd, val)
	default:
		return validElementValue(fd.FullName(), fd, val)
	}
}

func validListValue(fd *protoschema.FieldDescriptor, val any) (*RepeatedField, error) {
	list := NewRepeatedField(fd)
	if src, ok := val.(*RepeatedField); ok {
		if src == nil || !sameType(src.fd, fd) {
			return nil, containerMismatch(fd, val)
		}
		if err := list.Append(src.elems...); err != nil {
			return nil, err
		}
		return list, nil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, containerMismatch(fd, val)
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	if err := list.Append(elems...); err != nil {
		return nil, err
	}
	return list, nil
}

func validMapValue(fd *protoschema.FieldDescriptor, val any) (*Map, error) {
	mp := NewMap(fd)
	if src, ok := val.(*Map); ok {
		if src == nil || !sameType(src.fd.MapKey(), fd.MapKey()) || !sameType(src.fd.MapValue(), fd.MapValue()) {
			return nil, containerMismatch(fd, val)
		}
		for k, v := range src.entries {
			if err := mp.Put(k, v); err != nil {
				return nil, err
			}
		}
		return mp, nil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Map {
		return nil, containerMismatch(fd, val)
	}
	iter := rv.MapRange()
	for iter.Next() {
		if err := mp.Put(iter.Key().Interface(), iter.Value().Interface()); err != nil {
			return nil, err
		}
	}
	return mp, nil
}

func containerMismatch(fd *protoschema.FieldDescriptor, val any) error {
	var want string
	if fd.IsMap() {
		want = fmt.Sprintf("map<%s, %s>", describeType(fd.MapKey()), describeType(fd.MapValue()))
	} else {
		want = "repeated " + describeType(fd)
	}
	got := describeValue(val)
	switch val := val.(type) {
	case *RepeatedField:
		if val != nil {
			got = "repeated " + describeType(val.fd)
		}
	case *Map:
		if val != nil {
			got = fmt.Sprintf("map<%s, %s>", describeType(val.fd.MapKey()), describeType(val.fd.MapValue()))
		}
	}
	return &protoschema.TypeMismatchError{Field: fd.FullName(), Want: want, Got: got}
}

// ClearField clears the given field. See TryClearField.
func (m *Message) ClearField(fd *protoschema.FieldDescriptor) {
	if err := m.TryClearField(fd); err != nil {
		panic(err)
	}
}

// TryClearField clears the given field, so that it reads back as its default
// value.
func (m *Message) TryClearField(fd *protoschema.FieldDescriptor) error {
	if err := m.checkField(fd); err != nil {
		return err
	}
	m.clearField(fd)
	return nil
}

// ClearFieldByName clears the field with the given name. See TryClearField.
func (m *Message) ClearFieldByName(name protoreflect.Name) {
	if err := m.TryClearFieldByName(name); err != nil {
		panic(err)
	}
}

// TryClearFieldByName clears the field with the given name. See
// TryClearField.
func (m *Message) TryClearFieldByName(name protoreflect.Name) error {
	fd, err := m.fieldByName(name)
	if err != nil {
		return err
	}
	m.clearField(fd)
	return nil
}

// ClearFieldByNumber clears the field with the given number. See
// TryClearField.
func (m *Message) ClearFieldByNumber(num protoreflect.FieldNumber) {
	if err := m.TryClearFieldByNumber(num); err != nil {
		panic(err)
	}
}

// TryClearFieldByNumber clears the field with the given number. See
// TryClearField.
func (m *Message) TryClearFieldByNumber(num protoreflect.FieldNumber) error {
	fd, err := m.fieldByNumber(num)
	if err != nil {
		return err
	}
	m.clearField(fd)
	return nil
}

func (m *Message) clearField(fd *protoschema.FieldDescriptor) {
	delete(m.values, fd.Number())
}

// HasField returns true if the given field is set. For fields that track
// presence, this is true once the field has been set, even to its default
// value. For other singular fields it is true when the field has a non-zero
// value, and for repeated and map fields when they are not empty. It returns
// false for fields that do not belong to this message.
func (m *Message) HasField(fd *protoschema.FieldDescriptor) bool {
	if m.checkField(fd) != nil {
		return false
	}
	return m.hasField(fd)
}

// HasFieldByName returns true if the field with the given name is set. See
// HasField.
func (m *Message) HasFieldByName(name protoreflect.Name) bool {
	fd := m.md.FieldByName(name)
	return fd != nil && m.hasField(fd)
}

// HasFieldByNumber returns true if the field with the given number is set.
// See HasField.
func (m *Message) HasFieldByNumber(num protoreflect.FieldNumber) bool {
	fd := m.md.FieldByNumber(num)
	return fd != nil && m.hasField(fd)
}

func (m *Message) hasField(fd *protoschema.FieldDescriptor) bool {
	v, ok := m.values[fd.Number()]
	if !ok {
		return false
	}
	switch v := v.(type) {
	case *RepeatedField:
		return v.Len() > 0
	case *Map:
		return v.Len() > 0
	default:
		return true
	}
}

// Repeated returns the list for the given repeated field. The list is
// attached to the message: changes made to it are visible through the
// message.
func (m *Message) Repeated(fd *protoschema.FieldDescriptor) (*RepeatedField, error) {
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	if !fd.IsList() {
		return nil, fmt.Errorf("field %s is not a repeated field", fd.FullName())
	}
	if list, ok := m.values[fd.Number()].(*RepeatedField); ok {
		return list, nil
	}
	list := NewRepeatedField(fd)
	list.owner = m
	m.store(fd, list)
	return list, nil
}

// RepeatedByName returns the list for the repeated field with the given name.
// See Repeated.
func (m *Message) RepeatedByName(name protoreflect.Name) (*RepeatedField, error) {
	fd, err := m.fieldByName(name)
	if err != nil {
		return nil, err
	}
	return m.Repeated(fd)
}

// MapField returns the map for the given map field. The map is attached to
// the message: changes made to it are visible through the message.
func (m *Message) MapField(fd *protoschema.FieldDescriptor) (*Map, error) {
	if err := m.checkField(fd); err != nil {
		return nil, err
	}
	if !fd.IsMap() {
		return nil, fmt.Errorf("field %s is not a map field", fd.FullName())
	}
	if mp, ok := m.values[fd.Number()].(*Map); ok {
		return mp, nil
	}
	mp := NewMap(fd)
	mp.owner = m
	m.store(fd, mp)
	return mp, nil
}

// MapFieldByName returns the map for the map field with the given name. See
// MapField.
func (m *Message) MapFieldByName(name protoreflect.Name) (*Map, error) {
	fd, err := m.fieldByName(name)
	if err != nil {
		return nil, err
	}
	return m.MapField(fd)
}

func (m *Message) store(fd *protoschema.FieldDescriptor, val any) {
	if m.values == nil {
		m.values = map[protoreflect.FieldNumber]any{}
	}
	m.values[fd.Number()] = val
}

// WhichOneof returns the member of the given one-of that is set, or nil if
// none is (or if the one-of does not belong to this message).
func (m *Message) WhichOneof(od *protoschema.OneofDescriptor) *protoschema.FieldDescriptor {
	if od == nil || od.ContainingMessage() != m.md {
		return nil
	}
	for _, fd := range od.Fields() {
		if m.hasField(fd) {
			return fd
		}
	}
	return nil
}

// WhichOneofByName returns the member of the one-of with the given name that
// is set, or nil if none is.
func (m *Message) WhichOneofByName(name protoreflect.Name) *protoschema.FieldDescriptor {
	return m.WhichOneof(m.md.OneofByName(name))
}

// Range calls fn for each field that is set, in the order the fields are
// declared, until fn returns false.
func (m *Message) Range(fn func(*protoschema.FieldDescriptor, any) bool) {
	for _, fd := range m.md.Fields() {
		if !m.hasField(fd) {
			continue
		}
		if !fn(fd, m.values[fd.Number()]) {
			return
		}
	}
}

// Unknown returns the raw bytes of fields that were not recognized when the
// message was decoded. The returned slice must not be modified.
func (m *Message) Unknown() []byte {
	return m.unknown
}

// SetUnknown replaces the message's unrecognized field bytes.
func (m *Message) SetUnknown(raw []byte) {
	if len(raw) == 0 {
		m.unknown = nil
		return
	}
	m.unknown = raw
}

// DiscardUnknown removes unrecognized field bytes from this message and all
// messages nested in it.
func (m *Message) DiscardUnknown() {
	m.unknown = nil
	for _, v := range m.values {
		switch v := v.(type) {
		case *Message:
			v.DiscardUnknown()
		case *RepeatedField:
			for _, e := range v.elems {
				if em, ok := e.(*Message); ok {
					em.DiscardUnknown()
				}
			}
		case *Map:
			for _, e := range v.entries {
				if em, ok := e.(*Message); ok {
					em.DiscardUnknown()
				}
			}
		}
	}
}

// Reset clears all fields, including unrecognized ones.
func (m *Message) Reset() {
	m.values = nil
	m.unknown = nil
}

// DeepCopy returns a copy of this message. Nested messages, containers and
// byte slices are copied too, so the result shares nothing with m.
func (m *Message) DeepCopy() *Message {
	if m == nil {
		return nil
	}
	cp := &Message{md: m.md, unknown: slices.Clone(m.unknown)}
	for num, v := range m.values {
		if cp.values == nil {
			cp.values = make(map[protoreflect.FieldNumber]any, len(m.values))
		}
		v = deepCopyValue(v)
		switch c := v.(type) {
		case *RepeatedField:
			c.owner = cp
		case *Map:
			c.owner = cp
		}
		cp.values[num] = v
	}
	return cp
}

// Equal returns true if other has the same type and the same fields set to
// equal values. Unrecognized field bytes must also match.
func (m *Message) Equal(other *Message) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil || m.md != other.md {
		return false
	}
	for _, fd := range m.md.Fields() {
		has := m.hasField(fd)
		if has != other.hasField(fd) {
			return false
		}
		if has && !valuesEqual(m.values[fd.Number()], other.values[fd.Number()]) {
			return false
		}
	}
	return bytes.Equal(m.unknown, other.unknown)
}

// CheckInitialized returns an error if any required field, in this message or
// in any message nested in it, is not set.
func (m *Message) CheckInitialized() error {
	var missing []string
	m.findMissing("", &missing)
	if len(missing) > 0 {
		return fmt.Errorf("message %s is missing required fields: %s", m.md.FullName(), strings.Join(missing, ", "))
	}
	return nil
}

func (m *Message) findMissing(prefix string, missing *[]string) {
	for _, fd := range m.md.RequiredFields() {
		if !m.hasField(fd) {
			*missing = append(*missing, prefix+string(fd.Name()))
		}
	}
	for _, fd := range m.md.Fields() {
		switch v := m.values[fd.Number()].(type) {
		case *Message:
			v.findMissing(prefix+string(fd.Name())+".", missing)
		case *RepeatedField:
			for i, e := range v.elems {
				if em, ok := e.(*Message); ok {
					em.findMissing(fmt.Sprintf("%s%s[%d].", prefix, fd.Name(), i), missing)
				}
			}
		case *Map:
			for k, e := range v.All() {
				if em, ok := e.(*Message); ok {
					em.findMissing(fmt.Sprintf("%s%s[%v].", prefix, fd.Name(), k), missing)
				}
			}
		}
	}
}
