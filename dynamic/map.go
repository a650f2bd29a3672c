package dynamic

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/protoschema"
)

// Map holds the entries of a map field. Keys and values are checked against
// the types declared by the field's entry message when they are added; a
// mutation that is given an invalid key or value fails with a
// *protoschema.TypeMismatchError and leaves the map unchanged.
//
// The map returned by Message.MapField is attached to the message, so changes
// to it are visible through the message. An attached map rejects values that
// contain the message it is attached to.
type Map struct {
	fd      *protoschema.FieldDescriptor
	entries map[any]any
	owner   *Message
}

// NewMap creates a new, empty map for the given field. It panics if the field
// is not a map field.
func NewMap(fd *protoschema.FieldDescriptor) *Map {
	if !fd.IsMap() {
		panic(fmt.Sprintf("field %s is not a map field", fd.FullName()))
	}
	return &Map{fd: fd}
}

// Field returns the map field.
func (m *Map) Field() *protoschema.FieldDescriptor {
	return m.fd
}

func (m *Map) keyName() protoreflect.FullName {
	return m.fd.FullName() + "[key]"
}

func (m *Map) valueName() protoreflect.FullName {
	return m.fd.FullName() + "[value]"
}

func (m *Map) validKey(key any) (any, error) {
	return validElementValue(m.keyName(), m.fd.MapKey(), key)
}

// Len returns the number of entries in the map.
func (m *Map) Len() int {
	return len(m.entries)
}

// Get returns the value for the given key and whether it is present. A key of
// the wrong type is never present.
func (m *Map) Get(key any) (any, bool) {
	k, err := m.validKey(key)
	if err != nil {
		return nil, false
	}
	v, ok := m.entries[k]
	return v, ok
}

// Has returns true if the map contains the given key.
func (m *Map) Has(key any) bool {
	_, ok := m.Get(key)
	return ok
}

// Put sets the value for the given key, replacing any previous value.
func (m *Map) Put(key, val any) error {
	k, err := m.validKey(key)
	if err != nil {
		return err
	}
	v, err := validElementValue(m.valueName(), m.fd.MapValue(), val)
	if err != nil {
		return err
	}
	if err := checkAcyclic(m.valueName(), m.owner, v); err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = map[any]any{}
	}
	m.entries[k] = v
	return nil
}

// Delete removes the entry for the given key, if present. It returns an error
// only if the key has the wrong type.
func (m *Map) Delete(key any) error {
	k, err := m.validKey(key)
	if err != nil {
		return err
	}
	delete(m.entries, k)
	return nil
}

// Clear removes all entries.
func (m *Map) Clear() {
	m.entries = nil
}

// Keys returns the map's keys, in ascending order.
func (m *Map) Keys() []any {
	return slices.SortedFunc(maps.Keys(m.entries), compareKeys)
}

// All returns an iterator over the map's entries, in ascending key order.
func (m *Map) All() iter.Seq2[any, any] {
	return func(yield func(any, any) bool) {
		for _, k := range m.Keys() {
			if !yield(k, m.entries[k]) {
				return
			}
		}
	}
}

// Equal returns true if other has the same declared key and value types and
// the same entries. Message values are compared by value.
func (m *Map) Equal(other *Map) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil ||
		!sameType(m.fd.MapKey(), other.fd.MapKey()) ||
		!sameType(m.fd.MapValue(), other.fd.MapValue()) ||
		len(m.entries) != len(other.entries) {
		return false
	}
	for k, v := range m.entries {
		ov, ok := other.entries[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// DeepCopy returns a copy of the map. Message values are copied too, so the
// result shares nothing with m.
func (m *Map) DeepCopy() *Map {
	cp := &Map{fd: m.fd}
	if len(m.entries) > 0 {
		cp.entries = make(map[any]any, len(m.entries))
		for k, v := range m.entries {
			cp.entries[k] = deepCopyValue(v)
		}
	}
	return cp
}
