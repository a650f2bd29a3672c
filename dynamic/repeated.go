package dynamic

import (
	"fmt"
	"iter"
	"slices"

	"github.com/jhump/protomodel/protoschema"
)

// RepeatedField is an ordered list of values for a repeated (non-map) field.
// Every element is checked against the field's declared type when it is
// added; a mutation that is given an invalid value fails with a
// *protoschema.TypeMismatchError and leaves the list unchanged.
//
// The list returned by Message.Repeated is attached to the message, so
// changes to it are visible through the message. An attached list rejects
// elements that contain the message it is attached to.
type RepeatedField struct {
	fd    *protoschema.FieldDescriptor
	elems []any
	owner *Message
}

// NewRepeatedField creates a new, empty list for the given field. It panics if
// the field is not a repeated field or is a map field.
func NewRepeatedField(fd *protoschema.FieldDescriptor) *RepeatedField {
	if !fd.IsList() {
		panic(fmt.Sprintf("field %s is not a repeated field", fd.FullName()))
	}
	return &RepeatedField{fd: fd}
}

// Field returns the field that describes the list's elements.
func (r *RepeatedField) Field() *protoschema.FieldDescriptor {
	return r.fd
}

// Len returns the number of elements in the list.
func (r *RepeatedField) Len() int {
	return len(r.elems)
}

// Get returns the element at the given index. It panics if the index is out
// of range.
func (r *RepeatedField) Get(i int) any {
	return r.elems[i]
}

func (r *RepeatedField) validate(vals []any) ([]any, error) {
	converted := make([]any, len(vals))
	for i, v := range vals {
		cv, err := r.validElement(v)
		if err != nil {
			return nil, err
		}
		converted[i] = cv
	}
	return converted, nil
}

func (r *RepeatedField) validElement(val any) (any, error) {
	cv, err := validElementValue(r.fd.FullName(), r.fd, val)
	if err != nil {
		return nil, err
	}
	if err := checkAcyclic(r.fd.FullName(), r.owner, cv); err != nil {
		return nil, err
	}
	return cv, nil
}

func (r *RepeatedField) checkIndex(i, limit int) error {
	if i < 0 || i >= limit {
		return fmt.Errorf("index %d is out of range for %s with %d elements", i, r.fd.FullName(), len(r.elems))
	}
	return nil
}

// Append adds the given values to the end of the list. If any of them has the
// wrong type, none are added.
func (r *RepeatedField) Append(vals ...any) error {
	converted, err := r.validate(vals)
	if err != nil {
		return err
	}
	r.elems = append(r.elems, converted...)
	return nil
}

// Set replaces the element at the given index.
func (r *RepeatedField) Set(i int, val any) error {
	if err := r.checkIndex(i, len(r.elems)); err != nil {
		return err
	}
	cv, err := r.validElement(val)
	if err != nil {
		return err
	}
	r.elems[i] = cv
	return nil
}

// Insert adds the given value at the given index, shifting later elements
// up. The index may be equal to Len, in which case this is an append.
func (r *RepeatedField) Insert(i int, val any) error {
	if err := r.checkIndex(i, len(r.elems)+1); err != nil {
		return err
	}
	cv, err := r.validElement(val)
	if err != nil {
		return err
	}
	r.elems = slices.Insert(r.elems, i, cv)
	return nil
}

// Remove removes and returns the element at the given index. It panics if
// the index is out of range.
func (r *RepeatedField) Remove(i int) any {
	v := r.elems[i]
	r.elems = slices.Delete(r.elems, i, i+1)
	return v
}

// Clear removes all elements.
func (r *RepeatedField) Clear() {
	r.elems = nil
}

// All returns an iterator over the list's indexes and elements, in order.
func (r *RepeatedField) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i, v := range r.elems {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Equal returns true if other has the same declared element type and the
// same elements, in the same order. Message elements are compared by value.
func (r *RepeatedField) Equal(other *RepeatedField) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil || !sameType(r.fd, other.fd) || len(r.elems) != len(other.elems) {
		return false
	}
	for i, v := range r.elems {
		if !valuesEqual(v, other.elems[i]) {
			return false
		}
	}
	return true
}

// DeepCopy returns a copy of the list. Message elements are copied too, so
// the result shares nothing with r.
func (r *RepeatedField) DeepCopy() *RepeatedField {
	cp := &RepeatedField{fd: r.fd}
	if len(r.elems) > 0 {
		cp.elems = make([]any, len(r.elems))
		for i, v := range r.elems {
			cp.elems[i] = deepCopyValue(v)
		}
	}
	return cp
}
