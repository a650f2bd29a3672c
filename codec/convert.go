package codec

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/dynamic"
	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protoschema"
)

// toReflect copies the fields of m into rm, which must be an empty message
// whose descriptor was converted from m's descriptor.
func toReflect(m *dynamic.Message, rm protoreflect.Message) {
	fields := rm.Descriptor().Fields()
	m.Range(func(fd *protoschema.FieldDescriptor, v any) bool {
		rfd := fields.ByNumber(fd.Number())
		switch v := v.(type) {
		case *dynamic.RepeatedField:
			list := rm.Mutable(rfd).List()
			for _, e := range v.All() {
				list.Append(toReflectValue(e, list.NewElement))
			}
		case *dynamic.Map:
			mp := rm.Mutable(rfd).Map()
			for k, e := range v.All() {
				mp.Set(protoreflect.ValueOf(k).MapKey(), toReflectValue(e, mp.NewValue))
			}
		default:
			rm.Set(rfd, toReflectValue(v, func() protoreflect.Value { return rm.NewField(rfd) }))
		}
		return true
	})
	if unknown := m.Unknown(); len(unknown) > 0 {
		rm.SetUnknown(protoreflect.RawFields(unknown))
	}
}

func toReflectValue(v any, newValue func() protoreflect.Value) protoreflect.Value {
	if msg, ok := v.(*dynamic.Message); ok {
		rv := newValue()
		toReflect(msg, rv.Message())
		return rv
	}
	return protoreflect.ValueOf(v)
}

// fromReflect copies the fields of rm into m, which must be empty. Values
// that a closed enum does not declare are kept with m's unknown fields.
func fromReflect(rm protoreflect.Message, m *dynamic.Message) error {
	md := m.Descriptor()
	unknown := slices.Clone(rm.GetUnknown())
	var err error
	rm.Range(func(rfd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		fd := md.FieldByNumber(rfd.Number())
		if fd == nil {
			err = fmt.Errorf("%s has no field with number %d", md.FullName(), rfd.Number())
			return false
		}
		switch {
		case fd.IsMap():
			var mp *dynamic.Map
			if mp, err = m.MapField(fd); err != nil {
				return false
			}
			v.Map().Range(func(k protoreflect.MapKey, e protoreflect.Value) bool {
				if undeclaredEnum(fd.MapValue(), e) {
					unknown = appendMapEntry(unknown, fd, k, e)
					return true
				}
				var val any
				if val, err = fromReflectValue(fd.MapValue(), e); err != nil {
					return false
				}
				err = mp.Put(k.Interface(), val)
				return err == nil
			})
		case fd.IsList():
			var list *dynamic.RepeatedField
			if list, err = m.Repeated(fd); err != nil {
				return false
			}
			rl := v.List()
			for i := range rl.Len() {
				e := rl.Get(i)
				if undeclaredEnum(fd, e) {
					unknown = appendEnum(unknown, fd.Number(), e)
					continue
				}
				var val any
				if val, err = fromReflectValue(fd, e); err != nil {
					return false
				}
				if err = list.Append(val); err != nil {
					return false
				}
			}
		default:
			if undeclaredEnum(fd, v) {
				unknown = appendEnum(unknown, fd.Number(), v)
				return true
			}
			var val any
			if val, err = fromReflectValue(fd, v); err != nil {
				return false
			}
			err = m.TrySetField(fd, val)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		m.SetUnknown(unknown)
	}
	return nil
}

// replaceContents makes dst hold the same fields as src, which has the same
// type. Lists and maps attached to dst are refilled in place.
func replaceContents(dst, src *dynamic.Message) error {
	for _, fd := range dst.Descriptor().Fields() {
		if !src.HasField(fd) {
			if dst.HasField(fd) {
				if err := dst.TryClearField(fd); err != nil {
					return err
				}
			}
			continue
		}
		switch v := src.GetField(fd).(type) {
		case *dynamic.RepeatedField:
			list, err := dst.Repeated(fd)
			if err != nil {
				return err
			}
			list.Clear()
			for _, e := range v.All() {
				if err := list.Append(e); err != nil {
					return err
				}
			}
		case *dynamic.Map:
			mp, err := dst.MapField(fd)
			if err != nil {
				return err
			}
			mp.Clear()
			for k, e := range v.All() {
				if err := mp.Put(k, e); err != nil {
					return err
				}
			}
		default:
			if err := dst.TrySetField(fd, v); err != nil {
				return err
			}
		}
	}
	dst.SetUnknown(src.Unknown())
	return nil
}

func fromReflectValue(fd *protoschema.FieldDescriptor, v protoreflect.Value) (any, error) {
	if !internal.IsMessageKind(fd.Kind()) {
		return v.Interface(), nil
	}
	msg := dynamic.NewMessage(fd.Message())
	if err := fromReflect(v.Message(), msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func undeclaredEnum(fd *protoschema.FieldDescriptor, v protoreflect.Value) bool {
	return fd.Kind() == protoreflect.EnumKind && fd.Enum().IsClosed() && fd.Enum().ValueByNumber(v.Enum()) == nil
}

func appendEnum(b []byte, num protoreflect.FieldNumber, v protoreflect.Value) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v.Enum()))
}

func appendMapEntry(b []byte, fd *protoschema.FieldDescriptor, k protoreflect.MapKey, v protoreflect.Value) []byte {
	entry := appendMapKey(nil, fd.MapKey().Kind(), k)
	entry = appendEnum(entry, internal.MapValueNumber, v)
	b = protowire.AppendTag(b, fd.Number(), protowire.BytesType)
	return protowire.AppendBytes(b, entry)
}

func appendMapKey(b []byte, kind protoreflect.Kind, k protoreflect.MapKey) []byte {
	const num = internal.MapKeyNumber
	switch kind {
	case protoreflect.BoolKind:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(k.Bool()))
	case protoreflect.Int32Kind, protoreflect.Int64Kind:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, uint64(k.Int()))
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, k.Uint())
	case protoreflect.Sint32Kind, protoreflect.Sint64Kind:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(k.Int()))
	case protoreflect.Fixed32Kind:
		b = protowire.AppendTag(b, num, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, uint32(k.Uint()))
	case protoreflect.Sfixed32Kind:
		b = protowire.AppendTag(b, num, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, uint32(k.Int()))
	case protoreflect.Fixed64Kind:
		b = protowire.AppendTag(b, num, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, k.Uint())
	case protoreflect.Sfixed64Kind:
		b = protowire.AppendTag(b, num, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, uint64(k.Int()))
	default:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendString(b, k.String())
	}
}
