package dynamic

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/protoschema"
)

// String returns a compact, single-line rendering of the message's fields,
// meant for debugging. The output resembles the protobuf text format but is
// not guaranteed to be parseable as such.
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	var b textBuffer
	m.writeText(&b)
	return b.String()
}

type textBuffer struct {
	strings.Builder
	first bool
}

func (b *textBuffer) next() {
	if !b.first {
		b.WriteByte(' ')
	}
	b.first = false
}

func (m *Message) writeText(b *textBuffer) {
	b.first = true
	m.Range(func(fd *protoschema.FieldDescriptor, v any) bool {
		switch v := v.(type) {
		case *RepeatedField:
			for _, e := range v.elems {
				b.next()
				b.WriteString(string(fd.Name()))
				writeValue(b, fd, e)
			}
		case *Map:
			for k, e := range v.All() {
				b.next()
				b.WriteString(string(fd.Name()))
				b.WriteString(" {key")
				writeValue(b, fd.MapKey(), k)
				b.WriteString(" value")
				writeValue(b, fd.MapValue(), e)
				b.WriteByte('}')
			}
		default:
			b.next()
			b.WriteString(string(fd.Name()))
			writeValue(b, fd, v)
		}
		return true
	})
	if len(m.unknown) > 0 {
		b.next()
		fmt.Fprintf(b, "[%d unknown bytes]", len(m.unknown))
	}
}

func writeValue(b *textBuffer, fd *protoschema.FieldDescriptor, v any) {
	if msg, ok := v.(*Message); ok {
		b.WriteString(" {")
		first := b.first
		msg.writeText(b)
		b.first = first
		b.WriteByte('}')
		return
	}
	b.WriteString(": ")
	b.WriteString(formatScalar(fd, v))
}

func formatScalar(fd *protoschema.FieldDescriptor, v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case []byte:
		return strconv.Quote(string(v))
	case protoreflect.EnumNumber:
		if evd := fd.Enum().ValueByNumber(v); evd != nil {
			return string(evd.Name())
		}
		return strconv.Itoa(int(v))
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
