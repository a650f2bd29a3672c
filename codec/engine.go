package codec

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/jhump/protomodel/dynamic"
	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protoschema"
)

// Engine converts dynamic messages to and from the protobuf binary format.
//
// An engine caches, for each sealed file it sees, the equivalent descriptor
// used by the protobuf runtime. It is safe for concurrent use. Files are
// identified by pointer, so the same engine can serve files from any number
// of pools, even pools that contain different files with the same path.
type Engine struct {
	mu    sync.RWMutex
	files map[*protoschema.FileDescriptor]protoreflect.FileDescriptor
	group singleflight.Group
	log   logrus.FieldLogger
}

// Option configures an Engine created with NewEngine.
type Option func(*Engine)

// WithLogger configures the logger to which the engine reports descriptor
// conversions. They are logged at debug level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates a new engine with an empty cache.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{files: map[*protoschema.FileDescriptor]protoreflect.FileDescriptor{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = internal.NewNullLogger()
	}
	return e
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return NewEngine()
})

// Marshal encodes the given message using a process-wide default engine.
func Marshal(m *dynamic.Message) ([]byte, error) {
	return defaultEngine().Marshal(m)
}

// Unmarshal decodes the given bytes into a new message of the given type
// using a process-wide default engine.
func Unmarshal(b []byte, md *protoschema.MessageDescriptor) (*dynamic.Message, error) {
	return defaultEngine().Unmarshal(b, md)
}

var (
	marshalOptions   = proto.MarshalOptions{Deterministic: true, AllowPartial: true}
	unmarshalOptions = proto.UnmarshalOptions{AllowPartial: true}
	textOptions      = prototext.MarshalOptions{Multiline: true, Indent: "  ", AllowPartial: true, EmitUnknown: true}
	jsonOptions      = protojson.MarshalOptions{Multiline: true, Indent: "  ", AllowPartial: true}
)

// Marshal encodes the given message. The output is deterministic: map
// entries are written in key order. Missing required fields are not an
// error; use (*dynamic.Message).CheckInitialized to check for them first.
func (e *Engine) Marshal(m *dynamic.Message) ([]byte, error) {
	b, err := e.marshal(m)
	if err != nil {
		return nil, &protoschema.RuntimeError{Op: "marshal", Type: m.Descriptor().FullName(), Err: err}
	}
	return b, nil
}

func (e *Engine) marshal(m *dynamic.Message) ([]byte, error) {
	rm, err := e.toReflect(m)
	if err != nil {
		return nil, err
	}
	return marshalOptions.Marshal(rm)
}

// Unmarshal decodes the given bytes into a new message of the given type.
// Fields that are not part of the type are preserved as unknown fields.
func (e *Engine) Unmarshal(b []byte, md *protoschema.MessageDescriptor) (*dynamic.Message, error) {
	m := dynamic.NewMessage(md)
	if err := e.UnmarshalInto(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalInto decodes the given bytes and merges the result into m, the
// same way that decoding a concatenation of messages does: singular fields
// are overwritten, repeated fields are appended and nested messages are
// merged. Lists and maps already attached to m stay attached. If decoding
// fails, m is not modified.
func (e *Engine) UnmarshalInto(b []byte, m *dynamic.Message) error {
	if err := e.unmarshalInto(b, m); err != nil {
		return &protoschema.RuntimeError{Op: "unmarshal", Type: m.Descriptor().FullName(), Err: err}
	}
	return nil
}

func (e *Engine) unmarshalInto(b []byte, m *dynamic.Message) error {
	rm, err := e.toReflect(m)
	if err != nil {
		return err
	}
	merge := unmarshalOptions
	merge.Merge = true
	if err := merge.Unmarshal(b, rm); err != nil {
		return err
	}
	merged := dynamic.NewMessage(m.Descriptor())
	if err := fromReflect(rm, merged); err != nil {
		return err
	}
	return replaceContents(m, merged)
}

// EncodeText renders m in the protobuf text format, one field per line.
// Unknown fields are included as raw field numbers. The exact spacing of the
// output is not stable.
func (e *Engine) EncodeText(m *dynamic.Message) ([]byte, error) {
	rm, err := e.toReflect(m)
	if err == nil {
		var b []byte
		if b, err = textOptions.Marshal(rm); err == nil {
			return b, nil
		}
	}
	return nil, &protoschema.RuntimeError{Op: "encode text", Type: m.Descriptor().FullName(), Err: err}
}

// EncodeJSON renders m in the canonical protobuf JSON mapping. Unknown
// fields are not included. The exact spacing of the output is not stable.
func (e *Engine) EncodeJSON(m *dynamic.Message) ([]byte, error) {
	rm, err := e.toReflect(m)
	if err == nil {
		var b []byte
		if b, err = jsonOptions.Marshal(rm); err == nil {
			return b, nil
		}
	}
	return nil, &protoschema.RuntimeError{Op: "encode json", Type: m.Descriptor().FullName(), Err: err}
}

// ToProto copies the contents of m into target, which is typically a
// generated message. Both must have the same fully-qualified type name. The
// target is reset first.
func (e *Engine) ToProto(m *dynamic.Message, target proto.Message) error {
	md := m.Descriptor()
	if name := target.ProtoReflect().Descriptor().FullName(); name != md.FullName() {
		return &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: fmt.Errorf("cannot convert to a message of type %s", name)}
	}
	b, err := e.marshal(m)
	if err != nil {
		return &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: err}
	}
	proto.Reset(target)
	if err := unmarshalOptions.Unmarshal(b, target); err != nil {
		return &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: err}
	}
	return nil
}

// FromProto returns a dynamic message of the given type with the same
// contents as msg. Both must have the same fully-qualified type name.
func (e *Engine) FromProto(msg proto.Message, md *protoschema.MessageDescriptor) (*dynamic.Message, error) {
	if name := msg.ProtoReflect().Descriptor().FullName(); name != md.FullName() {
		return nil, &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: fmt.Errorf("cannot convert from a message of type %s", name)}
	}
	b, err := marshalOptions.Marshal(msg)
	if err != nil {
		return nil, &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: err}
	}
	m := dynamic.NewMessage(md)
	if err := e.unmarshalInto(b, m); err != nil {
		return nil, &protoschema.RuntimeError{Op: "convert", Type: md.FullName(), Err: err}
	}
	return m, nil
}

// MessageDescriptor returns the protobuf runtime's descriptor for the given
// message type. The result can be used with dynamicpb and the protobuf
// runtime's JSON and text formats.
func (e *Engine) MessageDescriptor(md *protoschema.MessageDescriptor) (protoreflect.MessageDescriptor, error) {
	rfd, err := e.FileDescriptor(md.ParentFile())
	if err != nil {
		return nil, err
	}
	rmd := findMessage(rfd, md)
	if rmd == nil {
		return nil, fmt.Errorf("message %s not found in %q", md.FullName(), rfd.Path())
	}
	return rmd, nil
}

func findMessage(rfd protoreflect.FileDescriptor, md *protoschema.MessageDescriptor) protoreflect.MessageDescriptor {
	if parent, ok := md.Parent().(*protoschema.MessageDescriptor); ok {
		rmd := findMessage(rfd, parent)
		if rmd == nil {
			return nil
		}
		return rmd.Messages().ByName(md.Name())
	}
	return rfd.Messages().ByName(md.Name())
}

// FileDescriptor returns the protobuf runtime's descriptor for the given
// file. Descriptors for the files it depends on are created first.
func (e *Engine) FileDescriptor(fd *protoschema.FileDescriptor) (protoreflect.FileDescriptor, error) {
	e.mu.RLock()
	rfd := e.files[fd]
	e.mu.RUnlock()
	if rfd != nil {
		return rfd, nil
	}

	v, err, _ := e.group.Do(fmt.Sprintf("%p", fd), func() (any, error) {
		e.mu.RLock()
		rfd := e.files[fd]
		e.mu.RUnlock()
		if rfd != nil {
			return rfd, nil
		}

		var deps protoregistry.Files
		for _, dep := range fd.Dependencies() {
			depFile, err := e.FileDescriptor(dep)
			if err != nil {
				return nil, err
			}
			if err := deps.RegisterFile(depFile); err != nil {
				return nil, err
			}
		}
		rfd, err := protodesc.NewFile(fd.ToProto(), &deps)
		if err != nil {
			return nil, fmt.Errorf("could not convert %q: %w", fd.Path(), err)
		}

		e.mu.Lock()
		e.files[fd] = rfd
		e.mu.Unlock()
		e.log.WithField("file", fd.Path()).Debug("converted file descriptor")
		return rfd, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(protoreflect.FileDescriptor), nil
}

func (e *Engine) toReflect(m *dynamic.Message) (*dynamicpb.Message, error) {
	rmd, err := e.MessageDescriptor(m.Descriptor())
	if err != nil {
		return nil, err
	}
	rm := dynamicpb.NewMessage(rmd)
	toReflect(m, rm)
	return rm, nil
}
