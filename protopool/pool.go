package protopool

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protoschema"
)

// Pool is a registry of sealed descriptors, indexed by fully-qualified name
// and, for files, by path. It is thread-safe: lookups may happen concurrently
// with one another and with registration.
//
// Registration is append-only. Once a name is registered, it always resolves
// to the same descriptor.
//
// The zero value is an empty pool that is ready to use.
type Pool struct {
	mu    sync.RWMutex
	files map[string]*protoschema.FileDescriptor
	order []*protoschema.FileDescriptor
	descs map[protoreflect.FullName]protoschema.Descriptor
	log   logrus.FieldLogger
}

var _ protoschema.Resolver = (*Pool)(nil)

// Option configures a Pool created with New.
type Option func(*Pool)

// WithLogger configures the logger to which registration events are written.
// They are logged at debug level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pool) {
		p.log = log
	}
}

// New creates a new, empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var generated = sync.OnceValue(func() *Pool {
	return New()
})

// Generated returns the process-wide pool into which generated message types
// are imported. It is created on first use.
func Generated() *Pool {
	return generated()
}

var nullLogger = internal.NewNullLogger()

func (p *Pool) logger() logrus.FieldLogger {
	if p.log == nil {
		return nullLogger
	}
	return p.log
}

// Register adds the given message or enum, along with all types nested in
// it, to the pool. The descriptor's file is not registered. This is used for
// types sealed on their own, such as those built with
// protobuilder.MessageBuilder.Build.
//
// If any of the names is already registered, a *protoschema.DuplicateNameError
// is returned and the pool is left unchanged. Every message or enum that the
// given types' fields refer to must be registered in this pool, or be among
// the given types; otherwise a *protoschema.UnresolvedTypeError is returned.
func (p *Pool) Register(d protoschema.Descriptor) error {
	var types []protoschema.Descriptor
	switch d := d.(type) {
	case *protoschema.MessageDescriptor:
		types = appendMessageTypes(types, d)
	case *protoschema.EnumDescriptor:
		types = append(types, d)
	default:
		return fmt.Errorf("cannot register %T: only messages and enums can be registered", d)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.checkTypesLocked(types)
	if err == nil {
		err = p.checkReferencesLocked(types)
	}
	if err != nil {
		p.logger().WithField("name", d.FullName()).WithError(err).Debug("rejected registration")
		return err
	}
	p.insertTypesLocked(types)
	p.logger().WithFields(logrus.Fields{
		"name":  d.FullName(),
		"count": len(types),
	}).Debug("registered type")
	return nil
}

// RegisterFile adds the given file and all of its types to the pool. See
// RegisterFiles.
func (p *Pool) RegisterFile(fd *protoschema.FileDescriptor) error {
	return p.RegisterFiles(fd)
}

// RegisterFiles adds the given files and all of their types to the pool. This
// is all-or-nothing: if any file path or any type name is already registered
// (or is used more than once among the given files), a
// *protoschema.DuplicateNameError is returned and none of the files are
// registered.
//
// Each file's dependencies must already be registered in this pool or be
// among the given files. A file sealed against some other pool's copy of a
// dependency is rejected with a *protoschema.UnresolvedTypeError.
func (p *Pool) RegisterFiles(fds ...*protoschema.FileDescriptor) error {
	var types []protoschema.Descriptor
	for _, fd := range fds {
		for d := range fd.Types() {
			types = append(types, d)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkFilesLocked(fds, types); err != nil {
		p.logger().WithField("count", len(fds)).WithError(err).Debug("rejected files")
		return err
	}
	if p.files == nil {
		p.files = map[string]*protoschema.FileDescriptor{}
	}
	for _, fd := range fds {
		p.files[fd.Path()] = fd
		p.order = append(p.order, fd)
		p.logger().WithFields(logrus.Fields{
			"file":    fd.Path(),
			"package": fd.Package(),
		}).Debug("registered file")
	}
	p.insertTypesLocked(types)
	return nil
}

func (p *Pool) checkFilesLocked(fds []*protoschema.FileDescriptor, types []protoschema.Descriptor) error {
	batch := make(map[string]*protoschema.FileDescriptor, len(fds))
	for _, fd := range fds {
		if _, ok := p.files[fd.Path()]; ok {
			return &protoschema.DuplicateNameError{Name: fd.Path(), Kind: "file"}
		}
		if _, ok := batch[fd.Path()]; ok {
			return &protoschema.DuplicateNameError{Name: fd.Path(), Kind: "file"}
		}
		batch[fd.Path()] = fd
	}
	for _, fd := range fds {
		for _, dep := range fd.Dependencies() {
			if p.files[dep.Path()] != dep && batch[dep.Path()] != dep {
				return &protoschema.UnresolvedTypeError{Name: dep.Path(), Referrer: fd.Path()}
			}
		}
	}
	return p.checkTypesLocked(types)
}

// checkReferencesLocked verifies that the message and enum types referred to
// by fields of the given types are the ones this pool (or the batch) holds.
func (p *Pool) checkReferencesLocked(types []protoschema.Descriptor) error {
	batch := make(map[protoschema.Descriptor]struct{}, len(types))
	for _, d := range types {
		batch[d] = struct{}{}
	}
	for _, d := range types {
		md, ok := d.(*protoschema.MessageDescriptor)
		if !ok {
			continue
		}
		for _, fld := range md.Fields() {
			var target protoschema.Descriptor
			switch {
			case fld.Message() != nil:
				target = fld.Message()
			case fld.Enum() != nil:
				target = fld.Enum()
			default:
				continue
			}
			if _, ok := batch[target]; ok {
				continue
			}
			if p.descs[target.FullName()] != target {
				return &protoschema.UnresolvedTypeError{Name: string(target.FullName()), Referrer: string(fld.FullName())}
			}
		}
	}
	return nil
}

func (p *Pool) checkTypesLocked(types []protoschema.Descriptor) error {
	seen := make(map[protoreflect.FullName]protoschema.Descriptor, len(types))
	for _, d := range types {
		existing := p.descs[d.FullName()]
		if existing == nil {
			existing = seen[d.FullName()]
		}
		if existing != nil {
			return &protoschema.DuplicateNameError{
				Name:     string(d.FullName()),
				Kind:     descKind(d),
				Existing: existing.ParentFile().Path(),
			}
		}
		seen[d.FullName()] = d
	}
	return nil
}

func (p *Pool) insertTypesLocked(types []protoschema.Descriptor) {
	if p.descs == nil {
		p.descs = map[protoreflect.FullName]protoschema.Descriptor{}
	}
	for _, d := range types {
		p.descs[d.FullName()] = d
	}
}

// Lookup returns the message or enum registered under the given name. It
// returns nil if there is no such type. Lookups never change the pool.
func (p *Pool) Lookup(name protoreflect.FullName) protoschema.Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.descs[name]
}

// LookupMessage returns the message registered under the given name, or nil
// if there is no such message.
func (p *Pool) LookupMessage(name protoreflect.FullName) *protoschema.MessageDescriptor {
	md, _ := p.Lookup(name).(*protoschema.MessageDescriptor)
	return md
}

// LookupEnum returns the enum registered under the given name, or nil if
// there is no such enum.
func (p *Pool) LookupEnum(name protoreflect.FullName) *protoschema.EnumDescriptor {
	ed, _ := p.Lookup(name).(*protoschema.EnumDescriptor)
	return ed
}

// FindFileByPath implements protoschema.Resolver.
func (p *Pool) FindFileByPath(path string) *protoschema.FileDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.files[path]
}

// FindDescriptorByName implements protoschema.Resolver.
func (p *Pool) FindDescriptorByName(name protoreflect.FullName) protoschema.Descriptor {
	return p.Lookup(name)
}

// NumFiles returns the number of files registered in the pool.
func (p *Pool) NumFiles() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// RangeFiles calls fn for each registered file, in registration order, until
// fn returns false. Files registered while ranging are not visited.
func (p *Pool) RangeFiles(fn func(*protoschema.FileDescriptor) bool) {
	var files []*protoschema.FileDescriptor
	func() {
		p.mu.RLock()
		defer p.mu.RUnlock()
		files = make([]*protoschema.FileDescriptor, len(p.order))
		copy(files, p.order)
	}()
	for _, file := range files {
		if !fn(file) {
			return
		}
	}
}

// ImportFile seals and registers a file that was compiled elsewhere, such as
// the descriptor of a generated message or the output of a .proto compiler.
// Its dependencies are imported first. If a file with the same path is already
// registered, it is returned instead.
func (p *Pool) ImportFile(file protoreflect.FileDescriptor) (*protoschema.FileDescriptor, error) {
	if fd := p.FindFileByPath(file.Path()); fd != nil {
		return fd, nil
	}
	imports := file.Imports()
	for i, length := 0, imports.Len(); i < length; i++ {
		imp := imports.Get(i)
		if imp.IsPlaceholder() {
			if p.FindFileByPath(imp.Path()) != nil {
				continue
			}
			return nil, fmt.Errorf("cannot import %q: dependency %q is not available", file.Path(), imp.Path())
		}
		if _, err := p.ImportFile(imp.FileDescriptor); err != nil {
			return nil, err
		}
	}

	fd, err := protoschema.NewFile(protodesc.ToFileDescriptorProto(file), p)
	if err != nil {
		return nil, fmt.Errorf("cannot import %q: %w", file.Path(), err)
	}
	if err := p.RegisterFile(fd); err != nil {
		if existing := p.FindFileByPath(file.Path()); existing != nil {
			// imported concurrently
			return existing, nil
		}
		return nil, err
	}
	p.logger().WithField("file", file.Path()).Debug("imported file")
	return fd, nil
}

// ImportMessage imports the file that declares the given message's type and
// returns the sealed descriptor for that type.
func (p *Pool) ImportMessage(msg proto.Message) (*protoschema.MessageDescriptor, error) {
	desc := msg.ProtoReflect().Descriptor()
	if _, err := p.ImportFile(desc.ParentFile()); err != nil {
		return nil, err
	}
	md := p.LookupMessage(desc.FullName())
	if md == nil {
		return nil, fmt.Errorf("message %s not found after importing %q", desc.FullName(), desc.ParentFile().Path())
	}
	return md, nil
}

func appendMessageTypes(types []protoschema.Descriptor, md *protoschema.MessageDescriptor) []protoschema.Descriptor {
	types = append(types, md)
	for _, ed := range md.Enums() {
		types = append(types, ed)
	}
	for _, nmd := range md.Messages() {
		types = appendMessageTypes(types, nmd)
	}
	return types
}

func descKind(d protoschema.Descriptor) string {
	switch d.(type) {
	case *protoschema.MessageDescriptor:
		return "message"
	case *protoschema.EnumDescriptor:
		return "enum"
	default:
		return fmt.Sprintf("%T", d)
	}
}
