package protobuilder

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// Element is the interface implemented by all element builders. It exposes
// some basic information about the hierarchy's structure.
type Element interface {
	// Name returns this element's name. The name returned is a simple name,
	// not a qualified name. For *FileBuilder instances, this is the path.
	Name() protoreflect.Name

	// Parent returns this element's parent element. It returns nil if there
	// is no parent element. File builders never have parent elements.
	Parent() Element

	// ParentFile returns this element's file. This returns nil if the element
	// has not yet been assigned to a file.
	ParentFile() *FileBuilder

	// IsSealed returns true once the element has been sealed into a
	// descriptor. Sealed builders can no longer be changed or sealed again.
	IsSealed() bool

	// children returns the element's child elements, used to seal a whole
	// hierarchy at once.
	children() []Element

	setParent(Element)
	setSealed()
}

// baseBuilder is a struct that can be embedded into each Element
// implementation and provides a kernel of builder-wiring support.
type baseBuilder struct {
	name   protoreflect.Name
	parent Element
	sealed bool
}

func baseBuilderWithName(name protoreflect.Name) baseBuilder {
	if err := checkName(name); err != nil {
		panic(err)
	}
	return baseBuilder{name: name}
}

func checkName(name protoreflect.Name) error {
	if !name.IsValid() {
		return fmt.Errorf("name %q is invalid: it must start with an underscore or letter and contain only underscores, letters, and numbers", name)
	}
	return nil
}

// Name returns the name of the element that will be built by this builder.
func (b *baseBuilder) Name() protoreflect.Name {
	return b.name
}

// Parent returns the parent builder to which this builder has been added. If
// the builder has not been added to another, this returns nil.
func (b *baseBuilder) Parent() Element {
	return b.parent
}

func (b *baseBuilder) setParent(newParent Element) {
	b.parent = newParent
}

// ParentFile returns the file to which this builder is assigned. This examines
// the builder's parent, and its parent, and so on, until it reaches a file
// builder or nil.
func (b *baseBuilder) ParentFile() *FileBuilder {
	p := b.parent
	for p != nil {
		if fb, ok := p.(*FileBuilder); ok {
			return fb
		}
		p = p.Parent()
	}
	return nil
}

// IsSealed returns true if the builder has already been sealed.
func (b *baseBuilder) IsSealed() bool {
	return b.sealed
}

func (b *baseBuilder) setSealed() {
	b.sealed = true
}

func fullName(b Element, buf *bytes.Buffer) {
	if fb, ok := b.(*FileBuilder); ok {
		buf.WriteString(string(fb.pkg))
	} else if b != nil {
		p := b.Parent()
		if _, ok := p.(*FieldBuilder); ok {
			// field can be the parent of a message (if it's the field's map
			// entry), but its name is not part of message's fqn; so skip
			p = p.Parent()
		}
		if _, ok := p.(*OneofBuilder); ok {
			// one-of can be the parent of a field, but its name is not part
			// of field's fqn; so skip
			p = p.Parent()
		}
		fullName(p, buf)
		if buf.Len() > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(string(b.Name()))
	}
}

// FullName returns the given builder's fully-qualified name. This name is
// based on the parent elements the builder may be linked to, which provide
// context like package and (optional) enclosing message names. For
// *FileBuilder instances, this returns the file's package.
func FullName(b Element) protoreflect.FullName {
	var buf bytes.Buffer
	fullName(b, &buf)
	return protoreflect.FullName(buf.String())
}

// getRoot navigates up the hierarchy to find the root builder for the given
// instance.
func getRoot(b Element) Element {
	for {
		p := b.Parent()
		if p == nil {
			return b
		}
		b = p
	}
}

func sealAll(b Element) {
	b.setSealed()
	for _, ch := range b.children() {
		sealAll(ch)
	}
}

func describe(b Element) string {
	switch b := b.(type) {
	case *FileBuilder:
		return fmt.Sprintf("file %q", b.path)
	case *MessageBuilder:
		return "message " + string(FullName(b))
	case *FieldBuilder:
		return "field " + string(FullName(b))
	case *OneofBuilder:
		return "oneof " + string(FullName(b))
	case *EnumBuilder:
		return "enum " + string(FullName(b))
	default:
		return string(FullName(b))
	}
}

// checkMutable returns an *protoschema.IllegalStateError if b has already
// been sealed.
func checkMutable(b Element) error {
	if b.IsSealed() {
		return &protoschema.IllegalStateError{What: describe(b), Reason: "builder has already been sealed"}
	}
	return nil
}

func mustBeMutable(b Element) {
	if err := checkMutable(b); err != nil {
		panic(err)
	}
}

var uniqueFileCounter uint64

func uniqueFilePath() string {
	i := atomic.AddUint64(&uniqueFileCounter, 1)
	return fmt.Sprintf("{generated-file-%04x}.proto", i)
}

// buildDetached seals an element that is not part of a file. A file with a
// unique path and no package is synthesized to hold the element's root. The
// file is not registered with the pool, which is only used to resolve
// references to other types.
func buildDetached(b Element, pool *protopool.Pool) (protoschema.Descriptor, error) {
	root := getRoot(b)
	if fb, ok := root.(*FileBuilder); ok {
		return nil, &protoschema.IllegalStateError{
			What:   describe(b),
			Reason: fmt.Sprintf("element belongs to file %q; build the file instead", fb.path),
		}
	}
	if err := checkMutable(root); err != nil {
		return nil, err
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(uniqueFilePath()),
		Syntax: proto.String("proto3"),
	}
	if requiresProto2(root) {
		fdp.Syntax = proto.String("proto2")
	}
	imports := newImportSet()
	switch root := root.(type) {
	case *MessageBuilder:
		mp, err := root.buildProto(imports)
		if err != nil {
			return nil, err
		}
		fdp.MessageType = append(fdp.MessageType, mp)
	case *EnumBuilder:
		fdp.EnumType = append(fdp.EnumType, root.buildProto())
	default:
		return nil, fmt.Errorf("cannot build %s: it must first be added to a message", describe(b))
	}
	imports.addDependencies(fdp)

	fd, err := protoschema.NewFile(fdp, newResolver(pool, imports))
	if err != nil {
		return nil, err
	}
	sealAll(root)

	name := FullName(b)
	for d := range fd.Types() {
		if d.FullName() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("could not find %s after building it", name)
}

// requiresProto2 returns true if any field in the hierarchy rooted at b uses
// a feature that proto3 does not support.
func requiresProto2(b Element) bool {
	if flb, ok := b.(*FieldBuilder); ok {
		if flb.cardinality == protoreflect.Required || flb.defaultValue != nil {
			return true
		}
		if ed := flb.fieldType.importedEnumType; ed != nil && ed.IsClosed() {
			return true
		}
	}
	for _, ch := range b.children() {
		if requiresProto2(ch) {
			return true
		}
	}
	return false
}
