package protobuilder

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// FileBuilder is a builder used to construct a protoschema.FileDescriptor.
// This is the root of the hierarchy. All other descriptors belong to a file,
// and thus all other builders also belong to a file.
//
// If a builder is *not* associated with a file, the resulting descriptor will
// be associated with a synthesized file that contains only the built
// descriptor and its ancestors. This means that such descriptors will have no
// associated package name.
//
// To create a new FileBuilder, use NewFile.
type FileBuilder struct {
	path   string
	pkg    protoreflect.FullName
	syntax protoreflect.Syntax
	deps   []string

	messages []*MessageBuilder
	enums    []*EnumBuilder
	symbols  map[protoreflect.Name]Element

	sealed bool
}

var _ Element = (*FileBuilder)(nil)

// NewFile creates a new FileBuilder for a file with the given path. The path
// can be blank, which indicates a unique path should be generated for it. The
// file uses "proto3" syntax unless SetSyntax is used to change it.
func NewFile(path string) *FileBuilder {
	if path == "" {
		path = uniqueFilePath()
	}
	return &FileBuilder{
		path:    path,
		syntax:  protoreflect.Proto3,
		symbols: map[protoreflect.Name]Element{},
	}
}

// Name implements the Element interface. For files, this is the same as the
// file's path.
func (fb *FileBuilder) Name() protoreflect.Name {
	return protoreflect.Name(fb.path)
}

// Path returns the path of the file.
func (fb *FileBuilder) Path() string {
	return fb.path
}

// Parent implements the Element interface. Since files are roots and have no
// parent, this always returns nil.
func (fb *FileBuilder) Parent() Element {
	return nil
}

// ParentFile implements the Element interface. A file is its own parent file.
func (fb *FileBuilder) ParentFile() *FileBuilder {
	return fb
}

// IsSealed returns true once the file has been built.
func (fb *FileBuilder) IsSealed() bool {
	return fb.sealed
}

func (fb *FileBuilder) setParent(Element) {
	panic("files cannot have parents")
}

func (fb *FileBuilder) setSealed() {
	fb.sealed = true
}

func (fb *FileBuilder) children() []Element {
	var ch []Element
	for _, mb := range fb.messages {
		ch = append(ch, mb)
	}
	for _, eb := range fb.enums {
		ch = append(ch, eb)
	}
	return ch
}

// Package returns the file's package name.
func (fb *FileBuilder) Package() protoreflect.FullName {
	return fb.pkg
}

// SetPackage sets the file's package name. It panics if the name is not valid
// or if the file has been sealed. It returns the file builder, for method
// chaining.
func (fb *FileBuilder) SetPackage(pkg protoreflect.FullName) *FileBuilder {
	mustBeMutable(fb)
	if pkg != "" && !pkg.IsValid() {
		panic(fmt.Sprintf("package name %q is invalid", pkg))
	}
	fb.pkg = pkg
	return fb
}

// Syntax returns the file's syntax level.
func (fb *FileBuilder) Syntax() protoreflect.Syntax {
	return fb.syntax
}

// SetSyntax sets the file's syntax level, which must be proto2 or proto3. It
// returns the file builder, for method chaining.
func (fb *FileBuilder) SetSyntax(syntax protoreflect.Syntax) *FileBuilder {
	mustBeMutable(fb)
	if syntax != protoreflect.Proto2 && syntax != protoreflect.Proto3 {
		panic(fmt.Sprintf("unsupported syntax %v", syntax))
	}
	fb.syntax = syntax
	return fb
}

// AddDependency declares that this file depends on the file with the given
// path. The dependency must be present in the pool (or in the same batch)
// when the file is sealed. Declaring dependencies is optional for files that
// define the types this file refers to: those are added automatically. It
// returns the file builder, for method chaining.
func (fb *FileBuilder) AddDependency(path string) *FileBuilder {
	mustBeMutable(fb)
	if !slices.Contains(fb.deps, path) {
		fb.deps = append(fb.deps, path)
	}
	return fb
}

// GetMessage returns the top-level message with the given name. If no such
// message exists in the file, nil is returned.
func (fb *FileBuilder) GetMessage(name protoreflect.Name) *MessageBuilder {
	mb, _ := fb.symbols[name].(*MessageBuilder)
	return mb
}

// GetEnum returns the top-level enum with the given name. If no such enum
// exists in the file, nil is returned.
func (fb *FileBuilder) GetEnum(name protoreflect.Name) *EnumBuilder {
	eb, _ := fb.symbols[name].(*EnumBuilder)
	return eb
}

func (fb *FileBuilder) addSymbol(b Element, kind string) error {
	if _, ok := fb.symbols[b.Name()]; ok {
		return &protoschema.DuplicateNameError{Name: string(fb.pkg.Append(b.Name())), Kind: kind, Existing: fb.path}
	}
	fb.symbols[b.Name()] = b
	return nil
}

// AddMessage adds the given message to this file. If an error prevents the
// message from being added, this method panics. This returns the file
// builder, for method chaining.
func (fb *FileBuilder) AddMessage(mb *MessageBuilder) *FileBuilder {
	if err := fb.TryAddMessage(mb); err != nil {
		panic(err)
	}
	return fb
}

// TryAddMessage adds the given message to this file, returning any error that
// prevents the message from being added (such as a name collision with
// another element already added to the file).
func (fb *FileBuilder) TryAddMessage(mb *MessageBuilder) error {
	if err := checkAddable(fb, mb); err != nil {
		return err
	}
	if err := fb.addSymbol(mb, "message"); err != nil {
		return err
	}
	mb.setParent(fb)
	fb.messages = append(fb.messages, mb)
	return nil
}

// AddEnum adds the given enum to this file. If an error prevents the enum
// from being added, this method panics. This returns the file builder, for
// method chaining.
func (fb *FileBuilder) AddEnum(eb *EnumBuilder) *FileBuilder {
	if err := fb.TryAddEnum(eb); err != nil {
		panic(err)
	}
	return fb
}

// TryAddEnum adds the given enum to this file, returning any error that
// prevents the enum from being added (such as a name collision with another
// element already added to the file).
func (fb *FileBuilder) TryAddEnum(eb *EnumBuilder) error {
	if err := checkAddable(fb, eb); err != nil {
		return err
	}
	if err := fb.addSymbol(eb, "enum"); err != nil {
		return err
	}
	eb.setParent(fb)
	fb.enums = append(fb.enums, eb)
	return nil
}

// BuildProto constructs the descriptor proto for this file. Type references
// to other builders and to imported descriptors are fully-qualified; types
// referenced with FieldTypeNamed are left as given, to be resolved when the
// file is sealed.
func (fb *FileBuilder) BuildProto() (*descriptorpb.FileDescriptorProto, error) {
	fdp, _, err := fb.buildProto()
	return fdp, err
}

func (fb *FileBuilder) buildProto() (*descriptorpb.FileDescriptorProto, *importSet, error) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(fb.path),
		Syntax:     proto.String(fb.syntax.String()),
		Dependency: slices.Clone(fb.deps),
	}
	if fb.pkg != "" {
		fdp.Package = proto.String(string(fb.pkg))
	}
	imports := newImportSet()
	for _, mb := range fb.messages {
		mp, err := mb.buildProto(imports)
		if err != nil {
			return nil, nil, err
		}
		fdp.MessageType = append(fdp.MessageType, mp)
	}
	for _, eb := range fb.enums {
		fdp.EnumType = append(fdp.EnumType, eb.buildProto())
	}
	imports.addDependencies(fdp)
	return fdp, imports, nil
}

// Build seals this file into a descriptor and registers it with the given
// pool. Type references are resolved against the file itself and then against
// the pool. Registration is all-or-nothing: if any of the file's names are
// already registered, nothing is added to the pool.
//
// If pool is nil, the file is sealed without being registered anywhere.
//
// If the file has been sealed before, a *protoschema.IllegalStateError is
// returned. If sealing or registration fails, the builder is left unsealed so
// that it can be corrected and built again.
func (fb *FileBuilder) Build(pool *protopool.Pool) (*protoschema.FileDescriptor, error) {
	if err := checkMutable(fb); err != nil {
		return nil, err
	}
	fdp, imports, err := fb.buildProto()
	if err != nil {
		return nil, err
	}
	fd, err := protoschema.NewFile(fdp, newResolver(pool, imports))
	if err != nil {
		return nil, err
	}
	if pool != nil {
		if err := pool.RegisterFile(fd); err != nil {
			return nil, err
		}
	}
	sealAll(fb)
	return fd, nil
}
