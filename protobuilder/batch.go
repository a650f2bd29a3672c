package protobuilder

import (
	"fmt"
	"slices"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/internal/sort"
	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// Builder collects a batch of files that are sealed and registered together.
// Files in a batch may refer to each other's types regardless of the order in
// which they were added.
//
// Messages and enums can also be added directly to a Builder, in which case
// they are placed in a default file that has a unique path and no package.
//
// To create a new Builder, use New.
type Builder struct {
	files       []*FileBuilder
	byPath      map[string]*FileBuilder
	defaultFile *FileBuilder
	sealed      bool
}

// New creates a new, empty Builder.
func New() *Builder {
	return &Builder{byPath: map[string]*FileBuilder{}}
}

// IsSealed returns true once the batch has been committed.
func (b *Builder) IsSealed() bool {
	return b.sealed
}

func (b *Builder) checkMutable() error {
	if b.sealed {
		return &protoschema.IllegalStateError{What: "builder", Reason: "batch has already been committed"}
	}
	return nil
}

// Files returns the files in this batch, in the order they were added.
func (b *Builder) Files() []*FileBuilder {
	return append([]*FileBuilder(nil), b.files...)
}

// AddFile adds the given file to this batch. If an error prevents the file
// from being added, this method panics. This returns the builder, for method
// chaining.
func (b *Builder) AddFile(fb *FileBuilder) *Builder {
	if err := b.TryAddFile(fb); err != nil {
		panic(err)
	}
	return b
}

// TryAddFile adds the given file to this batch, returning any error that
// prevents it from being added: the batch or the file has already been sealed,
// or the batch already has a file with the same path.
func (b *Builder) TryAddFile(fb *FileBuilder) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	if err := checkMutable(fb); err != nil {
		return err
	}
	if existing, ok := b.byPath[fb.path]; ok {
		if existing == fb {
			return nil
		}
		return &protoschema.DuplicateNameError{Name: fb.path, Kind: "file"}
	}
	b.byPath[fb.path] = fb
	b.files = append(b.files, fb)
	return nil
}

// File returns the file in this batch with the given path, adding a new
// empty file if there is none yet. It panics if the batch has been
// committed.
func (b *Builder) File(path string) *FileBuilder {
	if fb, ok := b.byPath[path]; ok {
		return fb
	}
	fb := NewFile(path)
	b.AddFile(fb)
	return fb
}

func (b *Builder) getDefaultFile() *FileBuilder {
	if b.defaultFile == nil {
		b.defaultFile = NewFile("")
		b.AddFile(b.defaultFile)
	}
	return b.defaultFile
}

// AddMessage adds the given message to this batch's default file. If an error
// prevents the message from being added, this method panics. This returns the
// builder, for method chaining.
func (b *Builder) AddMessage(mb *MessageBuilder) *Builder {
	if err := b.TryAddMessage(mb); err != nil {
		panic(err)
	}
	return b
}

// TryAddMessage adds the given message to this batch's default file,
// returning any error that prevents it from being added.
func (b *Builder) TryAddMessage(mb *MessageBuilder) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	return b.getDefaultFile().TryAddMessage(mb)
}

// AddEnum adds the given enum to this batch's default file. If an error
// prevents the enum from being added, this method panics. This returns the
// builder, for method chaining.
func (b *Builder) AddEnum(eb *EnumBuilder) *Builder {
	if err := b.TryAddEnum(eb); err != nil {
		panic(err)
	}
	return b
}

// TryAddEnum adds the given enum to this batch's default file, returning any
// error that prevents it from being added.
func (b *Builder) TryAddEnum(eb *EnumBuilder) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	return b.getDefaultFile().TryAddEnum(eb)
}

// Commit seals all files in the batch and registers them with the given pool.
// Files are sealed in dependency order, each one against the pool and the
// files of the batch that were sealed before it, so files can refer to types
// in other files of the batch. The sealed files are returned in the order they
// were added to the batch.
//
// Commit is all-or-nothing: if any file fails to seal or any name conflicts
// with one already in the pool, an error is returned, nothing is registered,
// and all builders are left unsealed so that they can be corrected and the
// batch committed again. Once a commit succeeds, the batch and all of its
// builders are sealed, and further changes (or another commit) result in a
// *protoschema.IllegalStateError.
func (b *Builder) Commit(pool *protopool.Pool) ([]*protoschema.FileDescriptor, error) {
	if err := b.checkMutable(); err != nil {
		return nil, err
	}
	protos := make([]*descriptorpb.FileDescriptorProto, len(b.files))
	imports := newImportSet()
	for i, fb := range b.files {
		if err := checkMutable(fb); err != nil {
			return nil, err
		}
		fdp, fileImports, err := fb.buildProto()
		if err != nil {
			return nil, err
		}
		imports.merge(fileImports)
		protos[i] = fdp
	}

	addNamedDependencies(protos)
	res := newResolver(pool, imports)
	sorted := append([]*descriptorpb.FileDescriptorProto(nil), protos...)
	if err := sort.SortFiles(sorted, res.hasFile); err != nil {
		return nil, err
	}
	sealed := make(map[string]*protoschema.FileDescriptor, len(sorted))
	for _, fdp := range sorted {
		fd, err := protoschema.NewFile(fdp, res)
		if err != nil {
			return nil, err
		}
		res.addFile(fd)
		sealed[fd.Path()] = fd
	}

	results := make([]*protoschema.FileDescriptor, len(b.files))
	for i, fb := range b.files {
		results[i] = sealed[fb.path]
	}
	if pool != nil {
		if err := pool.RegisterFiles(results...); err != nil {
			return nil, fmt.Errorf("could not register files: %w", err)
		}
	}
	for _, fb := range b.files {
		sealAll(fb)
	}
	b.sealed = true
	return results, nil
}

// addNamedDependencies finds fields that refer by name to types declared in
// other files of the batch and adds those files as dependencies, so that the
// files are sealed in an order where the referenced types are available.
func addNamedDependencies(protos []*descriptorpb.FileDescriptorProto) {
	declared := map[protoreflect.FullName]string{}
	for _, fdp := range protos {
		pkg := protoreflect.FullName(fdp.GetPackage())
		for _, ep := range fdp.EnumType {
			declared[qualify(pkg, ep.GetName())] = fdp.GetName()
		}
		for _, mp := range fdp.MessageType {
			declareMessage(declared, fdp.GetName(), pkg, mp)
		}
	}
	for _, fdp := range protos {
		pkg := protoreflect.FullName(fdp.GetPackage())
		for _, mp := range fdp.MessageType {
			visitFields(qualify(pkg, mp.GetName()), mp, func(scope protoreflect.FullName, fp *descriptorpb.FieldDescriptorProto) {
				path, ok := findDeclared(declared, scope, fp.GetTypeName())
				if ok && path != fdp.GetName() && !slices.Contains(fdp.Dependency, path) {
					fdp.Dependency = append(fdp.Dependency, path)
				}
			})
		}
	}
}

func qualify(scope protoreflect.FullName, name string) protoreflect.FullName {
	if scope == "" {
		return protoreflect.FullName(name)
	}
	return scope.Append(protoreflect.Name(name))
}

func declareMessage(declared map[protoreflect.FullName]string, path string, scope protoreflect.FullName, mp *descriptorpb.DescriptorProto) {
	name := qualify(scope, mp.GetName())
	declared[name] = path
	for _, ep := range mp.EnumType {
		declared[qualify(name, ep.GetName())] = path
	}
	for _, nmp := range mp.NestedType {
		declareMessage(declared, path, name, nmp)
	}
}

func visitFields(name protoreflect.FullName, mp *descriptorpb.DescriptorProto, fn func(protoreflect.FullName, *descriptorpb.FieldDescriptorProto)) {
	for _, fp := range mp.Field {
		if fp.GetTypeName() != "" {
			fn(name, fp)
		}
	}
	for _, nmp := range mp.NestedType {
		visitFields(qualify(name, nmp.GetName()), nmp, fn)
	}
}

// findDeclared resolves a type name the same way it is resolved when a file
// is sealed, but only against the types declared in the batch.
func findDeclared(declared map[protoreflect.FullName]string, scope protoreflect.FullName, typeName string) (string, bool) {
	if strings.HasPrefix(typeName, ".") {
		path, ok := declared[protoreflect.FullName(typeName[1:])]
		return path, ok
	}
	for {
		candidate := protoreflect.FullName(typeName)
		if scope != "" {
			candidate = protoreflect.FullName(string(scope) + "." + typeName)
		}
		if path, ok := declared[candidate]; ok {
			return path, true
		}
		if scope == "" {
			return "", false
		}
		scope = scope.Parent()
	}
}
