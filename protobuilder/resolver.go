package protobuilder

import (
	"slices"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// importSet collects the already-sealed types that builders refer to through
// FieldTypeImportedMessage and FieldTypeImportedEnum, and the paths of other
// file builders whose elements are referenced.
type importSet struct {
	types map[protoreflect.FullName]protoschema.Descriptor
	files map[string]struct{}
}

func newImportSet() *importSet {
	return &importSet{
		types: map[protoreflect.FullName]protoschema.Descriptor{},
		files: map[string]struct{}{},
	}
}

func (s *importSet) add(d protoschema.Descriptor) {
	s.types[d.FullName()] = d
	s.files[d.ParentFile().Path()] = struct{}{}
}

// addBuilder records the file of a referenced builder, if it has one.
func (s *importSet) addBuilder(b Element) {
	if fb := b.ParentFile(); fb != nil {
		s.files[fb.path] = struct{}{}
	}
}

func (s *importSet) merge(other *importSet) {
	for _, d := range other.types {
		s.add(d)
	}
	for path := range other.files {
		s.files[path] = struct{}{}
	}
}

// addDependencies adds the files that declare referenced types to the
// dependencies of fdp.
func (s *importSet) addDependencies(fdp *descriptorpb.FileDescriptorProto) {
	var paths []string
	for path := range s.files {
		if path == fdp.GetName() || slices.Contains(fdp.Dependency, path) {
			continue
		}
		paths = append(paths, path)
	}
	// map iteration order is random
	slices.Sort(paths)
	fdp.Dependency = append(fdp.Dependency, paths...)
}

// resolver is the protoschema.Resolver used to seal builders. It layers the
// files sealed so far in the current batch and the imported types on top of
// the pool.
type resolver struct {
	pool        *protopool.Pool
	imports     *importSet
	importFiles map[string]*protoschema.FileDescriptor
	batchFiles  map[string]*protoschema.FileDescriptor
	batchTypes  map[protoreflect.FullName]protoschema.Descriptor
}

var _ protoschema.Resolver = (*resolver)(nil)

func newResolver(pool *protopool.Pool, imports *importSet) *resolver {
	r := &resolver{
		pool:        pool,
		imports:     imports,
		importFiles: map[string]*protoschema.FileDescriptor{},
		batchFiles:  map[string]*protoschema.FileDescriptor{},
		batchTypes:  map[protoreflect.FullName]protoschema.Descriptor{},
	}
	for _, d := range imports.types {
		r.importFiles[d.ParentFile().Path()] = d.ParentFile()
	}
	return r
}

func (r *resolver) addFile(fd *protoschema.FileDescriptor) {
	r.batchFiles[fd.Path()] = fd
	for d := range fd.Types() {
		r.batchTypes[d.FullName()] = d
	}
}

func (r *resolver) hasFile(path string) bool {
	return r.FindFileByPath(path) != nil
}

func (r *resolver) FindFileByPath(path string) *protoschema.FileDescriptor {
	if fd := r.batchFiles[path]; fd != nil {
		return fd
	}
	if fd := r.importFiles[path]; fd != nil {
		return fd
	}
	if r.pool != nil {
		return r.pool.FindFileByPath(path)
	}
	return nil
}

func (r *resolver) FindDescriptorByName(name protoreflect.FullName) protoschema.Descriptor {
	if d := r.batchTypes[name]; d != nil {
		return d
	}
	if d := r.imports.types[name]; d != nil {
		return d
	}
	if r.pool != nil {
		return r.pool.FindDescriptorByName(name)
	}
	return nil
}
