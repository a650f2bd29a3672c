package protosource

import (
	"context"
	"fmt"
	"io"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/reporter"
	"github.com/sirupsen/logrus"

	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
)

// Loader compiles .proto source files and imports the results into a pool.
//
// The well-known types that ship with protoc, such as
// "google/protobuf/timestamp.proto", can always be imported, even when they
// are not found in any import path.
type Loader struct {
	// ImportPaths are the directories searched for source files and their
	// imports. If empty, paths are relative to the current working
	// directory.
	ImportPaths []string
	// Accessor, if non-nil, is used to open source files instead of the
	// file system. Paths given to it are joined with an import path, if
	// any are configured.
	Accessor func(path string) (io.ReadCloser, error)
	// Logger receives compiler warnings and a debug entry for each file
	// loaded. If nil, nothing is logged.
	Logger logrus.FieldLogger
}

// Load compiles the named files, and everything they import, and imports them
// into the given pool. It returns the sealed descriptors for the named files,
// in the same order.
//
// Files that are already in the pool are not compiled again. A file whose
// compiled form cannot be sealed, such as one that uses editions, results in
// an error; files loaded before it remain in the pool.
func (l *Loader) Load(ctx context.Context, pool *protopool.Pool, paths ...string) ([]*protoschema.FileDescriptor, error) {
	log := l.Logger
	if log == nil {
		log = internal.NewNullLogger()
	}

	results := make([]*protoschema.FileDescriptor, len(paths))
	var toCompile []string
	for i, path := range paths {
		if fd := pool.FindFileByPath(path); fd != nil {
			results[i] = fd
			continue
		}
		toCompile = append(toCompile, path)
	}
	if len(toCompile) == 0 {
		return results, nil
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: l.ImportPaths,
			Accessor:    l.Accessor,
		}),
		Reporter: reporter.NewReporter(nil, func(warning reporter.ErrorWithPos) {
			log.WithField("pos", warning.GetPosition().String()).Warn(warning.Unwrap())
		}),
	}
	files, err := compiler.Compile(ctx, toCompile...)
	if err != nil {
		return nil, fmt.Errorf("could not compile %v: %w", toCompile, err)
	}

	compiled := 0
	for i := range results {
		if results[i] != nil {
			continue
		}
		file := files[compiled]
		compiled++
		fd, err := pool.ImportFile(file)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"file":    fd.Path(),
			"package": fd.Package(),
		}).Debug("loaded source file")
		results[i] = fd
	}
	return results, nil
}

// SourcesFromMap returns an accessor for a Loader that serves the given
// in-memory sources, keyed by path.
func SourcesFromMap(files map[string]string) func(path string) (io.ReadCloser, error) {
	return protocompile.SourceAccessorFromMap(files)
}
