// Package sort orders file descriptor protos so that every file comes after
// the files it imports.
package sort

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/descriptorpb"
)

// SortFiles topologically sorts the given file descriptor protos, in place.
// It returns an error if the given files include duplicates (more than one
// entry with the same path), if they contain an import cycle, or if any of
// them refers to an import that is neither present in the given files nor
// accepted by the given external predicate. A nil predicate accepts nothing.
//
// Files that do not depend on one another keep their relative order.
func SortFiles(files []*descriptorpb.FileDescriptorProto, external func(path string) bool) error {
	byPath := make(map[string]*descriptorpb.FileDescriptorProto, len(files))
	for _, fd := range files {
		if _, ok := byPath[fd.GetName()]; ok {
			return fmt.Errorf("duplicate file %q", fd.GetName())
		}
		byPath[fd.GetName()] = fd
	}
	s := sorter{
		byPath:   byPath,
		external: external,
		state:    make(map[string]visitState, len(files)),
		result:   make([]*descriptorpb.FileDescriptorProto, 0, len(files)),
	}
	for _, fd := range files {
		if err := s.visit(fd, nil); err != nil {
			return err
		}
	}
	copy(files, s.result)
	return nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type sorter struct {
	byPath   map[string]*descriptorpb.FileDescriptorProto
	external func(string) bool
	state    map[string]visitState
	result   []*descriptorpb.FileDescriptorProto
}

func (s *sorter) visit(fd *descriptorpb.FileDescriptorProto, stack []string) error {
	path := fd.GetName()
	switch s.state[path] {
	case visited:
		return nil
	case visiting:
		return fmt.Errorf("import cycle: %s -> %s", strings.Join(stack, " -> "), path)
	}
	s.state[path] = visiting
	stack = append(stack, path)
	for _, dep := range fd.GetDependency() {
		if dep == path {
			// ignore erroneous self references
			continue
		}
		depFile, ok := s.byPath[dep]
		if !ok {
			if s.external != nil && s.external(dep) {
				continue
			}
			return fmt.Errorf("file %q imports %q, but %q is not present", path, dep, dep)
		}
		if err := s.visit(depFile, stack); err != nil {
			return err
		}
	}
	s.state[path] = visited
	s.result = append(s.result, fd)
	return nil
}
