package sort

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func file(name string, deps ...string) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(name),
		Dependency: deps,
	}
}

func order(files []*descriptorpb.FileDescriptorProto) map[string]int {
	res := make(map[string]int, len(files))
	for i, fd := range files {
		res[fd.GetName()] = i
	}
	return res
}

func TestSortFiles_Empty(t *testing.T) {
	require.NoError(t, SortFiles(nil, nil))
	require.NoError(t, SortFiles([]*descriptorpb.FileDescriptorProto{}, nil))
}

func TestSortFiles_NoDependencies(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file1.proto"),
		file("file2.proto"),
		file("file3.proto"),
	}
	require.NoError(t, SortFiles(files, nil))
	// independent files keep their order
	require.Equal(t, "file1.proto", files[0].GetName())
	require.Equal(t, "file2.proto", files[1].GetName())
	require.Equal(t, "file3.proto", files[2].GetName())
}

func TestSortFiles_WithDependencies(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file3.proto", "file2.proto"),
		file("file1.proto"),
		file("file2.proto", "file1.proto"),
	}
	require.NoError(t, SortFiles(files, nil))
	require.Len(t, files, 3)
	pos := order(files)
	require.Less(t, pos["file1.proto"], pos["file2.proto"])
	require.Less(t, pos["file2.proto"], pos["file3.proto"])
}

func TestSortFiles_ComplexDependencies(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("service.proto", "common.proto", "types.proto"),
		file("types.proto", "base.proto"),
		file("base.proto"),
		file("common.proto", "base.proto"),
	}
	require.NoError(t, SortFiles(files, nil))
	pos := order(files)
	require.Less(t, pos["base.proto"], pos["common.proto"])
	require.Less(t, pos["base.proto"], pos["types.proto"])
	require.Less(t, pos["common.proto"], pos["service.proto"])
	require.Less(t, pos["types.proto"], pos["service.proto"])
}

func TestSortFiles_DuplicateFile(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("test.proto"),
		file("test.proto"),
	}
	err := SortFiles(files, nil)
	require.EqualError(t, err, `duplicate file "test.proto"`)
}

func TestSortFiles_MissingImport(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file1.proto", "missing.proto"),
		file("file2.proto"),
	}
	err := SortFiles(files, nil)
	require.EqualError(t, err, `file "file1.proto" imports "missing.proto", but "missing.proto" is not present`)
}

func TestSortFiles_ExternalImport(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file2.proto", "file1.proto", "registered.proto"),
		file("file1.proto", "registered.proto"),
	}
	external := func(path string) bool { return path == "registered.proto" }
	require.NoError(t, SortFiles(files, external))
	require.Equal(t, "file1.proto", files[0].GetName())
	require.Equal(t, "file2.proto", files[1].GetName())
}

func TestSortFiles_CircularDependency(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file1.proto", "file2.proto"),
		file("file2.proto", "file1.proto"),
	}
	err := SortFiles(files, nil)
	require.EqualError(t, err, "import cycle: file1.proto -> file2.proto -> file1.proto")
}

func TestSortFiles_SelfDependency(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("file.proto", "file.proto"),
	}
	require.NoError(t, SortFiles(files, nil))
	require.Len(t, files, 1)
}

func TestSortFiles_MultipleDependenciesSameFile(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		file("aggregate.proto", "derived1.proto", "derived2.proto"),
		file("derived2.proto", "base.proto"),
		file("derived1.proto", "base.proto"),
		file("base.proto"),
	}
	require.NoError(t, SortFiles(files, nil))
	require.Len(t, files, 4)
	require.Equal(t, "base.proto", files[0].GetName())
	require.Equal(t, "aggregate.proto", files[3].GetName())
}

func TestSortFiles_PreservesFileContents(t *testing.T) {
	files := []*descriptorpb.FileDescriptorProto{
		{
			Name:       proto.String("file2.proto"),
			Package:    proto.String("pkg2"),
			Syntax:     proto.String("proto3"),
			Dependency: []string{"file1.proto"},
		},
		{
			Name:    proto.String("file1.proto"),
			Package: proto.String("pkg1"),
			Syntax:  proto.String("proto3"),
		},
	}
	require.NoError(t, SortFiles(files, nil))
	require.Equal(t, "pkg1", files[0].GetPackage())
	require.Equal(t, "proto3", files[0].GetSyntax())
	require.Equal(t, "pkg2", files[1].GetPackage())
	require.Equal(t, []string{"file1.proto"}, files[1].GetDependency())
}
