package main

import (
	"fmt"
	"io"

	v1desc "github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoprint"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jhump/protomodel/codec"
	"github.com/jhump/protomodel/protoschema"
)

func getCmdDescribe(gs *globalState) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "describe FILE...",
		Short: "Print the messages and enums declared in .proto files",
		Long: `Compile the given .proto files and print the schema of each one.

The default YAML output lists every message with its fields, one-ofs and
nested types. With --format proto, the files are printed back as .proto
source, as the schema model sees them: services and extensions are dropped
and all type references are fully qualified.`,
		Example: `  protomodel describe -I ./proto acme/orders.proto
  protomodel describe --format proto acme/orders.proto`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, files, err := loadFiles(cmd.Context(), gs, args)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), files)
			case "proto":
				return writeProto(cmd.OutOrStdout(), files)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or proto")
	return cmd
}

type fileDoc struct {
	Path         string       `yaml:"path"`
	Package      string       `yaml:"package,omitempty"`
	Syntax       string       `yaml:"syntax"`
	Dependencies []string     `yaml:"dependencies,omitempty"`
	Messages     []messageDoc `yaml:"messages,omitempty"`
	Enums        []enumDoc    `yaml:"enums,omitempty"`
}

type messageDoc struct {
	Name     string       `yaml:"name"`
	Fields   []fieldDoc   `yaml:"fields,omitempty"`
	Oneofs   []oneofDoc   `yaml:"oneofs,omitempty"`
	Messages []messageDoc `yaml:"messages,omitempty"`
	Enums    []enumDoc    `yaml:"enums,omitempty"`
}

type fieldDoc struct {
	Name    string `yaml:"name"`
	Number  int32  `yaml:"number"`
	Label   string `yaml:"label"`
	Type    string `yaml:"type"`
	Default string `yaml:"default,omitempty"`
}

type oneofDoc struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

type enumDoc struct {
	Name   string         `yaml:"name"`
	Closed bool           `yaml:"closed,omitempty"`
	Values []enumValueDoc `yaml:"values"`
}

type enumValueDoc struct {
	Name   string `yaml:"name"`
	Number int32  `yaml:"number"`
}

func writeYAML(w io.Writer, files []*protoschema.FileDescriptor) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, fd := range files {
		if err := enc.Encode(describeFile(fd)); err != nil {
			return err
		}
	}
	return enc.Close()
}

func describeFile(fd *protoschema.FileDescriptor) fileDoc {
	doc := fileDoc{
		Path:    fd.Path(),
		Package: string(fd.Package()),
		Syntax:  fd.Syntax().String(),
	}
	for _, dep := range fd.Dependencies() {
		doc.Dependencies = append(doc.Dependencies, dep.Path())
	}
	for _, md := range fd.Messages() {
		doc.Messages = append(doc.Messages, describeMessage(md))
	}
	for _, ed := range fd.Enums() {
		doc.Enums = append(doc.Enums, describeEnum(ed))
	}
	return doc
}

func describeMessage(md *protoschema.MessageDescriptor) messageDoc {
	doc := messageDoc{Name: string(md.Name())}
	for _, fld := range md.Fields() {
		label := fld.Cardinality().String()
		if fld.IsMap() {
			label = "map"
		}
		doc.Fields = append(doc.Fields, fieldDoc{
			Name:    string(fld.Name()),
			Number:  int32(fld.Number()),
			Label:   label,
			Type:    describeType(fld),
			Default: fld.DefaultLiteral(),
		})
	}
	for _, od := range md.Oneofs() {
		if od.IsSynthetic() {
			continue
		}
		oneof := oneofDoc{Name: string(od.Name())}
		for _, fld := range od.Fields() {
			oneof.Fields = append(oneof.Fields, string(fld.Name()))
		}
		doc.Oneofs = append(doc.Oneofs, oneof)
	}
	for _, nested := range md.Messages() {
		if nested.IsMapEntry() {
			continue
		}
		doc.Messages = append(doc.Messages, describeMessage(nested))
	}
	for _, ed := range md.Enums() {
		doc.Enums = append(doc.Enums, describeEnum(ed))
	}
	return doc
}

func describeType(fld *protoschema.FieldDescriptor) string {
	switch {
	case fld.IsMap():
		return fmt.Sprintf("map<%s, %s>", describeType(fld.MapKey()), describeType(fld.MapValue()))
	case fld.TypeName() != "":
		return string(fld.TypeName())
	default:
		return fld.Kind().String()
	}
}

func describeEnum(ed *protoschema.EnumDescriptor) enumDoc {
	doc := enumDoc{Name: string(ed.Name()), Closed: ed.IsClosed()}
	for _, evd := range ed.Values() {
		doc.Values = append(doc.Values, enumValueDoc{Name: string(evd.Name()), Number: int32(evd.Number())})
	}
	return doc
}

func writeProto(w io.Writer, files []*protoschema.FileDescriptor) error {
	engine := codec.NewEngine()
	printer := &protoprint.Printer{Compact: true}
	for i, fd := range files {
		rfd, err := engine.FileDescriptor(fd)
		if err != nil {
			return err
		}
		wrapped, err := v1desc.WrapFile(rfd)
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "// %s\n", fd.Path()); err != nil {
			return err
		}
		if err := printer.PrintProtoFile(wrapped, w); err != nil {
			return err
		}
	}
	return nil
}
