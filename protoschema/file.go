package protoschema

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protomodel/internal"
	"github.com/jhump/protomodel/internal/fielddefault"
)

// Resolver provides already-sealed files and types to NewFile, for resolving
// a file's dependencies and the types that its fields refer to.
//
// Both methods return nil if nothing is found.
type Resolver interface {
	FindFileByPath(path string) *FileDescriptor
	FindDescriptorByName(name protoreflect.FullName) Descriptor
}

// NewFile seals the given file descriptor proto into a FileDescriptor.
//
// Every path in the proto's dependency list must be known to r, or an
// *UnresolvedTypeError is returned. Type names referenced by fields are
// resolved against the file itself first and then against r, using the same
// scoping rules as protoc; a type name that cannot be resolved also results in
// an *UnresolvedTypeError. A type that is found in a file which the proto does
// not list as a dependency makes that file an implicit dependency. Elements
// whose names collide inside the file result in a *DuplicateNameError.
//
// Only syntax "proto2" and "proto3" are supported. Services and extensions
// are not modeled and are dropped. The given proto is not modified; the
// sealed file keeps a normalized copy that ToProto returns.
//
// The given resolver may be nil, in which case the file may neither have
// dependencies nor refer to types declared elsewhere.
func NewFile(fdp *descriptorpb.FileDescriptorProto, r Resolver) (*FileDescriptor, error) {
	s := &sealer{
		r:       r,
		fdp:     proto.Clone(fdp).(*descriptorpb.FileDescriptorProto),
		symbols: map[protoreflect.FullName]Descriptor{},
		deps:    map[string]*FileDescriptor{},
	}
	return s.seal()
}

type pendingField struct {
	fld   *FieldDescriptor
	proto *descriptorpb.FieldDescriptorProto
}

type sealer struct {
	r       Resolver
	fdp     *descriptorpb.FileDescriptorProto
	fd      *FileDescriptor
	symbols map[protoreflect.FullName]Descriptor
	deps    map[string]*FileDescriptor
	fields  []pendingField
}

func (s *sealer) seal() (*FileDescriptor, error) {
	fdp := s.fdp
	path := fdp.GetName()
	if path == "" {
		return nil, fmt.Errorf("file descriptor has no name")
	}
	var syntax protoreflect.Syntax
	switch fdp.GetSyntax() {
	case "", "proto2":
		syntax = protoreflect.Proto2
	case "proto3":
		syntax = protoreflect.Proto3
	case "editions":
		return nil, fmt.Errorf("%s: editions are not supported", path)
	default:
		return nil, fmt.Errorf("%s: unknown syntax %q", path, fdp.GetSyntax())
	}
	pkg := protoreflect.FullName(fdp.GetPackage())
	if pkg != "" && !pkg.IsValid() {
		return nil, fmt.Errorf("%s: invalid package name %q", path, pkg)
	}
	fdp.Service = nil
	fdp.Extension = nil

	s.fd = &FileDescriptor{
		path:   path,
		pkg:    pkg,
		syntax: syntax,
		proto:  fdp,
	}

	for _, dep := range fdp.Dependency {
		if _, ok := s.deps[dep]; ok {
			return nil, fmt.Errorf("%s: dependency %q is listed more than once", path, dep)
		}
		var depFile *FileDescriptor
		if s.r != nil {
			depFile = s.r.FindFileByPath(dep)
		}
		if depFile == nil {
			return nil, &UnresolvedTypeError{Name: dep, Referrer: path}
		}
		s.deps[dep] = depFile
		s.fd.deps = append(s.fd.deps, depFile)
	}

	for _, ep := range fdp.EnumType {
		ed, err := s.addEnum(ep, nil, pkg)
		if err != nil {
			return nil, err
		}
		s.fd.enums = append(s.fd.enums, ed)
	}
	for _, mp := range fdp.MessageType {
		md, err := s.addMessage(mp, nil, pkg)
		if err != nil {
			return nil, err
		}
		s.fd.messages = append(s.fd.messages, md)
	}

	for _, pf := range s.fields {
		if err := s.resolveField(pf); err != nil {
			return nil, err
		}
	}
	for _, pf := range s.fields {
		if err := s.checkField(pf); err != nil {
			return nil, err
		}
	}
	return s.fd, nil
}

func (s *sealer) addSymbol(d Descriptor, kind string) error {
	if _, ok := s.symbols[d.FullName()]; ok {
		return &DuplicateNameError{Name: string(d.FullName()), Kind: kind, Existing: s.fd.path}
	}
	s.symbols[d.FullName()] = d
	return nil
}

func (s *sealer) addMessage(mp *descriptorpb.DescriptorProto, parent *MessageDescriptor, scope protoreflect.FullName) (*MessageDescriptor, error) {
	name := protoreflect.Name(mp.GetName())
	if !name.IsValid() {
		return nil, fmt.Errorf("%s: invalid message name %q", s.fd.path, name)
	}
	md := &MessageDescriptor{
		name:           name,
		fullName:       scope.Append(name),
		file:           s.fd,
		parent:         parent,
		mapEntry:       mp.GetOptions().GetMapEntry(),
		fieldsByName:   map[protoreflect.Name]*FieldDescriptor{},
		fieldsByNumber: map[protoreflect.FieldNumber]*FieldDescriptor{},
	}
	if err := s.addSymbol(md, "message"); err != nil {
		return nil, err
	}

	for i, op := range mp.OneofDecl {
		oname := protoreflect.Name(op.GetName())
		if !oname.IsValid() {
			return nil, fmt.Errorf("%s: invalid oneof name %q", md.fullName, oname)
		}
		od := &OneofDescriptor{
			name:     oname,
			fullName: md.fullName.Append(oname),
			owner:    md,
			index:    i,
		}
		if err := s.addSymbol(od, "oneof"); err != nil {
			return nil, err
		}
		md.oneofs = append(md.oneofs, od)
	}
	for i, fp := range mp.Field {
		if err := s.addField(md, fp, i); err != nil {
			return nil, err
		}
	}
	seenSynthetic := false
	for _, od := range md.oneofs {
		if len(od.fields) == 0 {
			return nil, fmt.Errorf("%s: oneof must have at least one field", od.fullName)
		}
		od.synthetic = od.fields[0].proto3Optional
		if od.synthetic {
			if len(od.fields) != 1 {
				return nil, fmt.Errorf("%s: synthetic oneof must contain exactly one proto3 optional field", od.fullName)
			}
			seenSynthetic = true
		} else if seenSynthetic {
			return nil, fmt.Errorf("%s: oneofs must be declared before synthetic oneofs", od.fullName)
		}
	}

	for _, ep := range mp.EnumType {
		ed, err := s.addEnum(ep, md, md.fullName)
		if err != nil {
			return nil, err
		}
		md.enums = append(md.enums, ed)
	}
	for _, nmp := range mp.NestedType {
		nmd, err := s.addMessage(nmp, md, md.fullName)
		if err != nil {
			return nil, err
		}
		md.messages = append(md.messages, nmd)
	}
	return md, nil
}

func (s *sealer) addField(md *MessageDescriptor, fp *descriptorpb.FieldDescriptorProto, index int) error {
	name := protoreflect.Name(fp.GetName())
	if !name.IsValid() {
		return fmt.Errorf("%s: invalid field name %q", md.fullName, name)
	}
	fld := &FieldDescriptor{
		name:           name,
		fullName:       md.fullName.Append(name),
		number:         protoreflect.FieldNumber(fp.GetNumber()),
		index:          index,
		owner:          md,
		proto3Optional: fp.GetProto3Optional(),
	}
	if err := s.addSymbol(fld, "field"); err != nil {
		return err
	}
	if fld.number <= 0 || fld.number > internal.MaxFieldNumber {
		return fmt.Errorf("%s: field number %d is out of range", fld.fullName, fld.number)
	}
	if fld.number >= internal.FirstReservedNumber && fld.number <= internal.LastReservedNumber {
		return fmt.Errorf("%s: field number %d is reserved for the protobuf implementation", fld.fullName, fld.number)
	}
	if other := md.fieldsByNumber[fld.number]; other != nil {
		return fmt.Errorf("%s: field number %d is already used by %s", fld.fullName, fld.number, other.name)
	}

	syntax := s.fd.syntax
	switch fp.GetLabel() {
	case descriptorpb.FieldDescriptorProto_LABEL_REPEATED:
		fld.cardinality = protoreflect.Repeated
	case descriptorpb.FieldDescriptorProto_LABEL_REQUIRED:
		if syntax == protoreflect.Proto3 {
			return fmt.Errorf("%s: required fields are not allowed in proto3", fld.fullName)
		}
		fld.cardinality = protoreflect.Required
	default:
		fld.cardinality = protoreflect.Optional
	}

	if fp.Type != nil {
		fld.kind = protoreflect.Kind(fp.GetType())
		if !fld.kind.IsValid() {
			return fmt.Errorf("%s: invalid field type %d", fld.fullName, fp.GetType())
		}
		if fld.kind == protoreflect.GroupKind && syntax == protoreflect.Proto3 {
			return fmt.Errorf("%s: groups are not allowed in proto3", fld.fullName)
		}
	}

	if fp.GetJsonName() != "" {
		fld.jsonName = fp.GetJsonName()
	} else {
		fld.jsonName = jsonName(name)
		fp.JsonName = proto.String(fld.jsonName)
	}

	if fld.proto3Optional {
		if syntax != protoreflect.Proto3 {
			return fmt.Errorf("%s: proto3_optional is only allowed in proto3 files", fld.fullName)
		}
		if fld.cardinality != protoreflect.Optional {
			return fmt.Errorf("%s: proto3_optional fields must not be %v", fld.fullName, fld.cardinality)
		}
		if fp.OneofIndex == nil {
			return fmt.Errorf("%s: proto3_optional field must belong to a synthetic oneof", fld.fullName)
		}
	}
	if fp.OneofIndex != nil {
		idx := int(fp.GetOneofIndex())
		if idx < 0 || idx >= len(md.oneofs) {
			return fmt.Errorf("%s: oneof index %d is out of range", fld.fullName, idx)
		}
		if fld.cardinality != protoreflect.Optional {
			return fmt.Errorf("%s: oneof members must not be %v", fld.fullName, fld.cardinality)
		}
		od := md.oneofs[idx]
		if len(od.fields) > 0 && od.fields[0].proto3Optional != fld.proto3Optional {
			return fmt.Errorf("%s: proto3_optional fields cannot share a oneof with other fields", fld.fullName)
		}
		fld.oneof = od
		od.fields = append(od.fields, fld)
	}

	md.fields = append(md.fields, fld)
	md.fieldsByName[name] = fld
	md.fieldsByNumber[fld.number] = fld
	s.fields = append(s.fields, pendingField{fld: fld, proto: fp})
	return nil
}

func (s *sealer) addEnum(ep *descriptorpb.EnumDescriptorProto, parent *MessageDescriptor, scope protoreflect.FullName) (*EnumDescriptor, error) {
	name := protoreflect.Name(ep.GetName())
	if !name.IsValid() {
		return nil, fmt.Errorf("%s: invalid enum name %q", s.fd.path, name)
	}
	ed := &EnumDescriptor{
		name:     name,
		fullName: scope.Append(name),
		file:     s.fd,
		parent:   parent,
		byName:   map[protoreflect.Name]*EnumValueDescriptor{},
		byNumber: map[protoreflect.EnumNumber]*EnumValueDescriptor{},
	}
	if err := s.addSymbol(ed, "enum"); err != nil {
		return nil, err
	}
	if len(ep.Value) == 0 {
		return nil, fmt.Errorf("%s: enum must have at least one value", ed.fullName)
	}
	aliased := false
	for i, vp := range ep.Value {
		vname := protoreflect.Name(vp.GetName())
		if !vname.IsValid() {
			return nil, fmt.Errorf("%s: invalid enum value name %q", ed.fullName, vname)
		}
		evd := &EnumValueDescriptor{
			name: vname,
			// enum values are siblings of their enum
			fullName: scope.Append(vname),
			number:   protoreflect.EnumNumber(vp.GetNumber()),
			index:    i,
			enum:     ed,
		}
		if err := s.addSymbol(evd, "enum value"); err != nil {
			return nil, err
		}
		ed.values = append(ed.values, evd)
		ed.byName[vname] = evd
		if _, ok := ed.byNumber[evd.number]; ok {
			aliased = true
		} else {
			ed.byNumber[evd.number] = evd
		}
	}
	if s.fd.syntax == protoreflect.Proto3 && ed.values[0].number != 0 {
		return nil, fmt.Errorf("%s: the first value of a proto3 enum must be zero", ed.fullName)
	}
	if aliased && !ep.GetOptions().GetAllowAlias() {
		if ep.Options == nil {
			ep.Options = &descriptorpb.EnumOptions{}
		}
		ep.Options.AllowAlias = proto.Bool(true)
	}
	return ed, nil
}

func (s *sealer) resolveField(pf pendingField) error {
	fld, fp := pf.fld, pf.proto
	if fp.GetTypeName() == "" {
		switch {
		case fp.Type == nil:
			return fmt.Errorf("%s: field has neither a type nor a type name", fld.fullName)
		case internal.IsMessageKind(fld.kind) || fld.kind == protoreflect.EnumKind:
			return fmt.Errorf("%s: %v field requires a type name", fld.fullName, fld.kind)
		}
		return s.resolveDefault(fld, fp)
	}
	if fp.Type != nil && internal.IsScalarKind(fld.kind) {
		return fmt.Errorf("%s: %v field cannot have a type name", fld.fullName, fld.kind)
	}

	d, err := s.resolveType(fld.owner.fullName, fp.GetTypeName(), string(fld.fullName))
	if err != nil {
		return err
	}
	switch d := d.(type) {
	case *MessageDescriptor:
		if fp.Type == nil {
			fld.kind = protoreflect.MessageKind
			fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		} else if !internal.IsMessageKind(fld.kind) {
			return fmt.Errorf("%s: %s is a message, but field is declared as %v", fld.fullName, d.fullName, fld.kind)
		}
		fld.msgType = d
	case *EnumDescriptor:
		if fp.Type == nil {
			fld.kind = protoreflect.EnumKind
			fp.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
		} else if fld.kind != protoreflect.EnumKind {
			return fmt.Errorf("%s: %s is an enum, but field is declared as %v", fld.fullName, d.fullName, fld.kind)
		}
		if d.IsClosed() && s.fd.syntax == protoreflect.Proto3 {
			return fmt.Errorf("%s: proto3 messages cannot use closed enum %s", fld.fullName, d.fullName)
		}
		fld.enumType = d
	}
	fld.typeName = d.FullName()
	fp.TypeName = proto.String("." + string(d.FullName()))
	return s.resolveDefault(fld, fp)
}

func (s *sealer) resolveType(scope protoreflect.FullName, name, referrer string) (Descriptor, error) {
	if strings.HasPrefix(name, ".") {
		if d := s.lookupType(protoreflect.FullName(name[1:])); d != nil {
			return d, nil
		}
		return nil, &UnresolvedTypeError{Name: name, Referrer: referrer}
	}
	for {
		if d := s.lookupType(join(scope, name)); d != nil {
			return d, nil
		}
		if scope == "" {
			return nil, &UnresolvedTypeError{Name: name, Referrer: referrer}
		}
		scope = scope.Parent()
	}
}

func (s *sealer) lookupType(name protoreflect.FullName) Descriptor {
	if d, ok := s.symbols[name]; ok {
		if isType(d) {
			return d
		}
		return nil
	}
	if s.r == nil {
		return nil
	}
	d := s.r.FindDescriptorByName(name)
	if d == nil || !isType(d) {
		return nil
	}
	if file := d.ParentFile(); file != nil && file.path != s.fd.path {
		if _, ok := s.deps[file.path]; !ok {
			s.deps[file.path] = file
			s.fd.deps = append(s.fd.deps, file)
			s.fdp.Dependency = append(s.fdp.Dependency, file.path)
		}
	}
	return d
}

func (s *sealer) resolveDefault(fld *FieldDescriptor, fp *descriptorpb.FieldDescriptorProto) error {
	if fp.DefaultValue == nil {
		fld.defaultValue = zeroValue(fld)
		return nil
	}
	if s.fd.syntax == protoreflect.Proto3 {
		return fmt.Errorf("%s: default values are not allowed in proto3", fld.fullName)
	}
	if fld.cardinality == protoreflect.Repeated || internal.IsMessageKind(fld.kind) {
		return fmt.Errorf("%s: default values are not allowed for %s fields", fld.fullName, describeKind(fld))
	}
	literal := fp.GetDefaultValue()
	if fld.kind == protoreflect.EnumKind {
		ev := fld.enumType.byName[protoreflect.Name(literal)]
		if ev == nil {
			return fmt.Errorf("%s: default value %q is not a value of enum %s", fld.fullName, literal, fld.enumType.fullName)
		}
		fld.defaultValue = ev.number
	} else {
		v, err := fielddefault.Parse(fld.kind, literal)
		if err != nil {
			return fmt.Errorf("%s: %w", fld.fullName, err)
		}
		fld.defaultValue = v
	}
	fld.hasDefault = true
	fld.defaultLiteral = literal
	return nil
}

// checkField validates constraints that need all types to be resolved.
func (s *sealer) checkField(pf pendingField) error {
	fld := pf.fld
	if fld.msgType == nil || !fld.msgType.mapEntry {
		return nil
	}
	entry := fld.msgType
	if fld.cardinality != protoreflect.Repeated {
		return fmt.Errorf("%s: map entry type %s can only be used by a repeated field", fld.fullName, entry.fullName)
	}
	if entry.parent != fld.owner {
		return fmt.Errorf("%s: map entry type %s must be nested in %s", fld.fullName, entry.fullName, fld.owner.fullName)
	}
	if want := mapEntryName(fld.name); entry.name != want {
		return fmt.Errorf("%s: map entry type should be named %s, not %s", fld.fullName, want, entry.name)
	}
	if len(entry.fields) != 2 || len(entry.oneofs) > 0 || len(entry.messages) > 0 || len(entry.enums) > 0 {
		return fmt.Errorf("%s: map entry type must contain only key and value fields", entry.fullName)
	}
	key, val := entry.fieldsByNumber[internal.MapKeyNumber], entry.fieldsByNumber[internal.MapValueNumber]
	if key == nil || key.name != "key" || val == nil || val.name != "value" {
		return fmt.Errorf("%s: map entry type must have fields key = 1 and value = 2", entry.fullName)
	}
	if key.cardinality == protoreflect.Repeated || val.cardinality == protoreflect.Repeated {
		return fmt.Errorf("%s: map entry fields must not be repeated", entry.fullName)
	}
	if !internal.IsMapKeyKind(key.kind) {
		return fmt.Errorf("%s: map keys cannot be of type %v", fld.fullName, key.kind)
	}
	if val.kind == protoreflect.GroupKind {
		return fmt.Errorf("%s: map values cannot be groups", fld.fullName)
	}
	return nil
}

func isType(d Descriptor) bool {
	switch d.(type) {
	case *MessageDescriptor, *EnumDescriptor:
		return true
	default:
		return false
	}
}

func join(scope protoreflect.FullName, rel string) protoreflect.FullName {
	if scope == "" {
		return protoreflect.FullName(rel)
	}
	return scope + "." + protoreflect.FullName(rel)
}

func describeKind(fld *FieldDescriptor) string {
	switch {
	case fld.IsMap():
		return "map"
	case fld.cardinality == protoreflect.Repeated:
		return "repeated"
	default:
		return fld.kind.String()
	}
}

func zeroValue(fld *FieldDescriptor) any {
	if fld.cardinality == protoreflect.Repeated {
		return nil
	}
	switch fld.kind {
	case protoreflect.BoolKind:
		return false
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(0)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return int64(0)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(0)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return uint64(0)
	case protoreflect.FloatKind:
		return float32(0)
	case protoreflect.DoubleKind:
		return float64(0)
	case protoreflect.StringKind:
		return ""
	case protoreflect.BytesKind:
		return []byte(nil)
	case protoreflect.EnumKind:
		return fld.enumType.values[0].number
	default:
		return nil
	}
}

// jsonName computes the default JSON name for a field the same way protoc
// does: underscores are dropped and the letter following one is upper-cased.
func jsonName(name protoreflect.Name) string {
	var sb strings.Builder
	upperNext := false
	for _, c := range name {
		if c == '_' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upperNext = false
		sb.WriteRune(c)
	}
	return sb.String()
}

// mapEntryName returns the name protoc gives to the entry type of a map
// field with the given name.
func mapEntryName(fieldName protoreflect.Name) protoreflect.Name {
	var sb strings.Builder
	upperNext := true
	for _, c := range fieldName {
		if c == '_' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upperNext = false
		sb.WriteRune(c)
	}
	sb.WriteString("Entry")
	return protoreflect.Name(sb.String())
}
