// Package schema loads message descriptors from serialized
// FileDescriptorSets, as produced by `buf build -o` or
// `protoc --descriptor_set_out --include_imports`.
package schema

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/solatis/protocheck/internal/types"

	// Registers buf.validate so rule options decode as extensions.
	_ "buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
)

// Packages whose messages are infrastructure, not user schema.
var infrastructure = map[protoreflect.FullName]bool{
	"google.protobuf": true,
	"buf.validate":    true,
}

// Registry holds the files of one descriptor set.
type Registry struct {
	files *protoregistry.Files
	own   []string // paths of the files the set declared
}

// Load reads a descriptor set from path. See Parse.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor set: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a FileDescriptorSet in binary form, or in protojson form
// when the data starts with '{'. Imports missing from the set are taken
// from the files linked into this binary.
func Parse(data []byte) (*Registry, error) {
	set := &descriptorpb.FileDescriptorSet{}
	var err error
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = protojson.Unmarshal(trimmed, set)
	} else {
		err = proto.Unmarshal(data, set)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding descriptor set: %w", err)
	}

	own := make([]string, 0, len(set.GetFile()))
	for _, fd := range set.GetFile() {
		own = append(own, fd.GetName())
	}
	if err := addMissingImports(set); err != nil {
		return nil, err
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("resolving descriptor set: %w", err)
	}
	return &Registry{files: files, own: own}, nil
}

func addMissingImports(set *descriptorpb.FileDescriptorSet) error {
	present := make(map[string]bool, len(set.GetFile()))
	for _, fd := range set.GetFile() {
		present[fd.GetName()] = true
	}
	for i := 0; i < len(set.File); i++ {
		for _, dep := range set.File[i].GetDependency() {
			if present[dep] {
				continue
			}
			linked, err := protoregistry.GlobalFiles.FindFileByPath(dep)
			if err != nil {
				return fmt.Errorf("import %s of %s is neither in the set nor linked in: %w", dep, set.File[i].GetName(), err)
			}
			present[dep] = true
			set.File = append(set.File, protodesc.ToFileDescriptorProto(linked))
		}
	}
	return nil
}

// Files returns the resolved files.
func (r *Registry) Files() *protoregistry.Files {
	return r.files
}

// Message resolves a message by full name.
func (r *Registry) Message(name string) (protoreflect.MessageDescriptor, error) {
	d, err := r.files.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, &types.SchemaError{Message: name, Err: types.ErrUnknownMessage}
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, &types.SchemaError{Message: name, Err: fmt.Errorf("%w: %s is a %T", types.ErrUnknownMessage, name, d)}
	}
	return md, nil
}

// Messages returns every message declared by the set's own files, nested
// ones included, sorted by full name. Map entries and the google.protobuf
// and buf.validate packages are left out.
func (r *Registry) Messages() []protoreflect.MessageDescriptor {
	var out []protoreflect.MessageDescriptor
	var walk func(protoreflect.MessageDescriptors)
	walk = func(mds protoreflect.MessageDescriptors) {
		for i := 0; i < mds.Len(); i++ {
			md := mds.Get(i)
			if md.IsMapEntry() {
				continue
			}
			out = append(out, md)
			walk(md.Messages())
		}
	}
	for _, path := range r.own {
		fd, err := r.files.FindFileByPath(path)
		if err != nil || infrastructure[fd.Package()] {
			continue
		}
		walk(fd.Messages())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}
