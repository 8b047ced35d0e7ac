package rules

import (
	"fmt"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/solatis/protocheck/internal/types"
)

func fieldRules(fd protoreflect.FieldDescriptor) (*validate.FieldRules, error) {
	v, err := resolveExtension(fd.Options(), validate.E_Field)
	rules, _ := v.(*validate.FieldRules)
	return rules, err
}

func messageRules(md protoreflect.MessageDescriptor) (*validate.MessageRules, error) {
	v, err := resolveExtension(md.Options(), validate.E_Message)
	rules, _ := v.(*validate.MessageRules)
	return rules, err
}

func oneofRules(od protoreflect.OneofDescriptor) (*validate.OneofRules, error) {
	v, err := resolveExtension(od.Options(), validate.E_Oneof)
	rules, _ := v.(*validate.OneofRules)
	return rules, err
}

// resolveExtension reads xt from opts. Options decoded before the
// buf.validate types were registered hold the extension as unknown fields;
// those are re-parsed against the global registry.
func resolveExtension(opts proto.Message, xt protoreflect.ExtensionType) (any, error) {
	if opts == nil {
		return nil, nil
	}
	if proto.HasExtension(opts, xt) {
		return proto.GetExtension(opts, xt), nil
	}
	unknown := opts.ProtoReflect().GetUnknown()
	if len(unknown) == 0 {
		return nil, nil
	}
	reparsed := opts.ProtoReflect().New().Interface()
	if err := (proto.UnmarshalOptions{Resolver: protoregistry.GlobalTypes}).Unmarshal(unknown, reparsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedRules, xt.TypeDescriptor().FullName(), err)
	}
	if !proto.HasExtension(reparsed, xt) {
		return nil, nil
	}
	return proto.GetExtension(reparsed, xt), nil
}
