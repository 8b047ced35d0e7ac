package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/solatis/protocheck"
	"github.com/solatis/protocheck/internal/violations"
)

var validateCmd = &cobra.Command{
	Use:   "validate [FILE.json ...]",
	Short: "Validate JSON-encoded messages",
	Long:  `Decodes each file (or stdin when none is given) as the named message and reports every rule it breaks.`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("descriptor-set", "", "serialized FileDescriptorSet (binary or JSON)")
	validateCmd.Flags().String("message", "", "fully-qualified message name")
	validateCmd.Flags().String("output", "text", "output format (text, json)")
	validateCmd.Flags().Bool("fail-fast", false, "stop at the first violation of each document")
	_ = validateCmd.MarkFlagRequired("message")
}

type document struct {
	name string
	data []byte
}

func readDocuments(cmd *cobra.Command, args []string) ([]document, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return []document{{name: "<stdin>", data: data}}, nil
	}
	docs := make([]document, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{name: path, data: data})
	}
	return docs, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "json" {
		return fmt.Errorf("--output must be text or json, got %q", output)
	}
	name, _ := cmd.Flags().GetString("message")

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	md, err := e.registry.Message(name)
	if err != nil {
		return err
	}
	v, err := e.validator()
	if err != nil {
		return err
	}
	docs, err := readDocuments(cmd, args)
	if err != nil {
		return err
	}

	unmarshal := protojson.UnmarshalOptions{Resolver: dynamicpb.NewTypes(e.registry.Files())}
	out := cmd.OutOrStdout()
	failed := 0
	for _, doc := range docs {
		msg := dynamicpb.NewMessage(md)
		if err := unmarshal.Unmarshal(doc.data, msg); err != nil {
			return fmt.Errorf("%s: decoding %s: %w", doc.name, md.FullName(), err)
		}
		verr, err := validateDocument(v, msg)
		if err != nil {
			return err
		}
		if verr != nil {
			failed++
		}
		if err := report(out, output, doc.name, verr); err != nil {
			return err
		}
	}

	e.logger.Info("validated documents",
		"message", md.FullName(),
		"documents", len(docs),
		"failed", failed)
	if failed > 0 {
		return ErrFindings
	}
	return nil
}

// validateDocument separates violations from errors that stop the run.
func validateDocument(v *protocheck.Validator, msg protoreflect.ProtoMessage) (*protocheck.ValidationError, error) {
	err := v.Validate(msg)
	if err == nil {
		return nil, nil
	}
	var verr *protocheck.ValidationError
	if errors.As(err, &verr) {
		return verr, nil
	}
	return nil, err
}

type jsonReport struct {
	File       string          `json:"file"`
	Valid      bool            `json:"valid"`
	Violations json.RawMessage `json:"violations,omitempty"`
}

func report(w io.Writer, format, name string, verr *protocheck.ValidationError) error {
	if format == "json" {
		r := jsonReport{File: name, Valid: verr == nil}
		if verr != nil {
			raw, err := protojson.Marshal(verr.ToProto())
			if err != nil {
				return err
			}
			r.Violations = raw
		}
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(line))
		return err
	}

	if verr == nil {
		_, err := fmt.Fprintf(w, "%s: ok\n", name)
		return err
	}
	for _, viol := range verr.Violations {
		path := violations.FieldPathString(viol.GetField())
		if path == "" {
			path = "<message>"
		}
		if _, err := fmt.Fprintf(w, "%s: %s: %s [%s]\n", name, path, viol.GetMessage(), viol.GetRuleId()); err != nil {
			return err
		}
	}
	return nil
}
