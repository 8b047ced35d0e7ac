package cmd

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Report rule declarations that cannot be compiled",
	Long:  `Compiles the validation plan of every message in the descriptor set, or of the named ones, and prints each schema error.`,
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
	lintCmd.Flags().String("descriptor-set", "", "serialized FileDescriptorSet (binary or JSON)")
	lintCmd.Flags().StringSlice("message", nil, "fully-qualified message names (default: all)")
}

func runLint(cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("message")

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	var targets []protoreflect.MessageDescriptor
	if len(names) == 0 {
		targets = e.registry.Messages()
	} else {
		for _, name := range names {
			md, err := e.registry.Message(name)
			if err != nil {
				return err
			}
			targets = append(targets, md)
		}
	}

	v, err := protocheck.New(protocheck.WithLogger(e.logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	seen := make(map[string]bool)
	for _, md := range targets {
		for _, schemaErr := range flatten(v.Compile(md)) {
			text := schemaErr.Error()
			if seen[text] {
				continue
			}
			seen[text] = true
			fmt.Fprintln(out, text)
		}
	}

	e.logger.Info("linted messages", "messages", len(targets), "errors", len(seen))
	if len(seen) > 0 {
		return ErrFindings
	}
	return nil
}

// flatten unpacks aggregated schema errors. A message reached from several
// roots reports the same errors more than once; callers dedupe.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []error{err}
	}
	var out []error
	for _, e := range merr.Errors {
		out = append(out, flatten(e)...)
	}
	return out
}
