package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations"
)

// Read creates the read command, which prints a resource as DMR JSON.
//
// Usage:
//
//	hal-dmr read /subsystem=ee --recursive
func (c *Commands) Read() *cobra.Command {
	var (
		recursive      bool
		includeRuntime bool
	)

	cmd := &cobra.Command{
		Use:   "read <address>",
		Short: "Read a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := dmr.ParseResourceAddress(args[0])
			if err != nil {
				return err
			}
			b := dmr.NewOperationBuilder(address, dmr.ReadResourceOperation)
			if recursive {
				b.Param(dmr.Recursive, true)
			}
			if includeRuntime {
				b.Param(dmr.IncludeRuntime, true)
			}
			op, err := b.Build()
			if err != nil {
				return err
			}

			s, err := c.session(cmd)
			if err != nil {
				return err
			}
			dispatcher, err := c.deps.NewDispatcher(s.cfg, s.lggr)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}

			bundle := operations.NewBundle(cmd.Context, s.lggr, operations.NewMemoryReporter(), dispatcher)
			res, err := bundle.Dispatch(op)
			if err != nil {
				return err
			}
			data, err := res.Result.JSONIndent("", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return err
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Include child resources")
	cmd.Flags().BoolVar(&includeRuntime, "include-runtime", false, "Include runtime attributes")

	return cmd
}
