// Package commands provides the cobra commands of the hal-dmr CLI.
//
// There are two ways to use commands from this package:
//
// 1. The complete CLI:
//
//	root := commands.New(nil).Root(version)
//	err := root.ExecuteContext(ctx)
//
// 2. Single command groups added to another CLI, with injected dependencies for testing:
//
//	cmds := commands.New(&commands.Deps{
//	    NewDispatcher: func(*config.Config, logger.Logger) (operations.Dispatcher, error) {
//	        return optest.NewDispatcher(), nil
//	    },
//	})
//	app.AddCommand(cmds.Plan(), cmds.Read())
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hal-console/dmr-framework/config"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

// Commands provides a factory for creating CLI commands with shared dependencies.
type Commands struct {
	deps Deps
}

// New creates a new Commands factory. A nil deps uses production defaults for everything.
func New(deps *Deps) *Commands {
	var d Deps
	if deps != nil {
		d = *deps
	}
	d.applyDefaults()

	return &Commands{deps: d}
}

// Root creates the hal-dmr root command with every command group and the persistent config
// flags.
func (c *Commands) Root(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hal-dmr",
		Short:         "Submit management operations to an application server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(c.Plan(), c.Read(), c.Version(version))

	return cmd
}

// Version creates the version command.
func (c *Commands) Version(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "hal-dmr "+version)
		},
	}
}

// session is the configuration and logger of a running command.
type session struct {
	cfg  *config.Config
	lggr logger.Logger
}

func (c *Commands) session(cmd *cobra.Command) (*session, error) {
	cfg, err := c.deps.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	lggr, err := c.deps.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &session{cfg: cfg, lggr: lggr.Named(cmd.Name())}, nil
}
