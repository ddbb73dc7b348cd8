package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/plan"
)

// Plan creates the plan command group.
//
// Usage:
//
//	hal-dmr plan render ee-isolation.yaml
//	hal-dmr plan json ee-isolation.yaml
//	hal-dmr plan exec ee-isolation.yaml --retry
func (c *Commands) Plan() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan commands",
	}

	cmd.AddCommand(c.newPlanRenderCmd(), c.newPlanJSONCmd(), c.newPlanExecCmd())

	return cmd
}

func (c *Commands) loadSubmittable(path string) (*plan.Plan, dmr.Submittable, error) {
	p, err := c.deps.LoadPlan(path)
	if err != nil {
		return nil, nil, err
	}
	sub, err := p.Submittable()
	if err != nil {
		return nil, nil, fmt.Errorf("plan %s: %w", p.Name, err)
	}

	return p, sub, nil
}

func (c *Commands) newPlanRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <file>",
		Short: "Print the plan as CLI commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sub, err := c.loadSubmittable(args[0])
			if err != nil {
				return err
			}
			cli, err := sub.AsCli()
			if err != nil {
				return fmt.Errorf("failed to render plan: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli)

			return err
		},
	}
}

func (c *Commands) newPlanJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "json <file>",
		Short: "Print the request the plan submits as DMR JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sub, err := c.loadSubmittable(args[0])
			if err != nil {
				return err
			}
			data, err := sub.ModelNode().JSONIndent("", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return err
		},
	}
}

func (c *Commands) newPlanExecCmd() *cobra.Command {
	var (
		retry  bool
		cached bool
	)

	cmd := &cobra.Command{
		Use:   "exec <file>",
		Short: "Submit the plan to the management endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			p, sub, err := c.loadSubmittable(args[0])
			if err != nil {
				return err
			}
			def, err := p.Definition()
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
			reporter, closeReporter, err := c.deps.NewReporter(s.cfg, s.lggr)
			if err != nil {
				return fmt.Errorf("failed to open reports: %w", err)
			}
			defer func() {
				err = errors.Join(err, closeReporter())
			}()

			var opts []operations.ExecuteOption[*dmr.ModelNode]
			if retry {
				opts = append(opts, operations.WithRetryConfig(operations.RetryConfig[*dmr.ModelNode]{
					Enabled: true,
					Policy:  s.cfg.RetryPolicy(),
				}))
			}
			if cached {
				opts = append(opts, operations.WithCachedResult[*dmr.ModelNode]())
			}

			b := operations.NewBundle(cmd.Context, s.lggr, reporter, dispatcher)
			report, err := operations.ExecuteRequest(b, def, sub, opts...)
			if report.Output.Outcome != "" {
				if werr := writeOutcome(cmd.OutOrStdout(), report); werr != nil {
					return errors.Join(err, werr)
				}
			}

			return err
		},
	}

	cmd.Flags().BoolVar(&retry, "retry", false, "Retry requests that fail to reach the endpoint")
	cmd.Flags().BoolVar(&cached, "cached", false, "Reuse the report of a previous successful run of the same plan")

	return cmd
}

func writeOutcome(w io.Writer, report operations.Report[*dmr.ModelNode, operations.Outcome]) error {
	out := report.Output
	if _, err := fmt.Fprintf(w, "report %s: %s\n", report.ID, out.Outcome); err != nil {
		return err
	}
	for _, step := range out.Steps {
		line := fmt.Sprintf("  step-%d: %s", step.Step, step.Outcome)
		if step.FailureDescription != "" {
			line += ": " + step.FailureDescription
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if len(out.Steps) == 0 && out.FailureDescription != "" {
		if _, err := fmt.Fprintln(w, "  "+out.FailureDescription); err != nil {
			return err
		}
	}
	if out.RolledBack {
		_, err := fmt.Fprintln(w, "  rolled back")
		return err
	}

	return nil
}
