package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/twreminders/pkg/reconcile"
)

func (a *app) newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull the remote reminders into Taskwarrior",
		Long: `Fetch every reminder from the remote side and apply it to Taskwarrior:
new reminders become tasks, newer remote edits overwrite the task, and
tasks whose reminder was deleted are deleted. Only one sync runs at a time;
a second invocation exits quietly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			agent, err := a.newAgent(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}

			runner := reconcile.NewRunner(
				a.cfg.LockPath(),
				reconcile.NewFetcher(agent, a.cfg.PendingOnly),
				reconcile.NewReconciler(a.newTasks(a.cfg), st,
					reconcile.WithLogger(a.log),
					reconcile.WithDefaultList(a.cfg.DefaultList)),
				st,
				reconcile.WithRunnerLogger(a.log),
			)

			report, err := runner.Run(ctx)
			if errors.Is(err, reconcile.ErrAlreadyRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "sync already running, skipped")
				return nil
			}
			if err != nil {
				return err
			}
			// A failed fetch is logged by the runner and changes nothing;
			// the next run retries.
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}
}
