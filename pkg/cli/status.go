package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.All()
			if err != nil {
				return err
			}
			last, err := st.LastSync()
			if err != nil {
				return err
			}
			lastSync := "never"
			if !last.IsZero() {
				lastSync = last.Local().Format(time.RFC3339)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "remote:\t%s\n", a.cfg.Remote)
			fmt.Fprintf(w, "state:\t%s (%s)\n", a.cfg.StatePath(), a.cfg.State.Backend)
			fmt.Fprintf(w, "mappings:\t%d\n", len(all))
			fmt.Fprintf(w, "last sync:\t%s\n", lastSync)
			return w.Flush()
		},
	}
}
