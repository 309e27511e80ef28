package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/twreminders/pkg/auth"
)

func (a *app) newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Tasks",
		Long: `Run the OAuth consent flow for the google remote and store the token.
Any stored token is discarded first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := auth.Files{Credentials: a.cfg.Google.Credentials, Token: a.cfg.Google.Token}
			if err := os.Remove(files.Token); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove old token: %w", err)
			}
			if _, err := auth.Authorize(cmd.Context(), files, auth.Scopes, cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token stored in", files.Token)
			return nil
		},
	}
}
