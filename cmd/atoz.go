// File: cmd/atoz.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autologin/internal/service"
)

func newAtoZCmd(a *app) *cobra.Command {
	atozCmd := &cobra.Command{
		Use:   "atoz",
		Short: "Sign into the AtoZ employee portal",
	}

	var (
		noSaveCookies bool
		waitClose     bool
	)
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in, answering the e-mail verification step when it appears",
		Long: `Loads saved cookies and opens the AtoZ portal. When the session is no longer
valid the username, password and e-mail verification steps are performed.
The verification code comes from the source set in atoz.code_source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := a.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			opts := service.LoginOptions{
				SaveCookies: a.cfg.AtoZ.SaveCookies && !noSaveCookies,
				WaitClose:   waitClose,
			}
			result, err := a.runner(cmd, components).LoginAtoZ(ctx, opts)
			if err != nil {
				return fmt.Errorf("atoz login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "atoz: %s\n", result)
			return nil
		},
	}
	loginCmd.Flags().BoolVar(&noSaveCookies, "no-save-cookies", false, "do not write the session cookies after logging in")
	loginCmd.Flags().BoolVar(&waitClose, "wait-close", false, "keep the browser open until its window is closed")

	atozCmd.AddCommand(loginCmd)
	return atozCmd
}
