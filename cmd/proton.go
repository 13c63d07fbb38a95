// File: cmd/proton.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autologin/internal/proton"
	"github.com/xkilldash9x/autologin/internal/service"
)

func newProtonCmd(a *app) *cobra.Command {
	protonCmd := &cobra.Command{
		Use:   "proton",
		Short: "Use a ProtonMail web session",
	}
	protonCmd.AddCommand(
		newProtonLoginCmd(a),
		newProtonSearchCmd(a),
		newProtonReadCmd(a),
	)
	return protonCmd
}

func newProtonLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log into ProtonMail and save the session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := a.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := a.runner(cmd, components).LoginProton(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "proton: logged_in")
			return nil
		},
	}
}

func newProtonSearchCmd(a *app) *cobra.Command {
	var (
		from  string
		since time.Duration
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "List the IDs of matching messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := a.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			client, closeTab, err := service.InitializeProtonClient(ctx, components.Browser, a.cfg.Proton, a.logger)
			if err != nil {
				return err
			}
			defer closeTab()

			q := proton.Query{From: from}
			if since > 0 {
				q.Begin = time.Now().Add(-since)
			}
			ids, err := client.Search(ctx, q)
			if err != nil {
				return fmt.Errorf("proton search failed: %w", err)
			}
			printIDs(cmd, ids)
			return nil
		},
	}
	searchCmd.Flags().StringVar(&from, "from", "", "only messages from this sender")
	searchCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only messages newer than this (0 for all)")
	return searchCmd
}

func newProtonReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Print the text of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := a.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			client, closeTab, err := service.InitializeProtonClient(ctx, components.Browser, a.cfg.Proton, a.logger)
			if err != nil {
				return err
			}
			defer closeTab()

			text, err := client.MessageText(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to read proton message: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func printIDs(cmd *cobra.Command, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No messages found.")
		return
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
}
