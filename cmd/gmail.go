// File: cmd/gmail.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autologin/internal/gmail"
	"github.com/xkilldash9x/autologin/internal/service"
)

func newGmailCmd(a *app) *cobra.Command {
	gmailCmd := &cobra.Command{
		Use:   "gmail",
		Short: "Read a Gmail mailbox through the Gmail API",
	}
	gmailCmd.AddCommand(
		newGmailAuthCmd(a),
		newGmailSearchCmd(a),
		newGmailReadCmd(a),
	)
	return gmailCmd
}

func (a *app) gmailClient(ctx context.Context, cmd *cobra.Command) (*gmail.Client, error) {
	return service.InitializeGmailClient(ctx, a.cfg.Gmail, a.logger, showURL(cmd))
}

func newGmailAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access and cache the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.gmailClient(cmd.Context(), cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gmail: authorized")
			return nil
		},
	}
}

func newGmailSearchCmd(a *app) *cobra.Command {
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
			client, err := a.gmailClient(ctx, cmd)
			if err != nil {
				return err
			}

			var start time.Time
			if since > 0 {
				start = time.Now().Add(-since)
			}
			ids, err := client.SearchEmails(ctx, from, start)
			if err != nil {
				return fmt.Errorf("gmail search failed: %w", err)
			}
			printIDs(cmd, ids)
			return nil
		},
	}
	searchCmd.Flags().StringVar(&from, "from", "", "only messages from this sender")
	searchCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only messages newer than this (0 for all)")
	return searchCmd
}

func newGmailReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Print the subject and snippet of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.gmailClient(ctx, cmd)
			if err != nil {
				return err
			}
			email, err := client.ReadEmail(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to read gmail message: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:      %s\n", email.ID)
			if !email.Date.IsZero() {
				fmt.Fprintf(out, "Date:    %s\n", email.Date.Format(time.RFC1123Z))
			}
			fmt.Fprintf(out, "Subject: %s\n", email.Subject)
			fmt.Fprintf(out, "\n%s\n", email.Snippet)
			return nil
		},
	}
}
