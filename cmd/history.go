// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/service"
	"github.com/xkilldash9x/autologin/internal/store"
)

var errHistoryDisabled = errors.New("run history is disabled: set database.url or AUTOLOGIN_DATABASE_URL")

// runHistory lists recorded login runs.
type runHistory interface {
	RecentRuns(ctx context.Context, service string, limit int) ([]store.Run, error)
}

type historyOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (runHistory, func(), error)

func openStoreHistory(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (runHistory, func(), error) {
	if !cfg.Enabled() {
		return nil, nil, errHistoryDisabled
	}
	st, closeDB, err := service.InitializeStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return st, closeDB, nil
}

var historyHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var historyCellStyle = lipgloss.NewStyle().Padding(0, 1)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		serviceName string
		limit       int
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent login runs from the run history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceName != "" && serviceName != config.ServiceAtoZ && serviceName != config.ServiceProton {
				return fmt.Errorf("%w: %q", service.ErrUnknownService, serviceName)
			}

			ctx := cmd.Context()
			history, closeDB, err := a.openHistory(ctx, a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := history.RecentRuns(ctx, serviceName, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No runs recorded.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		},
	}
	historyCmd.Flags().StringVar(&serviceName, "service", "", "only runs of this service (atoz or proton)")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultLimit, "number of runs to show")
	return historyCmd
}

func renderRuns(runs []store.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "SERVICE", "OUTCOME", "DURATION", "ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle
			}
			return historyCellStyle
		})
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format(time.DateTime),
			r.Service,
			string(r.Outcome),
			r.Duration().Round(time.Millisecond).String(),
			r.Error,
		)
	}
	return t.String()
}
