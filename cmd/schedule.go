// File: cmd/schedule.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/schedule"
	"github.com/xkilldash9x/autologin/internal/tui"
)

// stopTimeout bounds how long an interrupted scheduler may take to finish its login pass.
const stopTimeout = 30 * time.Second

func newScheduleCmd(a *app) *cobra.Command {
	var rulesFile string
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run logins repeatedly within the configured time windows",
	}
	scheduleCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "rules file (default from schedule.rules_file)")

	var now bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler without a UI until it finishes or is interrupted",
		Long: `Starts at the rules' time to start, or immediately with --now, and logs into
every service in schedule.services once per interval while a day or date rule
allows it. The run ends when the hours to run have elapsed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSchedule(cmd, a.rulesPath(rulesFile), now)
		},
	}
	runCmd.Flags().BoolVar(&now, "now", false, "start immediately instead of waiting for the time to start")

	uiCmd := &cobra.Command{
		Use:   "ui",
		Short: "Edit the rules and control the scheduler from a terminal panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScheduleUI(cmd, a.rulesPath(rulesFile))
		},
	}

	scheduleCmd.AddCommand(runCmd, uiCmd)
	return scheduleCmd
}

func (a *app) rulesPath(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Schedule.RulesFile
}

// loadRules reads the rules file. A missing file means no rules.
func loadRules(path string, logger *zap.Logger) (schedule.Settings, error) {
	settings, err := schedule.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Rules file not found, runs are allowed at any time.", zap.String("path", path))
		return schedule.Settings{}, nil
	}
	if err != nil {
		return schedule.Settings{}, err
	}
	return settings, nil
}

// scheduler wires a rules watcher, the components and a scheduler together.
// The returned func releases all of them.
func (a *app) scheduler(cmd *cobra.Command, path string) (*schedule.Scheduler, *schedule.Watcher, func(), error) {
	ctx := cmd.Context()
	settings, err := loadRules(path, a.logger)
	if err != nil {
		return nil, nil, nil, err
	}

	watcher := schedule.NewWatcher(path, settings, a.logger)
	if a.cfg.Schedule.WatchRules {
		if err := watcher.Start(ctx); err != nil {
			a.logger.Warn("Rules file will not be reloaded.", zap.Error(err))
		}
	}

	components, err := a.components(ctx)
	if err != nil {
		_ = watcher.Close()
		return nil, nil, nil, err
	}

	runner := a.runner(cmd, components)
	sched := schedule.New(runner.Job(a.cfg.Schedule.Services), watcher, a.cfg.Schedule.Interval, a.logger)
	release := func() {
		sched.Stop()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := sched.Wait(stopCtx); err != nil {
			a.logger.Warn("Scheduler did not stop in time.", zap.Error(err))
		}
		if err := watcher.Close(); err != nil {
			a.logger.Debug("Error closing rules watcher.", zap.Error(err))
		}
		components.Shutdown()
	}
	return sched, watcher, release, nil
}

func (a *app) runSchedule(cmd *cobra.Command, path string, now bool) error {
	ctx := cmd.Context()
	sched, _, release, err := a.scheduler(cmd, path)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()
	sched.OnRun = func(r schedule.RunReport) {
		if r.Err != nil {
			fmt.Fprintf(out, "%s login pass failed: %v\n", r.Finished.Format(time.DateTime), r.Err)
			return
		}
		fmt.Fprintf(out, "%s login pass ok\n", r.Finished.Format(time.DateTime))
	}

	if now {
		err = sched.RunNow()
	} else {
		err = sched.DelayedStart(time.Now())
	}
	if err != nil {
		return err
	}
	if at, ok := sched.NextWake(); ok {
		fmt.Fprintf(out, "Waiting until %s.\n", at.Format(time.DateTime))
	}

	err = sched.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.logger.Info("Interrupted, stopping the scheduler.")
		return ctxErr
	}
	return err
}

func (a *app) runScheduleUI(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	sched, watcher, release, err := a.scheduler(cmd, path)
	if err != nil {
		return err
	}
	defer release()

	updates := make(chan schedule.Settings, 4)
	watcher.Subscribe(updates)

	return tui.Run(ctx, tui.New(sched, watcher, path, updates))
}
