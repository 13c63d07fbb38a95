// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/observability"
	"github.com/xkilldash9x/autologin/internal/service"
)

// app carries the state shared by all subcommands of one root command.
type app struct {
	cfgFile string
	envFile string

	cfg    *config.Config
	logger *zap.Logger

	factory     service.ComponentFactory
	openHistory historyOpener
}

// NewRootCommand builds a fresh command tree. Every call returns independent flags and state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{
		factory:     service.NewComponentFactory(),
		openHistory: openStoreHistory,
	})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autologin",
		Short: "Autologin keeps browser sessions for work portals signed in.",
		// Version is set at build time. See cmd/version.go.
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.initialize,
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.config/autologin/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "file of KEY=value credentials loaded into the environment")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newAtoZCmd(a),
		newProtonCmd(a),
		newGmailCmd(a),
		newScheduleCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// initialize loads the env file, the configuration and the logger.
func (a *app) initialize(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		// Initialize a basic logger so the failure is still reported.
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "autologin"})
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	a.logger = observability.GetLogger()
	a.logger.Debug("Starting autologin", zap.String("version", Version), zap.String("command", cmd.CommandPath()))
	return nil
}

// components creates the browser and the optional run history store.
func (a *app) components(ctx context.Context) (*service.Components, error) {
	components, err := a.factory.Create(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return components, nil
}

// runner builds a login runner whose prompt and consent URL use the command's streams.
func (a *app) runner(cmd *cobra.Command, components *service.Components) *service.Runner {
	r := service.NewRunner(a.cfg, components.Browser, components.Recorder(), a.logger)
	r.In = cmd.InOrStdin()
	r.Out = cmd.OutOrStdout()
	r.ShowURL = showURL(cmd)
	return r
}

func showURL(cmd *cobra.Command) func(string) {
	return func(u string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Open this link in your browser to authorize Gmail access:\n%s\n", u)
	}
}

// Execute runs the command tree with ctx, logging a failure before returning it.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Info("Command canceled.")
		return err
	}
	observability.GetLogger().Error("Command execution failed", zap.Error(err))
	return err
}
