package main

import (
	"fmt"
	"log/slog"
	"os"

	"bundlesync/config"
	"bundlesync/grpcfactory"
	"bundlesync/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// app carries state resolved once by the root command for its subcommands.
type app struct {
	configPath string
	debug      bool
	logFormat  string

	cfg *config.Config
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "bundlesyncd",
		Short:         "Keep worker factory bundles in sync with their session",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default "+config.Path()+")")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", logging.FormatText, "Log format: text or json")
	cmd.AddCommand(runCmd(a), resolveCmd(a))
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if a.debug {
		level = logging.LevelDebug
	}
	if err := logging.ConfigureWriter(os.Stderr, level, a.logFormat); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", a.path(), err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) path() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.Path()
}

func (a *app) provider() *grpcfactory.Provider {
	return grpcfactory.NewProvider(grpcfactory.Targets{
		Default:              a.cfg.Default,
		Schemes:              a.cfg.Schemes,
		Isolation:            a.cfg.Isolation,
		BypassRedirectChecks: a.cfg.BypassRedirectChecks,
	})
}
