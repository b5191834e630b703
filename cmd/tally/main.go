package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions holds global flags and the loaded configuration.
type rootOptions struct {
	ConfigPath string
	viper      *viper.Viper
	cfg        Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tally",
		Short:         "Demand-driven bookkeeping reports",
		Long:          "tally generates financial reports from a double-entry ledger by resolving only the steps the requested reports depend on.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.viper = newViper(opts.ConfigPath)
			for key, flag := range map[string]string{"db_path": "db", "log_level": "log-level"} {
				if err := opts.viper.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
					return err
				}
			}
			cfg, err := loadConfig(opts.viper)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "settings file (default ~/.tally/settings.{json,yaml})")
	cmd.PersistentFlags().String("db", "", "ledger database path")
	cmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newReportCommand(opts),
		newPlanCommand(opts),
		newQueryCommand(opts),
		newRunsCommand(opts),
		newStepsCommand(opts),
		newMCPCommand(opts),
		newServeCommand(opts),
		newMigrateCommand(opts),
		newImportCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// open wires the app for a command. Logs go to stderr.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	return newApp(cmd.Context(), o.cfg, cmd.ErrOrStderr())
}
