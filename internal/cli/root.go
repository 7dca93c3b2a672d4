package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "motion-relay",
		Short: "Motion triggered capture relay for edge devices",
		Long: `motion-relay polls a motion sensor, captures images and clips when motion
is detected and relays notifications and captures to the configured
destinations (log, mail, cloud storage, chat bot).

Captured files are deleted locally once at least one destination accepted
them. Files every destination rejected stay for the next sync pass.

Hot-reload: sync filter rules and the settle interval are reapplied when the
config file changes or on SIGHUP.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides loglevel")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewVersionCmd(),
	)

	return rootCmd.Execute()
}
