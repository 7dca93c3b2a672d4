package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/destination"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			// Transports report missing credentials at construction.
			log := logger.NewConsoleLogger(io.Discard)
			dests := destination.NewRegistry(log).Load(cfg.Destinations)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid:\n")
			fmt.Fprintf(out, "  Sensors:      %t\n", cfg.Sensor.Enabled)
			fmt.Fprintf(out, "  Sync folder:  %s\n", cfg.Sync.LocalFolder)
			fmt.Fprintf(out, "  Destinations: %d registered\n", len(dests))
			for _, d := range dests {
				fmt.Fprintf(out, "    - %s %+v\n", d.Name(), d.Capabilities())
			}
			return nil
		},
	}
}
