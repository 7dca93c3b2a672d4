package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/agent"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
)

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the motion relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, cfgFile, logLevel)
		},
	}

	// Sensor flags
	cmd.Flags().Bool("sensors", false, "enable the motion sensor and camera")
	cmd.Flags().String("gpio", "", "GPIO value file of the motion sensor")

	// Sync flags
	cmd.Flags().String("sync-folder", "", "local folder captures are written to and synced from")
	cmd.Flags().Bool("no-initial-cleanup", false, "keep files left from a previous run")

	// Hot-reload flag
	cmd.Flags().Bool("hot-reload", true, "reapply sync rules when the config file changes")

	return cmd
}

func runAgent(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log := SetupLogging(level, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan *config.Config, 1)
	a := agent.New(cfg, log, agent.WithReloads(reloads), agent.WithVersion(Version))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	hotReloadEnabled, _ := cmd.Flags().GetBool("hot-reload")
	if *cfgFile != "" && hotReloadEnabled {
		startConfigWatcher(ctx, cmd, cfgFile, reloads, log)
	}

	go handleSignals(ctx, cancel, sigChan, cmd, cfgFile, reloads, log)

	log.Infof("starting motion relay: version=%s, sensors=%t, folder=%s", Version, cfg.Sensor.Enabled, cfg.Sync.LocalFolder)

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("relay stopped: %w", err)
	}

	log.Info("motion relay stopped")
	return nil
}

func startConfigWatcher(ctx context.Context, cmd *cobra.Command, cfgFile *string, reloads chan<- *config.Config, log logger.ILogger) {
	watcher := config.NewWatcher(*cfgFile, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", *cfgFile)

	go func() {
		for {
			select {
			case newCfg := <-watcher.Updates():
				applyCLIOverrides(cmd, newCfg)
				deliver(ctx, reloads, newCfg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func handleSignals(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal, cmd *cobra.Command, cfgFile *string, reloads chan<- *config.Config, log logger.ILogger) {
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				log.Info("received SIGHUP, reloading config")
				newCfg, err := config.Load(*cfgFile)
				if err != nil {
					log.Errorf("failed to reload config: %v", err)
					continue
				}
				applyCLIOverrides(cmd, newCfg)
				deliver(ctx, reloads, newCfg)
			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("received shutdown signal: %v", sig)
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func deliver(ctx context.Context, reloads chan<- *config.Config, cfg *config.Config) {
	select {
	case reloads <- cfg:
	case <-ctx.Done():
	}
}

func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("sensors"); v {
		cfg.Sensor.Enabled = true
	}
	if path, _ := cmd.Flags().GetString("gpio"); path != "" {
		cfg.Sensor.GPIOValuePath = path
	}
	if folder, _ := cmd.Flags().GetString("sync-folder"); folder != "" {
		cfg.Sync.LocalFolder = folder
	}
	if v, _ := cmd.Flags().GetBool("no-initial-cleanup"); v {
		cfg.Sync.InitialCleanup = false
	}
}
