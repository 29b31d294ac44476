package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fowlink/fowlink/internal/assets"
	"github.com/fowlink/fowlink/internal/config"
	"github.com/fowlink/fowlink/internal/connmgr"
	"github.com/fowlink/fowlink/internal/discovery"
	"github.com/fowlink/fowlink/internal/fetch"
	"github.com/fowlink/fowlink/internal/logging"
	"github.com/fowlink/fowlink/internal/portal"
	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/redirector"
	"github.com/fowlink/fowlink/internal/settings"
	"github.com/fowlink/fowlink/internal/ui"
	"github.com/fowlink/fowlink/internal/version"
)

// Command flags
var (
	configPath string
	endpoint   string
	driver     string
	logLevel   string
	logFile    string
	assumeYes  bool
	writeCfg   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/fowlink/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if driver != "" {
		cfg.Radio.Driver = driver
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runCmd implements the 'run' command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connection daemon",
	Long: `Join the stored network, or open the setup portal if none is stored.

In station mode the daemon fetches the configured endpoint every
fetch.interval and, when fetch.output is set, writes the latest response
body to that file. A lost connection is retried every
timing.reconnect_interval.

In setup mode the daemon runs an access point named <product>-<device id>,
answers every DNS query with its own address and serves the setup page
until credentials are submitted and the user exits setup.`,
	Example: `  # Run with the config file defaults
  fowlinkd run

  # Drive NetworkManager and log at debug level
  fowlinkd run --driver nmcli --log-level debug

  # Override the fetched endpoint
  fowlinkd run --endpoint http://ferries.local:8000/progress`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint fetched in station mode (overrides config)")
	runCmd.Flags().StringVar(&driver, "driver", "", "Radio driver: simulated or nmcli (overrides config)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	logging.Info("Starting fowlinkd",
		zap.String("version", version.Full()),
		zap.String("driver", cfg.Radio.Driver),
		zap.String("endpoint", cfg.Endpoint),
	)

	store, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}

	rd, err := newRadio(cfg.Radio)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := connmgr.New(ctx, newDeps(cfg, store, rd), connmgr.Options{
		ProductName:        cfg.ProductName,
		Endpoint:           cfg.Endpoint,
		ConnectTimeout:     cfg.Timing.ConnectTimeout,
		ReconnectInterval:  cfg.Timing.ReconnectInterval,
		ResetTouchInterval: cfg.Timing.ResetTouchInterval,
		DNSPort:            cfg.Portal.DNSPort,
	})
	if err != nil {
		return fmt.Errorf("failed to start connection manager: %w", err)
	}
	defer mgr.Close()

	logging.Info("Connection manager started",
		zap.Stringer("mode", mgr.Mode()),
		zap.String("device_id", mgr.DeviceID()),
		zap.Stringer("result", mgr.LastResult()),
	)

	loop := &daemonLoop{
		mgr:      mgr,
		fs:       afero.NewOsFs(),
		output:   cfg.Fetch.Output,
		interval: cfg.Fetch.Interval,
	}
	return loop.run(ctx, cfg.Timing.TickInterval)
}

// newRadio builds the configured radio driver.
func newRadio(cfg config.RadioConfig) (radio.Radio, error) {
	switch cfg.Driver {
	case config.DriverNMCLI:
		nm := radio.NewNMCLI(radio.NMCLIConfig{
			Interface:   cfg.Interface,
			APInterface: cfg.APInterfaceName(),
		})
		if err := nm.CheckAvailable(); err != nil {
			return nil, fmt.Errorf("nmcli driver unavailable: %w", err)
		}
		return nm, nil
	case config.DriverSimulated, "":
		return radio.NewSimulated(radio.SimulatedConfig{
			Networks: cfg.SimulatedNetworks,
		}), nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q", cfg.Driver)
	}
}

// newDeps wires the manager's collaborators from the configuration.
func newDeps(cfg *config.Config, store *settings.Store, rd radio.Radio) connmgr.Deps {
	files := assets.NewEmbeddedStore()
	if cfg.AssetsDir != "" {
		files = assets.NewDirStore(cfg.AssetsDir)
	}

	return connmgr.Deps{
		Settings:   store,
		Radio:      rd,
		Fetch:      fetch.New(fetch.Options{Timeout: cfg.Fetch.Timeout}),
		Portal:     portal.New(portal.Config{Host: cfg.Portal.Host, Port: cfg.Portal.Port}),
		Redirector: redirector.New(redirector.Options{Host: cfg.Portal.Host}),
		Files:      files,
		Advertiser: discovery.NewAdvertiser(),
	}
}

// manager is the part of connmgr.Manager the daemon loop drives.
type manager interface {
	Update(ctx context.Context)
	Get(ctx context.Context) string
	Mode() connmgr.Mode
	Ready() bool
}

// daemonLoop ticks the manager and runs the periodic fetch.
type daemonLoop struct {
	mgr      manager
	fs       afero.Fs
	output   string
	interval time.Duration

	lastFetch time.Time
	fetches   int
}

func (l *daemonLoop) run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Shutting down", zap.Int("fetches", l.fetches))
			return nil
		case now := <-ticker.C:
			l.step(ctx, now)
		}
	}
}

// step runs one loop iteration at time now.
func (l *daemonLoop) step(ctx context.Context, now time.Time) {
	l.mgr.Update(ctx)

	if l.mgr.Mode() != connmgr.ModeStation || !l.mgr.Ready() {
		return
	}
	if !l.lastFetch.IsZero() && now.Sub(l.lastFetch) < l.interval {
		return
	}
	l.lastFetch = now

	body := l.mgr.Get(ctx)
	if body == "" {
		logging.Debug("Fetch returned no data")
		return
	}
	l.fetches++

	if l.output == "" {
		return
	}
	if err := writeOutput(l.fs, l.output, body); err != nil {
		logging.Error("Failed to write fetch output", zap.String("path", l.output), zap.Error(err))
	}
}

// writeOutput replaces path with body via a temporary file.
func writeOutput(fs afero.Fs, path, body string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, []byte(body), 0644); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return err
	}
	return nil
}

// resetCmd implements the 'reset' command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase stored credentials and boot into setup mode",
	Long: `Erase the stored network credentials so the next 'fowlinkd run'
opens the setup portal.

Stop the daemon first. A running daemon keeps its current connection until
it restarts.`,
	Example: `  # Reset after confirmation
  fowlinkd reset

  # Reset without prompting (scripts)
  fowlinkd reset --yes`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	_ = logging.InitializeFromEnv()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Not a boot: must not count towards the power-cycle reset
	store, err := settings.Open(cfg.SettingsPath, settings.WithoutBoot())
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}

	if !assumeYes {
		warnings := []string{
			fmt.Sprintf("Network %q will be forgotten", store.Get(settings.FieldSSID)),
			"The device opens its setup access point on next start",
		}
		if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Reset network settings", warnings, "RESET") {
			return nil
		}
	}

	if err := store.EnterSetupMode(); err != nil {
		return fmt.Errorf("failed to reset settings: %w", err)
	}

	ui.PrintSuccess("Settings reset",
		ui.Param{Key: "Settings", Value: store.Path()},
		ui.Param{Key: "Next boot", Value: "setup mode"},
	)
	return nil
}

// configCmd implements the 'config' command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and FOWLINK_*
environment variables are applied. With --write the result is saved back
to the config file, which is a convenient way to create one.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&writeCfg, "write", false, "Save the effective configuration to the config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if writeCfg {
		path := configPath
		if path == "" {
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
