package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fowlink/fowlink/internal/discovery"
	"github.com/fowlink/fowlink/internal/portalclient"
	"github.com/fowlink/fowlink/internal/ui"
)

// DefaultPortalAddress is the access point address devices hand out.
const DefaultPortalAddress = "192.168.4.1"

// Command flags
var (
	portalURL    string
	deviceIP     string
	devicePort   int
	product      string
	scanTimeout  time.Duration
	watch        bool
	pollInterval time.Duration
	ssid         string
	passphrase   string
	noTimeout    bool
	waitTimeout  time.Duration
	stayInSetup  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&portalURL, "portal", "", "Portal base URL, e.g. http://192.168.4.1 (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&deviceIP, "device", "", "Device IP address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 80, "Portal HTTP port")
	rootCmd.PersistentFlags().StringVar(&product, "product", "fowlink", "Product name prefix of the setup network (empty = any)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(provisionCmd)
}

// discoverCmd lists devices advertising a setup portal
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover devices in setup mode",
	Long: `Browse mDNS for devices advertising a setup portal.

Devices advertise the portal while they are in setup mode, so discovery
only works from a machine joined to the device's access point.`,
	Example: `  # Browse for 5 seconds (default)
  fowlink-cfg discover

  # Any product, longer browse
  fowlink-cfg discover --product "" --timeout 15s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second, "How long to browse")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Browsing for devices in setup mode (timeout: %s)...\n\n", scanTimeout)

	devices, err := discovery.DiscoverDevices(cmd.Context(), product, scanTimeout)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		ui.PrintWarning("No devices found",
			ui.Param{Key: "Hint", Value: "join the device's setup network first"},
			ui.Param{Key: "Fallback", Value: "--portal http://" + DefaultPortalAddress},
		)
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Instance)
		fmt.Printf("   ID:       %s\n", d.ID)
		fmt.Printf("   Portal:   %s\n", d.BaseURL())
		if v := d.GetMetadata("version"); v != "" {
			fmt.Printf("   Version:  %s\n", v)
		}
		fmt.Println()
	}

	fmt.Println("Use 'fowlink-cfg provision --device <ip>' to hand over Wi-Fi credentials")
	return nil
}

// statusCmd shows the portal's connection status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device's connection status",
	Long: `Read the device's firmware version and the status page of its setup
portal: the submitted network name and the current connection state.

With --watch the status is polled until you quit.`,
	Example: `  # One-off read from the default access point address
  fowlink-cfg status --portal http://192.168.4.1

  # Watch the status while the device connects
  fowlink-cfg status --watch`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling the status")
	statusCmd.Flags().DurationVar(&pollInterval, "interval", portalclient.DefaultPollInterval, "Polling interval for --watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	base, err := resolvePortal(ctx)
	if err != nil {
		return err
	}
	client := portalclient.NewClientWithURL(base)

	if watch {
		_, err := ui.RunWatch(ctx, snapshotFunc(client), pollInterval, false)
		return err
	}

	info, err := client.Info(ctx)
	if err != nil {
		return portalFailure("Status", err)
	}
	status, err := client.Status(ctx)
	if err != nil {
		return portalFailure("Status", err)
	}

	network := status.NetworkName
	if network == "" {
		network = "(none submitted)"
	}
	details := []ui.Param{
		{Key: "Portal", Value: base},
		{Key: "Firmware", Value: info.Version},
		{Key: "Build", Value: info.BuildInfo},
		{Key: "Network", Value: network},
		{Key: "Connection", Value: status.Connection},
	}
	if status.Failed() {
		ui.PrintWarning("Device not connected", details...)
		return nil
	}
	ui.PrintSuccess("Device status", details...)
	return nil
}

// snapshotFunc adapts the portal status read to the watch view.
func snapshotFunc(client *portalclient.Client) ui.StatusFunc {
	return func(ctx context.Context) (*ui.Snapshot, error) {
		status, err := client.Status(ctx)
		if err != nil {
			return nil, errors.New(portalclient.GetShortErrorMessage(err))
		}
		return &ui.Snapshot{
			Network:    status.NetworkName,
			Connection: status.Connection,
			Connected:  status.Connected(),
		}, nil
	}
}

// provisionCmd hands credentials to the device
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Hand Wi-Fi credentials to a device in setup mode",
	Long: `Submit Wi-Fi credentials to the device's setup portal and guide it
out of setup mode.

This command will:
  1. Reach the setup portal
  2. Submit the network name and password
  3. Wait for the device to join the network
  4. Tell the device to store the credentials and leave setup mode

If the password is not given on the command line it is read from the
terminal without echo.`,
	Example: `  # Provision the single device found by discovery
  fowlink-cfg provision --ssid home

  # Provision a device at a known address, waiting up to 2 minutes
  fowlink-cfg provision --device 192.168.4.1 --ssid home --wait 2m

  # Keep the device in setup mode after it connects
  fowlink-cfg provision --ssid home --stay-in-setup`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&ssid, "ssid", "", "Network name (required)")
	provisionCmd.Flags().StringVar(&passphrase, "password", "", "Network password (prompted when omitted)")
	provisionCmd.Flags().BoolVar(&noTimeout, "no-timeout", false, "Let the device keep trying without its connect timeout")
	provisionCmd.Flags().DurationVar(&waitTimeout, "wait", 60*time.Second, "How long to wait for the device to connect")
	provisionCmd.Flags().BoolVar(&stayInSetup, "stay-in-setup", false, "Do not exit setup mode after connecting")
	_ = provisionCmd.MarkFlagRequired("ssid")
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !cmd.Flags().Changed("password") {
		p, err := readPassword(fmt.Sprintf("Password for %q (empty for an open network): ", ssid))
		if err != nil {
			return err
		}
		passphrase = p
	}
	if err := portalclient.ValidateCredentials(ssid, passphrase); err != nil {
		return err
	}

	base, err := resolvePortal(ctx)
	if err != nil {
		return err
	}
	client := portalclient.NewClientWithURL(base)

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Provision",
		Command: "fowlink-cfg provision",
		Params: []ui.Param{
			{Key: "Portal", Value: base},
			{Key: "Network", Value: ssid},
			{Key: "Wait", Value: waitTimeout.String()},
		},
		StepNames: []string{
			"Reach setup portal",
			"Submit credentials",
			"Wait for connection",
			"Exit setup mode",
		},
		Troubleshooting: func(err error) []string {
			return ui.SplitHint(portalclient.GetTroubleshootingHint(err))
		},
	})

	return runner.Run(func(onStep ui.StepCallback) ([]ui.Param, error) {
		return provision(ctx, client, onStep)
	})
}

// provision runs the four provisioning steps against client.
func provision(ctx context.Context, client *portalclient.Client, onStep ui.StepCallback) ([]ui.Param, error) {
	onStep(1, "", ui.StepRunning, "")
	info, err := client.Info(ctx)
	if err != nil {
		onStep(1, "", ui.StepFailed, portalclient.GetShortErrorMessage(err))
		return nil, err
	}
	onStep(1, "", ui.StepComplete, "firmware "+info.Version)

	onStep(2, "", ui.StepRunning, "")
	if err := client.SubmitCredentials(ctx, ssid, passphrase, noTimeout); err != nil {
		onStep(2, "", ui.StepFailed, portalclient.GetShortErrorMessage(err))
		return nil, err
	}
	onStep(2, "", ui.StepComplete, "")

	onStep(3, "Wait for "+ssid, ui.StepRunning, "")
	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	reads := 0
	status, err := client.WaitForConnected(waitCtx, portalclient.DefaultPollInterval, func(s *portalclient.Status) {
		reads++
		onStep(3, "", ui.StepRunning, s.Connection)
	})
	if err != nil {
		onStep(3, "", ui.StepFailed, portalclient.GetShortErrorMessage(err))
		return nil, err
	}
	onStep(3, "", ui.StepComplete, fmt.Sprintf("%d reads", reads))

	details := []ui.Param{
		{Key: "Network", Value: status.NetworkName},
		{Key: "Connection", Value: status.Connection},
		{Key: "Firmware", Value: info.Version},
	}

	if stayInSetup {
		onStep(4, "", ui.StepSkipped, "--stay-in-setup")
		return details, nil
	}

	onStep(4, "", ui.StepRunning, "")
	ready, err := client.ReadyToExit(ctx)
	if err == nil && !ready {
		err = portalclient.NewNotConnectedError("device reports it is not ready to leave setup")
	}
	if err == nil {
		err = client.ExitSetup(ctx)
	}
	if err != nil {
		onStep(4, "", ui.StepFailed, portalclient.GetShortErrorMessage(err))
		return nil, err
	}
	onStep(4, "", ui.StepComplete, "credentials stored")

	return details, nil
}

// resolvePortal returns the portal base URL from the flags, or from
// discovery when neither --portal nor --device is set.
func resolvePortal(ctx context.Context) (string, error) {
	if portalURL != "" {
		return portalURL, nil
	}
	if deviceIP != "" {
		return portalclient.NewClient(deviceIP, devicePort).BaseURL, nil
	}

	fmt.Println("No portal specified, browsing for devices in setup mode...")
	devices, err := discovery.DiscoverDevices(ctx, product, 3*time.Second)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	switch len(devices) {
	case 0:
		base := portalclient.NewClient(DefaultPortalAddress, devicePort).BaseURL
		fmt.Printf("No devices found, trying %s\n\n", base)
		return base, nil
	case 1:
		fmt.Printf("Found device: %s\n\n", devices[0])
		return devices[0].BaseURL(), nil
	default:
		fmt.Printf("Found %d devices:\n", len(devices))
		for i, d := range devices {
			fmt.Printf("%d. %s\n", i+1, d)
		}
		return "", fmt.Errorf("multiple devices found. Use --device to pick one")
	}
}

// portalFailure prints a failure box for err and returns it.
func portalFailure(title string, err error) error {
	ui.PrintFailure(title+" failed", err, ui.SplitHint(portalclient.GetTroubleshootingHint(err)))
	return err
}

// readPassword reads a line from the terminal without echo, or a plain
// line when stdin is not a terminal.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", nil
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Print(prompt)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}
