// Fowlink-cfg provisions fowlink devices through their setup portal.
//
// A device without network credentials opens an access point named
// <product>-<id>. Join that network, then use this tool to discover the
// device, hand over the Wi-Fi credentials and watch it connect.
//
// Usage:
//
//	fowlink-cfg [command] [flags]
//
// See 'fowlink-cfg --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fowlink/fowlink/internal/logging"
	"github.com/fowlink/fowlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fowlink-cfg",
	Short: "Fowlink Device Provisioning Utility",
	Long: `A standalone utility for provisioning fowlink devices.

Provides device discovery over mDNS, portal status reads and a guided
provisioning flow that submits Wi-Fi credentials, waits for the device to
join the network and takes it out of setup mode.

Set FOWLINK_LOG_LEVEL=debug to see request logs.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Silent unless FOWLINK_LOG_LEVEL is set
		_ = logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fowlink-cfg %s\n", version.Full())
	},
}
