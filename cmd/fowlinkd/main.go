// Fowlinkd keeps a headless Linux device connected to a Wi-Fi network.
//
// On a device with stored credentials it joins the network and fetches a
// fixed endpoint on an interval. Without credentials, or after a full
// reset, it opens a setup access point with a captive portal where the
// user enters the network name and passphrase.
//
// Usage:
//
//	fowlinkd run [flags]
//
// See 'fowlinkd --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fowlink/fowlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fowlinkd",
	Short: "Fowlink connection daemon",
	Long: `A daemon that keeps the device on its configured Wi-Fi network.

Without stored credentials the daemon starts a setup access point and a
captive portal. Use 'fowlink-cfg provision' from a laptop or phone joined
to that access point to hand over the network credentials.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fowlinkd %s\n", version.Full())
	},
}
