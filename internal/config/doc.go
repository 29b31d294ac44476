// Package config provides the fowlink daemon configuration.
//
// The configuration is a YAML file holding everything the daemon needs that
// is not a secret: product name, the fetched endpoint, radio driver selection,
// portal ports and connection timing. Network credentials are kept by the
// settings store instead.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/fowlink/config.yaml or $HOME/.config/fowlink/config.yaml
//   - macOS: $HOME/.config/fowlink/config.yaml
//   - Windows: %LOCALAPPDATA%\fowlink\config.yaml
//
// # Precedence
//
// Values are resolved in this order, later sources winning:
//  1. Default()
//  2. the YAML file
//  3. FOWLINK_* environment variables (e.g. FOWLINK_ENDPOINT,
//     FOWLINK_PORTAL_PORT, FOWLINK_TIMING_CONNECT_TIMEOUT=20s)
//  4. command-line flags, applied by the caller
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
