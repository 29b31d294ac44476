// Package settings persists the device's network credentials and boot state.
//
// The store keeps four things in a small YAML file (mode 0600):
//   - the network SSID and passphrase, each at most MaxFieldLength bytes
//   - whether the next boot should enter setup mode
//   - a boot counter used to detect a "full reset" request
//   - a generated device id for radios without a hardware serial
//
// # Full Reset
//
// Devices without a reset button are reset by power-cycling them quickly:
// every Open increments the boot counter, and TouchResetTimer clears it once
// the device has been up for the reset window. Reaching DefaultResetBootCount
// short boots in a row wipes the credentials and forces setup mode. Callers
// must keep calling TouchResetTimer during long blocking work, otherwise a
// slow but healthy boot is counted as a short one.
package settings
