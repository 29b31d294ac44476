package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device represents a device in setup mode found on the network
type Device struct {
	// ID is the device identifier from the instance name (e.g., "0D0E0F")
	ID string

	// Product is the product prefix of the instance name (e.g., "fowlink")
	Product string

	// Instance is the full mDNS instance name (e.g., "fowlink-0D0E0F")
	Instance string

	// Hostname is the mDNS hostname of the advertising host
	Hostname string

	// IP is the IPv4 address (or IPv6 when no IPv4 was advertised)
	IP string

	// Port is the portal HTTP port (typically 80)
	Port int

	// Metadata contains the mDNS TXT record data
	// Common fields: "id=0D0E0F", "product=fowlink", "path=/", "version=v1.2.0"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s device %s (%s) at %s", d.Product, d.ID, d.Instance, net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// BaseURL returns the HTTP base URL of the device portal
func (d *Device) BaseURL() string {
	return "http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
