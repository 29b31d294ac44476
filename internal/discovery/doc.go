// Package discovery advertises and finds setup-mode devices over mDNS.
//
// A device in setup mode registers an "_http._tcp" service whose instance
// name is "<product>-<id>", where id is six upper-case hex digits, with TXT
// records carrying the id, product, portal path and firmware version. The
// operator tool browses for these instances to find the portal address when
// the captive-portal DNS redirect is not in play (e.g. wired setups).
//
// # Usage Example
//
//	// Device side
//	adv := discovery.NewAdvertiser()
//	err := adv.Advertise("fowlink-0D0E0F", 80, discovery.TXT("0D0E0F", "fowlink", version.Version))
//	defer adv.Shutdown()
//
//	// Operator side
//	devices, err := discovery.DiscoverDevices(ctx, "fowlink", 5*time.Second)
//	for _, device := range devices {
//	    fmt.Println(device.String())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
