// Package portalclient drives a device's captive setup portal from a
// computer joined to the device's setup network.
//
// The portal exposes a handful of plain GET routes:
//   - /info                 firmware version and build info
//   - /status               HTML page with the network name and connection status
//   - /?ssid=&password=     submit credentials (optional &notimeout)
//   - /promptforexitsetup   "true" once the device is connected
//   - /exitsetup            persist credentials and leave setup mode
//
// A typical provisioning run:
//
//	c := portalclient.NewClient("192.168.4.1", 80)
//	if err := c.SubmitCredentials(ctx, ssid, pass, false); err != nil {
//	    return err
//	}
//	if _, err := c.WaitForConnected(ctx, time.Second, nil); err != nil {
//	    return err
//	}
//	return c.ExitSetup(ctx)
//
// Read-only requests are retried with exponential backoff. Submitting
// credentials and exiting setup are not, since both change device state.
//
// # Error Handling
//
// Errors are *PortalError values. A request the portal closes without
// answering is ErrTypeDropped; ExitSetup reports it as ErrTypeNotConnected.
package portalclient
