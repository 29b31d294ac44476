// Package connmgr keeps a headless device connected to a WiFi network.
//
// On boot the Manager either joins the stored network (station mode) or, when
// the settings store asks for setup, brings up an open access point named
// "<product>-<deviceid>" with a wildcard DNS redirector and a captive portal.
// A phone joining that network is sent to the portal, submits the network
// credentials and, once the device reports "Connected", confirms the exit.
// Only then are the credentials persisted and the portal torn down.
//
// # Threading
//
// The Manager is not safe for concurrent use. The owner calls Update in a
// loop; every portal handler, DNS answer and connection-attempt step runs
// inside that call. The portal and redirector accept traffic on their own
// goroutines but only queue it.
//
//	m, err := connmgr.New(ctx, deps, opts)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	for ctx.Err() == nil {
//	    m.Update(ctx)
//	    if m.Ready() {
//	        body := m.Get(ctx)
//	        ...
//	    }
//	}
//
// # Connection State
//
// The outcome of the last attempt is latched in a Result. Ready, the status
// page and Get all share one predicate: an SSID is set, the radio reports
// connected and the Result is clean.
package connmgr
