// Package redirector implements the captive-portal DNS server.
//
// Every A query whose name matches the pattern is answered with the device
// address, so phones and laptops joining the setup network open the portal
// page on their own. Queries are answered cooperatively: the owner calls
// ProcessNextRequest from its loop, which answers at most one query.
package redirector
