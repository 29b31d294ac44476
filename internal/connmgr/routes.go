package connmgr

import (
	"fmt"
	"html"
	"net/http"

	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/assets"
	"github.com/fowlink/fowlink/internal/logging"
	"github.com/fowlink/fowlink/internal/portal"
	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/settings"
)

const (
	contentTypeText = "text/plain"
	contentTypeHTML = "text/html"

	notFoundBody = "404 Not Found"
	exitingBody  = "Exiting setup..."
)

const statusPage = "<html><body style='color: white; font-size: 14px; font-family: monospace;'>" +
	"Network Name: %s<br>Password: %s<br>Connection Status: %s</body></html>"

// routes are the captive portal handlers. They run inside
// Portal.HandleClient, on the manager goroutine.
type routes struct {
	m *Manager
}

func (rt *routes) register(s PortalServer) {
	s.On("/", rt.root)
	s.On("/status", rt.status)
	s.On("/promptforexitsetup", rt.promptForExit)
	s.On("/exitsetup", rt.exitSetup)
	s.On("/info", rt.info)
	s.On("/events", rt.events)
	s.OnNotFound(rt.fallback)
}

func (rt *routes) root(req portal.Request) {
	rt.serveFile(req, assets.IndexFile)

	if !req.HasArg("ssid") || !req.HasArg("password") {
		return
	}

	m := rt.m
	m.ssid = settings.Truncate(req.Arg("ssid"))
	m.passphrase = settings.Truncate(req.Arg("password"))
	logging.Info("Credentials received from portal",
		zap.String("ssid", m.ssid),
		zap.Bool("no_timeout", req.HasArg("notimeout")),
	)
	m.begin(req.HasArg("notimeout"))
}

func (rt *routes) status(req portal.Request) {
	m := rt.m
	body := fmt.Sprintf(statusPage,
		html.EscapeString(m.ssid),
		html.EscapeString(m.passphrase),
		html.EscapeString(m.statusLine()),
	)
	req.Send(http.StatusOK, contentTypeHTML, body)
}

func (rt *routes) promptForExit(req portal.Request) {
	if rt.m.connected() {
		req.Send(http.StatusOK, contentTypeText, "true")
		return
	}
	req.Send(http.StatusInternalServerError, contentTypeText, "false")
}

func (rt *routes) exitSetup(req portal.Request) {
	if !rt.m.connected() {
		logging.Debug("Exit requested before connecting, ignoring")
		return
	}
	req.Send(http.StatusOK, contentTypeText, exitingBody)
	req.Flush()
	rt.m.exitSetup()
}

func (rt *routes) info(req portal.Request) {
	req.Send(http.StatusOK, contentTypeText, rt.m.opts.Version+"\n"+rt.m.opts.BuildInfo)
}

func (rt *routes) events(req portal.Request) {
	conn, err := req.Upgrade()
	if err != nil {
		logging.Debug("Status subscription refused", zap.Error(err))
		return
	}
	m := rt.m
	m.events.add(conn, statusEvent{Status: m.statusLine(), Connected: m.connected()})
}

func (rt *routes) fallback(req portal.Request) {
	rt.serveFile(req, assets.ResolvePath(req.URI()))
}

// serveFile streams name from the asset store, or answers 404.
func (rt *routes) serveFile(req portal.Request, name string) {
	files := rt.m.deps.Files
	if !files.Exists(name) {
		req.Send(http.StatusNotFound, contentTypeText, notFoundBody)
		return
	}

	f, err := files.Open(name)
	if err != nil {
		logging.Warn("Failed to open asset", zap.String("name", name), zap.Error(err))
		req.Send(http.StatusNotFound, contentTypeText, notFoundBody)
		return
	}
	defer f.Close()

	if err := req.StreamFile(f, assets.ContentType(name)); err != nil {
		logging.Debug("Failed to stream asset", zap.String("name", name), zap.Error(err))
	}
}

// statusLine describes the connection for the status page.
func (m *Manager) statusLine() string {
	switch m.deps.Radio.Status() {
	case radio.StatusConnected:
		if m.connected() {
			return "Connected"
		}
		return "Disconnected"
	case radio.StatusConnectFailed:
		return "Connection attempt failed"
	case radio.StatusConnectionLost:
		return "Connection lost"
	case radio.StatusDisconnected:
		return "Disconnected"
	default:
		return "Other"
	}
}
