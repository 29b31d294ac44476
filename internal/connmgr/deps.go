package connmgr

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/afero"

	"github.com/fowlink/fowlink/internal/portal"
	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/settings"
	"github.com/fowlink/fowlink/internal/version"
)

// Settings is the persistent store for credentials and the setup flag.
type Settings interface {
	Get(f settings.Field) string
	Set(f settings.Field, value string) error
	IsSetupMode() bool
	ExitSetupMode() error
	TouchResetTimer()
	DeviceID() string
}

// PortalServer serves the setup routes one request at a time.
type PortalServer interface {
	On(path string, handler portal.Handler)
	OnNotFound(handler portal.Handler)
	Start() error
	HandleClient() bool
	Stop(ctx context.Context) error
	Addr() net.Addr
}

// Redirector answers DNS queries with the access point address.
type Redirector interface {
	SetErrorReplyCode(rcode int)
	Start(port int, pattern string, answer net.IP) error
	ProcessNextRequest() bool
	Stop() error
}

// FetchClient performs the application's outbound GET.
type FetchClient interface {
	Open(endpoint string) bool
	Close()
	Get(ctx context.Context) (int, error)
	Body() string
	SetReuse(reuse bool)
	SetUserAgent(ua string)
}

// Files holds the static portal assets.
type Files interface {
	Mount() error
	Unmount() error
	Exists(name string) bool
	Open(name string) (afero.File, error)
}

// Advertiser publishes the portal over mDNS.
type Advertiser interface {
	Advertise(instance string, port int, txt []string) error
	Shutdown()
}

// Deps are the collaborators the manager drives. Portal, Redirector and
// Files are only used in setup mode; Advertiser is optional.
type Deps struct {
	Settings   Settings
	Radio      radio.Radio
	Fetch      FetchClient
	Portal     PortalServer
	Redirector Redirector
	Files      Files
	Advertiser Advertiser
}

func (d Deps) validate(setup bool) error {
	if d.Settings == nil || d.Radio == nil || d.Fetch == nil {
		return fmt.Errorf("settings, radio and fetch client are required")
	}
	if setup && (d.Portal == nil || d.Redirector == nil || d.Files == nil) {
		return fmt.Errorf("setup mode requires a portal server, a redirector and a file store")
	}
	return nil
}

// Options holds the manager's fixed parameters.
type Options struct {
	// ProductName prefixes the access point name and the user agent
	ProductName string

	// Endpoint is the URL fetched by Get
	Endpoint string

	// Version and BuildInfo are served by /info (default: internal/version)
	Version   string
	BuildInfo string

	ConnectTimeout     time.Duration // default 15s
	ReconnectInterval  time.Duration // default 60s
	ResetTouchInterval time.Duration // default 100ms

	// DNSPort is the redirector port; 0 picks a free port
	DNSPort int

	// Now and Sleep override the clock (tests)
	Now   func() time.Time
	Sleep func(d time.Duration)
}

const (
	DefaultConnectTimeout     = 15 * time.Second
	DefaultReconnectInterval  = 60 * time.Second
	DefaultResetTouchInterval = 100 * time.Millisecond
)

func (o *Options) setDefaults() {
	if o.ProductName == "" {
		o.ProductName = "fowlink"
	}
	if o.Version == "" {
		o.Version = version.Version
	}
	if o.BuildInfo == "" {
		o.BuildInfo = version.BuildInfo()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.ResetTouchInterval <= 0 {
		o.ResetTouchInterval = DefaultResetTouchInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
