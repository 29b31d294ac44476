package discovery

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

// Advertiser publishes the setup portal over mDNS.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Advertise registers instance as an _http._tcp service on port. A previous
// registration is withdrawn first.
func (a *Advertiser) Advertise(instance string, port int, txt []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service %s: %w", instance, err)
	}
	a.server = server

	logging.Info("Advertising setup portal",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return nil
}

// Shutdown withdraws the advertisement. It is a no-op when idle.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Debug("mDNS advertisement withdrawn")
}

// Active reports whether an advertisement is registered.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// TXT builds the TXT records published next to the portal.
func TXT(id, product, version string) []string {
	return []string{
		"id=" + id,
		"product=" + product,
		"path=/",
		"version=" + version,
	}
}
