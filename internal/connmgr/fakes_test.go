package connmgr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/settings"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeSettings struct {
	values   map[settings.Field]string
	setup    bool
	deviceID string
	touches  int
	exits    int
	sets     int
}

func newFakeSettings(setup bool) *fakeSettings {
	return &fakeSettings{
		values:   make(map[settings.Field]string),
		setup:    setup,
		deviceID: "A1B2C3",
	}
}

func (s *fakeSettings) Get(f settings.Field) string { return s.values[f] }

func (s *fakeSettings) Set(f settings.Field, value string) error {
	s.sets++
	s.values[f] = settings.Truncate(value)
	return nil
}

func (s *fakeSettings) IsSetupMode() bool { return s.setup }

func (s *fakeSettings) ExitSetupMode() error {
	s.exits++
	s.setup = false
	return nil
}

func (s *fakeSettings) TouchResetTimer() { s.touches++ }

func (s *fakeSettings) DeviceID() string { return s.deviceID }

type fakeFetch struct {
	openOK    bool
	status    int
	body      string
	getErr    error
	opens     int
	closes    int
	gets      int
	endpoint  string
	userAgent string
	reuse     bool
}

func newFakeFetch() *fakeFetch {
	return &fakeFetch{openOK: true, status: 200, body: "payload"}
}

func (f *fakeFetch) Open(endpoint string) bool {
	f.opens++
	f.endpoint = endpoint
	return f.openOK
}

func (f *fakeFetch) Close() { f.closes++ }

func (f *fakeFetch) Get(ctx context.Context) (int, error) {
	f.gets++
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.status, nil
}

func (f *fakeFetch) Body() string { return f.body }

func (f *fakeFetch) SetReuse(reuse bool) { f.reuse = reuse }

func (f *fakeFetch) SetUserAgent(ua string) { f.userAgent = ua }

type fakeAdvertiser struct {
	instance string
	port     int
	txt      []string
	active   bool
	err      error
}

func (a *fakeAdvertiser) Advertise(instance string, port int, txt []string) error {
	if a.err != nil {
		return a.err
	}
	a.instance, a.port, a.txt, a.active = instance, port, txt, true
	return nil
}

func (a *fakeAdvertiser) Shutdown() { a.active = false }

// brokenAPRadio fails to start an access point.
type brokenAPRadio struct {
	*radio.Simulated
}

func (r brokenAPRadio) StartAccessPoint(name string) (net.IP, error) {
	return nil, errors.New("hostapd not running")
}
