package config

import (
	"fmt"
	"net/url"
	"time"
)

// Radio driver names accepted in RadioConfig.Driver.
const (
	DriverSimulated = "simulated"
	DriverNMCLI     = "nmcli"
)

// Config represents the daemon configuration file.
// Credentials are not part of it; they live in the settings store.
type Config struct {
	Version int `yaml:"version" ignored:"true"`

	// ProductName prefixes the setup access point name and the user agent
	ProductName string `yaml:"product_name" envconfig:"PRODUCT_NAME"`

	// Endpoint is the fixed URL fetched by the application loop
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`

	// SettingsPath is the settings store file (empty = next to config.yaml)
	SettingsPath string `yaml:"settings_path,omitempty" envconfig:"SETTINGS_PATH"`

	// AssetsDir serves portal assets from disk instead of the embedded page
	AssetsDir string `yaml:"assets_dir,omitempty" envconfig:"ASSETS_DIR"`

	Radio  RadioConfig  `yaml:"radio" envconfig:"RADIO"`
	Portal PortalConfig `yaml:"portal" envconfig:"PORTAL"`
	Timing TimingConfig `yaml:"timing" envconfig:"TIMING"`
	Fetch  FetchConfig  `yaml:"fetch" envconfig:"FETCH"`
	Log    LogConfig    `yaml:"log" envconfig:"LOG"`
}

// RadioConfig selects and configures the wireless driver.
type RadioConfig struct {
	Driver      string `yaml:"driver" envconfig:"DRIVER"`             // "simulated" or "nmcli"
	Interface   string `yaml:"interface" envconfig:"INTERFACE"`       // station interface (nmcli)
	APInterface string `yaml:"ap_interface" envconfig:"AP_INTERFACE"` // access point interface, defaults to Interface

	// SimulatedNetworks lists "ssid=passphrase" pairs the simulated radio can join
	SimulatedNetworks map[string]string `yaml:"simulated_networks,omitempty" envconfig:"SIMULATED_NETWORKS"`
}

// PortalConfig configures the setup-mode captive portal.
type PortalConfig struct {
	Host    string `yaml:"host" envconfig:"HOST"`
	Port    int    `yaml:"port" envconfig:"PORT"`
	DNSPort int    `yaml:"dns_port" envconfig:"DNS_PORT"`
}

// TimingConfig holds the connection protocol timing.
type TimingConfig struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	ReconnectInterval  time.Duration `yaml:"reconnect_interval" envconfig:"RECONNECT_INTERVAL"`
	ResetTouchInterval time.Duration `yaml:"reset_touch_interval" envconfig:"RESET_TOUCH_INTERVAL"`
	TickInterval       time.Duration `yaml:"tick_interval" envconfig:"TICK_INTERVAL"`
}

// FetchConfig controls the application's periodic outbound fetch.
type FetchConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Output   string        `yaml:"output,omitempty" envconfig:"OUTPUT"` // file the last body is written to
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
	File  string `yaml:"file,omitempty" envconfig:"FILE"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Version:     1,
		ProductName: "fowlink",
		Endpoint:    "http://localhost:8000/progress",
		Radio: RadioConfig{
			Driver:    DriverSimulated,
			Interface: "wlan0",
		},
		Portal: PortalConfig{
			Host:    "",
			Port:    80,
			DNSPort: 53,
		},
		Timing: TimingConfig{
			ConnectTimeout:     15 * time.Second,
			ReconnectInterval:  60 * time.Second,
			ResetTouchInterval: 100 * time.Millisecond,
			TickInterval:       20 * time.Millisecond,
		},
		Fetch: FetchConfig{
			Interval: 30 * time.Second,
			Timeout:  10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.ProductName == "" {
		return fmt.Errorf("product_name must not be empty")
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must start with http:// or https://, got %q", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", c.Endpoint)
	}

	switch c.Radio.Driver {
	case DriverSimulated, DriverNMCLI:
	default:
		return fmt.Errorf("unknown radio driver %q (expected %q or %q)", c.Radio.Driver, DriverSimulated, DriverNMCLI)
	}
	if c.Radio.Driver == DriverNMCLI && c.Radio.Interface == "" {
		return fmt.Errorf("radio.interface is required for the %s driver", DriverNMCLI)
	}

	if err := validatePort("portal.port", c.Portal.Port); err != nil {
		return err
	}
	if err := validatePort("portal.dns_port", c.Portal.DNSPort); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"timing.connect_timeout", c.Timing.ConnectTimeout},
		{"timing.reconnect_interval", c.Timing.ReconnectInterval},
		{"timing.reset_touch_interval", c.Timing.ResetTouchInterval},
		{"timing.tick_interval", c.Timing.TickInterval},
		{"fetch.interval", c.Fetch.Interval},
		{"fetch.timeout", c.Fetch.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	return nil
}

func validatePort(name string, port int) error {
	// 0 lets the kernel pick, which tests rely on
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be 0-65535, got %d", name, port)
	}
	return nil
}

// APInterfaceName returns the interface the access point is started on.
func (r RadioConfig) APInterfaceName() string {
	if r.APInterface != "" {
		return r.APInterface
	}
	return r.Interface
}
