package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fowlink/fowlink/internal/logging"
)

// MaxFieldLength is the longest value stored for any field, in bytes.
// Longer input is truncated, never rejected.
const MaxFieldLength = 64

const (
	// DefaultResetWindow is how long the device must stay up before a boot
	// stops counting towards a full reset.
	DefaultResetWindow = 10 * time.Second

	// DefaultResetBootCount is the number of short-lived boots in a row that
	// requests a full reset.
	DefaultResetBootCount = 3

	currentVersion = 1
)

// ErrUnsupportedVersion is returned when the settings file has an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported settings version")

// Field names a persisted credential.
type Field int

const (
	FieldSSID Field = iota
	FieldPassphrase
)

// String returns the field name used in logs
func (f Field) String() string {
	switch f {
	case FieldSSID:
		return "ssid"
	case FieldPassphrase:
		return "passphrase"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// document is the on-disk layout of the settings file.
type document struct {
	Version   int      `yaml:"version"`
	SetupMode bool     `yaml:"setup_mode"`
	Network   network  `yaml:"network"`
	DeviceID  string   `yaml:"device_id,omitempty"`
	Reset     resetDoc `yaml:"reset"`
}

type network struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

type resetDoc struct {
	BootCount int `yaml:"boot_count"`
}

// Store persists the device's network credentials, the setup-mode flag and
// the reset-request bookkeeping in a YAML file.
type Store struct {
	path string
	doc  document

	now            func() time.Time
	resetWindow    time.Duration
	resetBootCount int

	bootedAt  time.Time
	fullReset bool
	noBoot    bool
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithResetWindow overrides DefaultResetWindow.
func WithResetWindow(d time.Duration) Option {
	return func(s *Store) { s.resetWindow = d }
}

// WithResetBootCount overrides DefaultResetBootCount.
func WithResetBootCount(n int) Option {
	return func(s *Store) { s.resetBootCount = n }
}

// WithoutBoot opens the store for maintenance: the open is not counted as a
// boot and TouchResetTimer does nothing.
func WithoutBoot() Option {
	return func(s *Store) { s.noBoot = true }
}

// Mutex for file writes
var fileMutex sync.Mutex

// Open loads the settings file at path and records this boot.
// A missing file yields a fresh store in setup mode.
//
// Every Open without WithoutBoot counts as a boot. When
// DefaultResetBootCount boots happen in a row without the device ever staying up for the reset window, the stored
// credentials are wiped and setup mode is forced.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:           path,
		now:            time.Now,
		resetWindow:    DefaultResetWindow,
		resetBootCount: DefaultResetBootCount,
		doc: document{
			Version:   currentVersion,
			SetupMode: true,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	if s.noBoot {
		return s, nil
	}

	s.bootedAt = s.now()
	s.doc.Reset.BootCount++

	if s.doc.Reset.BootCount >= s.resetBootCount {
		logging.Warn("Full reset requested, clearing stored credentials",
			zap.Int("boot_count", s.doc.Reset.BootCount),
		)
		s.fullReset = true
		s.doc.Network = network{}
		s.doc.SetupMode = true
		s.doc.Reset.BootCount = 0
	}

	if err := s.save(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	if doc.Version != currentVersion {
		return fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, doc.Version, currentVersion)
	}

	s.doc = doc
	return nil
}

// save performs an atomic write of the settings file.
func (s *Store) save() error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary settings file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save settings file: %w", err)
	}
	return nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the stored value of f.
func (s *Store) Get(f Field) string {
	switch f {
	case FieldSSID:
		return s.doc.Network.SSID
	case FieldPassphrase:
		return s.doc.Network.Passphrase
	default:
		return ""
	}
}

// Set stores value for f, truncated to MaxFieldLength, and persists it.
func (s *Store) Set(f Field, value string) error {
	value = Truncate(value)
	switch f {
	case FieldSSID:
		s.doc.Network.SSID = value
	case FieldPassphrase:
		s.doc.Network.Passphrase = value
	default:
		return fmt.Errorf("unknown settings field %v", f)
	}
	return s.save()
}

// IsSetupMode reports whether the device should boot into setup mode.
func (s *Store) IsSetupMode() bool {
	return s.doc.SetupMode
}

// ExitSetupMode clears the setup-mode flag so the next boot joins the stored network.
func (s *Store) ExitSetupMode() error {
	s.doc.SetupMode = false
	return s.save()
}

// EnterSetupMode wipes the stored credentials and forces setup mode on the next boot.
func (s *Store) EnterSetupMode() error {
	s.doc.Network = network{}
	s.doc.SetupMode = true
	return s.save()
}

// TouchResetTimer services the reset-request bookkeeping. Once the device
// has been up for the reset window, the current boot no longer counts
// towards a full reset. It is cheap to call on every loop iteration.
func (s *Store) TouchResetTimer() {
	if s.noBoot || s.doc.Reset.BootCount == 0 {
		return
	}
	if s.now().Sub(s.bootedAt) < s.resetWindow {
		return
	}

	s.doc.Reset.BootCount = 0
	if err := s.save(); err != nil {
		logging.Error("Failed to clear reset boot counter", zap.Error(err))
		return
	}
	logging.Debug("Boot considered stable, reset counter cleared")
}

// BootCount returns the number of boots currently counting towards a full reset.
func (s *Store) BootCount() int {
	return s.doc.Reset.BootCount
}

// FullResetRequested reports whether this boot triggered a full reset.
func (s *Store) FullResetRequested() bool {
	return s.fullReset
}

// DeviceID returns a stable identifier for devices whose radio exposes no
// hardware serial. It is generated once and persisted.
func (s *Store) DeviceID() string {
	if s.doc.DeviceID != "" {
		return s.doc.DeviceID
	}

	id := uuid.New()
	s.doc.DeviceID = strings.ToUpper(fmt.Sprintf("%x", id[:3]))
	if err := s.save(); err != nil {
		logging.Error("Failed to persist device id", zap.Error(err))
	}
	return s.doc.DeviceID
}

// Truncate clamps value to MaxFieldLength bytes.
func Truncate(value string) string {
	if len(value) > MaxFieldLength {
		return value[:MaxFieldLength]
	}
	return value
}
