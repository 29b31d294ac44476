package portalclient

import (
	"fmt"
	"unicode/utf8"

	"github.com/fowlink/fowlink/internal/settings"
)

// MinPassphraseLength is the shortest WPA passphrase. Open networks use "".
const MinPassphraseLength = 8

// ValidateCredentials checks credentials before they are submitted.
// The device silently truncates long values, so they are rejected here.
func ValidateCredentials(ssid, passphrase string) error {
	if ssid == "" {
		return NewValidationError("network name must not be empty")
	}
	if len(ssid) > settings.MaxFieldLength {
		return NewValidationError(fmt.Sprintf("network name is %d bytes, the device keeps at most %d", len(ssid), settings.MaxFieldLength))
	}
	if !utf8.ValidString(ssid) {
		return NewValidationError("network name is not valid UTF-8")
	}
	if len(passphrase) > settings.MaxFieldLength {
		return NewValidationError(fmt.Sprintf("password is %d bytes, the device keeps at most %d", len(passphrase), settings.MaxFieldLength))
	}
	if passphrase != "" && len(passphrase) < MinPassphraseLength {
		return NewValidationError(fmt.Sprintf("password must be empty or at least %d characters", MinPassphraseLength))
	}
	return nil
}
