package portalclient

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Connection status strings reported by the portal's /status page.
const (
	StateConnected     = "Connected"
	StateAttemptFailed = "Connection attempt failed"
	StateLost          = "Connection lost"
	StateDisconnected  = "Disconnected"
	StateOther         = "Other"
)

// Info is the firmware identification served by /info.
type Info struct {
	Version   string
	BuildInfo string
}

// parseInfo splits the "<version>\n<build info>" body.
func parseInfo(body string) *Info {
	version, build, _ := strings.Cut(body, "\n")
	return &Info{
		Version:   strings.TrimSpace(version),
		BuildInfo: strings.TrimSpace(build),
	}
}

// Status is the connection state shown by the portal's /status page.
type Status struct {
	NetworkName string
	Password    string
	Connection  string
}

// Connected reports whether the device has joined the submitted network.
func (s *Status) Connected() bool {
	return s.Connection == StateConnected
}

// Failed reports whether the last attempt failed or the network was lost.
func (s *Status) Failed() bool {
	return s.Connection == StateAttemptFailed || s.Connection == StateLost
}

func (s *Status) String() string {
	if s.NetworkName == "" {
		return s.Connection
	}
	return fmt.Sprintf("%s (%s)", s.Connection, s.NetworkName)
}

var statusPattern = regexp.MustCompile(`Network Name: (.*?)<br>Password: (.*?)<br>Connection Status: (.*?)</body>`)

// parseStatusPage extracts the fields of the /status HTML page.
func parseStatusPage(body string) (*Status, error) {
	m := statusPattern.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("unrecognized status page: %.80q", body)
	}
	return &Status{
		NetworkName: html.UnescapeString(m[1]),
		Password:    html.UnescapeString(m[2]),
		Connection:  html.UnescapeString(m[3]),
	}, nil
}
