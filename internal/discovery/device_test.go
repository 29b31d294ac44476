package discovery

import (
	"testing"
)

func TestDevice_String(t *testing.T) {
	device := &Device{
		ID:       "0D0E0F",
		Product:  "fowlink",
		Instance: "fowlink-0D0E0F",
		IP:       "192.168.4.1",
		Port:     80,
	}

	expected := "fowlink device 0D0E0F (fowlink-0D0E0F) at 192.168.4.1:80"
	if device.String() != expected {
		t.Errorf("Device.String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		device   *Device
		expected string
	}{
		{
			name:     "standard HTTP port",
			device:   &Device{IP: "192.168.4.1", Port: 80},
			expected: "http://192.168.4.1:80",
		},
		{
			name:     "custom port",
			device:   &Device{IP: "10.42.0.1", Port: 8080},
			expected: "http://10.42.0.1:8080",
		},
		{
			name:     "IPv6 address",
			device:   &Device{IP: "fe80::1", Port: 80},
			expected: "http://[fe80::1]:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.BaseURL(); got != tt.expected {
				t.Errorf("Device.BaseURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDevice_GetMetadata(t *testing.T) {
	device := &Device{
		Metadata: map[string]string{
			"path":    "/",
			"version": "v1.2.0",
		},
	}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"existing key", "path", "/"},
		{"another existing key", "version", "v1.2.0"},
		{"non-existent key", "missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := device.GetMetadata(tt.key); got != tt.expected {
				t.Errorf("Device.GetMetadata(%v) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}

	if got := (&Device{}).GetMetadata("anything"); got != "" {
		t.Errorf("Device.GetMetadata() with nil map = %v, want empty string", got)
	}
}
