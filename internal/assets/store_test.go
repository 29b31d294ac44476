package assets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"/index.html", "text/html"},
		{"/legacy.htm", "text/html"},
		{"/style.css", "text/css"},
		{"/setup.js", "application/javascript"},
		{"/logo.png", "image/png"},
		{"/spinner.gif", "image/gif"},
		{"/photo.jpg", "image/jpeg"},
		{"/favicon.ico", "image/x-icon"},
		{"/notes.txt", "text/plain"},
		{"/photo.jpeg", "text/plain"},
		{"/noext", "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentType(tt.name); got != tt.want {
				t.Errorf("ContentType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/", "/index.html"},
		{"/docs/", "/docs/index.html"},
		{"/style.css", "/style.css"},
		{"/docs", "/docs"},
	}

	for _, tt := range tests {
		if got := ResolvePath(tt.uri); got != tt.want {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestMemStore_MountLifecycle(t *testing.T) {
	s := NewMemStore(map[string]string{"index.html": "<html>hi</html>"})

	if s.Exists("/index.html") {
		t.Error("Exists() should be false before Mount()")
	}
	if _, err := s.Open("/index.html"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Open() before Mount() error = %v, want ErrNotMounted", err)
	}

	if err := s.Mount(); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if !s.Exists("/index.html") {
		t.Error("Exists(/index.html) should be true after Mount()")
	}
	if s.Exists("/missing.html") {
		t.Error("Exists(/missing.html) should be false")
	}

	f, err := s.Open("/index.html")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "<html>hi</html>" {
		t.Errorf("content = %q", data)
	}

	_ = s.Unmount()
	if s.Mounted() || s.Exists("/index.html") {
		t.Error("store should be empty after Unmount()")
	}
}

func TestEmbeddedStore_ServesSetupPage(t *testing.T) {
	s := NewEmbeddedStore()
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	defer s.Unmount()

	for _, name := range []string{"/index.html", "/style.css", "/setup.js"} {
		if !s.Exists(name) {
			t.Errorf("embedded store is missing %s", name)
		}
	}
	if s.Exists("/") {
		t.Error("directories should not count as files")
	}
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("disk"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewDirStore(dir)
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if !s.Exists("/index.html") {
		t.Error("Exists(/index.html) should be true")
	}
	if s.Exists("/../../etc/passwd") {
		t.Error("paths must not escape the assets directory")
	}

	if err := NewDirStore(filepath.Join(dir, "missing")).Mount(); err == nil {
		t.Error("Mount() of a missing directory should fail")
	}
}
