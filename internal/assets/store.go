package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

// IndexFile is served for the root route and appended to directory paths.
const IndexFile = "index.html"

//go:embed web
var embedded embed.FS

// ErrNotMounted is returned by Open while the store is unmounted.
var ErrNotMounted = errors.New("asset store not mounted")

// Source produces the filesystem backing a Store when it is mounted.
type Source func() (afero.Fs, error)

// Store is a read-only file store that must be mounted before use.
type Store struct {
	mu     sync.Mutex
	name   string
	source Source
	fs     afero.Fs
}

// NewStore creates a store over an arbitrary source.
func NewStore(name string, source Source) *Store {
	return &Store{name: name, source: source}
}

// NewDirStore serves files from dir on disk.
func NewDirStore(dir string) *Store {
	return NewStore(dir, func() (afero.Fs, error) {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to stat assets dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("assets path %s is not a directory", dir)
		}
		return afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
	})
}

// NewEmbeddedStore serves the setup page compiled into the binary.
func NewEmbeddedStore() *Store {
	return NewStore("embedded", func() (afero.Fs, error) {
		sub, err := fs.Sub(embedded, "web")
		if err != nil {
			return nil, err
		}
		return afero.FromIOFS{FS: sub}, nil
	})
}

// NewMemStore serves the given files from memory.
func NewMemStore(files map[string]string) *Store {
	return NewStore("memory", func() (afero.Fs, error) {
		mem := afero.NewMemMapFs()
		for name, content := range files {
			if err := afero.WriteFile(mem, name, []byte(content), 0644); err != nil {
				return nil, err
			}
		}
		return afero.NewReadOnlyFs(mem), nil
	})
}

// Mount makes the files available. Mounting twice is a no-op.
func (s *Store) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fs != nil {
		return nil
	}
	fsys, err := s.source()
	if err != nil {
		return fmt.Errorf("failed to mount %s assets: %w", s.name, err)
	}
	s.fs = fsys
	logging.Debug("Assets mounted", zap.String("source", s.name))
	return nil
}

// Unmount releases the files. Later reads fail with ErrNotMounted.
func (s *Store) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fs = nil
	return nil
}

// Mounted reports whether the store is mounted.
func (s *Store) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs != nil
}

// Exists reports whether name is a regular file in the mounted store.
func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	fsys := s.fs
	s.mu.Unlock()

	if fsys == nil {
		return false
	}
	info, err := fsys.Stat(clean(name))
	return err == nil && !info.IsDir()
}

// Open opens name for reading.
func (s *Store) Open(name string) (afero.File, error) {
	s.mu.Lock()
	fsys := s.fs
	s.mu.Unlock()

	if fsys == nil {
		return nil, ErrNotMounted
	}
	return fsys.Open(clean(name))
}

// clean maps a request path onto a store path. Embedded filesystems reject
// leading slashes.
func clean(name string) string {
	name = path.Clean("/" + name)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return name
}

// ResolvePath appends IndexFile to directory-style request paths.
func ResolvePath(uri string) string {
	if strings.HasSuffix(uri, "/") {
		return uri + IndexFile
	}
	return uri
}

// ContentType maps a file name to the content type it is served with.
// Unknown extensions are served as text/plain.
func ContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".htm"), strings.HasSuffix(name, ".html"):
		return "text/html"
	case strings.HasSuffix(name, ".css"):
		return "text/css"
	case strings.HasSuffix(name, ".js"):
		return "application/javascript"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".gif"):
		return "image/gif"
	case strings.HasSuffix(name, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".ico"):
		return "image/x-icon"
	default:
		return "text/plain"
	}
}
