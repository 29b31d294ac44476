// Package assets stores the static files served by the setup portal.
//
// A Store must be mounted before files can be read and is unmounted when
// setup ends. Files come from the page embedded in the binary, a directory
// on disk, or memory (tests); all three are read-only afero filesystems.
package assets
