// Package manifest handles alum.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by FindAndLoad.
const FileName = "alum.toml"

// Manifest represents an alum.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Source   Source   `toml:"source"`
	Compiler Compiler `toml:"compiler"`
	Runtime  Runtime  `toml:"runtime"`
	Cache    Cache    `toml:"cache"`

	// Dir is the directory containing the alum.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations. Dirs are searched, in order,
// for $import paths that do not resolve relative to the importing file.
type Source struct {
	Entry string   `toml:"entry"`
	Dirs  []string `toml:"dirs"`
}

// Compiler configures the compilation pipeline.
type Compiler struct {
	Optimize bool `toml:"optimize"`
	Strict   bool `toml:"strict"`
}

// Runtime configures the machine.
type Runtime struct {
	Trace bool `toml:"trace"`
}

// Cache configures the compiled-artifact cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no alum.toml exists.
func Default() *Manifest {
	return &Manifest{
		Source:   Source{Entry: "main.alum"},
		Compiler: Compiler{Optimize: true},
		Cache:    Cache{Path: filepath.Join(".alum", "cache.db")},
	}
}

// Load parses an alum.toml file from the given directory. Keys missing
// from the file keep their Default values.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an alum.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// EntryPath returns the path of the entry file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// CachePath returns the path of the cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
