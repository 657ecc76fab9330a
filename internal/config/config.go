// Package config loads this loader's static configuration: library search
// paths, default open flags, and resolver policy, from a YAML file, matching
// the teacher's preference for yaml.v3-backed config over flags for
// anything with more than a couple of fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dlopenlib/dlopen/internal/dylib"
)

// Config is the top-level document.
type Config struct {
	SearchPaths []string `yaml:"search_paths"`

	Defaults struct {
		Global   bool `yaml:"global"`
		Now      bool `yaml:"now"`
		NoDelete bool `yaml:"no_delete"`
	} `yaml:"defaults"`

	// PlatformBridge, when true, falls back to /proc/self/maps discovery
	// (internal/platformld) for a dependency not found under SearchPaths.
	PlatformBridge bool `yaml:"platform_bridge"`

	// Resolver names a goja script file implementing a `resolve(name)`
	// fallback (internal/resolver/jsresolver), empty if none.
	Resolver string `yaml:"resolver"`

	Debug bool `yaml:"debug"`
}

// Load reads and parses path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

// Default returns the built-in configuration used when no file is given:
// the standard multi-arch library directories and lazy, local binding.
func Default() *Config {
	return &Config{
		SearchPaths:    []string{"/lib", "/usr/lib", "/lib/x86_64-linux-gnu", "/usr/lib/x86_64-linux-gnu"},
		PlatformBridge: true,
	}
}

// SearchPath implements internal/loader.SearchPath by walking SearchPaths
// in order, then falling back to the bridge when enabled.
type SearchPath struct {
	Dirs   []string
	Bridge interface {
		Resolve(name string) (dylib.Source, error)
	}
}

// NewSearchPath builds a SearchPath from c, with bridge as the optional
// platform fallback (nil disables it regardless of c.PlatformBridge).
func NewSearchPath(c *Config, bridge interface {
	Resolve(name string) (dylib.Source, error)
}) *SearchPath {
	sp := &SearchPath{Dirs: c.SearchPaths}
	if c.PlatformBridge {
		sp.Bridge = bridge
	}
	return sp
}

// Resolve looks for name under each configured directory (direct match on
// basename, no ldconfig-style cache), then the platform bridge.
func (s *SearchPath) Resolve(name string) (dylib.Source, error) {
	for _, dir := range s.Dirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return dylib.FromPath(candidate)
		}
	}
	if s.Bridge != nil {
		return s.Bridge.Resolve(name)
	}
	return nil, fmt.Errorf("config: %s not found in any search path", name)
}
