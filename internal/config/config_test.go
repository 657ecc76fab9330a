package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dlopenlib/dlopen/internal/dylib"
)

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "search_paths:\n  - /lib\n  - /usr/lib\ndefaults:\n  global: true\nplatform_bridge: false\nresolver: resolve.js\ndebug: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.SearchPaths) != 2 || c.SearchPaths[0] != "/lib" {
		t.Fatalf("SearchPaths = %v", c.SearchPaths)
	}
	if !c.Defaults.Global || c.PlatformBridge || c.Resolver != "resolve.js" || !c.Debug {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestDefaultEnablesPlatformBridge(t *testing.T) {
	c := Default()
	if !c.PlatformBridge || len(c.SearchPaths) == 0 {
		t.Fatalf("Default() = %+v, want PlatformBridge=true and non-empty search paths", c)
	}
}

type fakeBridge struct {
	resolved string
}

func (b *fakeBridge) Resolve(name string) (dylib.Source, error) {
	b.resolved = name
	return dylib.FromBytes(name, []byte("x")), nil
}

func TestSearchPathFallsBackToBridge(t *testing.T) {
	dir := t.TempDir()
	bridge := &fakeBridge{}
	sp := NewSearchPath(&Config{SearchPaths: []string{dir}, PlatformBridge: true}, bridge)

	src, err := sp.Resolve("libfoo.so")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.Name() != "libfoo.so" || bridge.resolved != "libfoo.so" {
		t.Fatalf("Resolve did not fall back to bridge: src=%v bridge.resolved=%q", src, bridge.resolved)
	}
}

func TestSearchPathFindsDirectMatch(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "libbar.so")
	if err := os.WriteFile(libPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sp := NewSearchPath(&Config{SearchPaths: []string{dir}}, nil)

	src, err := sp.Resolve("libbar.so")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.Name() != libPath {
		t.Fatalf("Resolve name = %q, want %q", src.Name(), libPath)
	}
}

func TestSearchPathNoMatchNoBridge(t *testing.T) {
	sp := NewSearchPath(&Config{SearchPaths: []string{t.TempDir()}}, nil)
	if _, err := sp.Resolve("libmissing.so"); err == nil {
		t.Fatalf("Resolve succeeded for a library present nowhere")
	}
}
