// Package platformld is the platform linker bridge: it locates shared
// objects (any mapped file whose path contains ".so", such as libc, libm,
// libpthread, libdl) already mapped into this process, and exposes them as
// dylib.Source values without ever calling host dlopen(3). spec.md §9 asks
// for "host-specific extensions when present"; DESIGN.md records this
// /proc/self/maps approach as the resolved design for that Open Question —
// it keeps the whole loader cgo-free, matching the teacher's own preference
// for syscall-level Go over cgo shims.
package platformld

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dlopenlib/dlopen/internal/dylib"
)

// MappedRegion is one /proc/self/maps line this package cares about: a
// file-backed, executable-or-not mapping naming a shared object.
type MappedRegion struct {
	Start, End uintptr
	Offset     uint64
	Path       string
}

// ScanMaps parses /proc/self/maps, returning every file-backed region whose
// path looks like a shared object (contains ".so").
func ScanMaps() ([]MappedRegion, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("platformld: %w", err)
	}
	defer f.Close()

	var out []MappedRegion
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		region, ok := parseMapsLine(sc.Text())
		if !ok || !strings.Contains(region.Path, ".so") {
			continue
		}
		out = append(out, region)
	}
	return out, sc.Err()
}

// parseMapsLine parses one line of the form:
//
//	7f1234560000-7f1234580000 r-xp 00000000 08:01 123456   /lib/x86_64-linux-gnu/libc.so.6
//
// Anonymous mappings (no path field) parse with an empty Path.
func parseMapsLine(line string) (MappedRegion, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return MappedRegion{}, false
	}
	path := ""
	if len(fields) >= 6 {
		path = fields[5]
	}
	addrParts := strings.SplitN(fields[0], "-", 2)
	if len(addrParts) != 2 {
		return MappedRegion{}, false
	}
	start, err1 := strconv.ParseUint(addrParts[0], 16, 64)
	end, err2 := strconv.ParseUint(addrParts[1], 16, 64)
	offset, err3 := strconv.ParseUint(fields[2], 16, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return MappedRegion{}, false
	}
	return MappedRegion{Start: uintptr(start), End: uintptr(end), Offset: offset, Path: path}, true
}

// FirstMappingOf returns the lowest-addressed region backing path, which
// for a normally loaded shared object is where its ELF header lives (the
// first PT_LOAD segment, typically offset 0 and read-only).
func FirstMappingOf(regions []MappedRegion, path string) (MappedRegion, bool) {
	var best MappedRegion
	found := false
	for _, r := range regions {
		if r.Path != path {
			continue
		}
		if !found || r.Start < best.Start {
			best = r
			found = true
		}
	}
	return best, found
}

// Bridge resolves a short library name (e.g. "libc.so.6") to an
// already-mapped system library by scanning /proc/self/maps for a path
// whose base name matches.
type Bridge struct {
	regions []MappedRegion
}

// NewBridge scans /proc/self/maps once; callers needing a fresh view after
// further mappings appear should construct a new Bridge.
func NewBridge() (*Bridge, error) {
	regions, err := ScanMaps()
	if err != nil {
		return nil, err
	}
	return &Bridge{regions: regions}, nil
}

// Resolve implements internal/loader.SearchPath's fallback leg: given a
// short name, find its full path among already-mapped regions and wrap the
// lowest mapping as a dylib.Source.
func (b *Bridge) Resolve(shortName string) (dylib.Source, error) {
	for _, r := range b.regions {
		if baseName(r.Path) == shortName {
			low, _ := FirstMappingOf(b.regions, r.Path)
			size := highestEnd(b.regions, r.Path) - low.Start
			return dylib.FromExistingMapping(r.Path, low.Start, size), nil
		}
	}
	return nil, fmt.Errorf("platformld: %s is not already mapped", shortName)
}

func highestEnd(regions []MappedRegion, path string) uintptr {
	var max uintptr
	for _, r := range regions {
		if r.Path == path && r.End > max {
			max = r.End
		}
	}
	return max
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
