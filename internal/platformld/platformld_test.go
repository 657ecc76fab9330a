package platformld

import "testing"

func TestParseMapsLineValid(t *testing.T) {
	line := "7f1234560000-7f1234580000 r-xp 00001000 08:01 123456   /lib/x86_64-linux-gnu/libc.so.6"
	r, ok := parseMapsLine(line)
	if !ok {
		t.Fatalf("parseMapsLine failed on a well-formed line")
	}
	if r.Start != 0x7f1234560000 || r.End != 0x7f1234580000 || r.Offset != 0x1000 {
		t.Fatalf("parseMapsLine = %+v, unexpected fields", r)
	}
	if r.Path != "/lib/x86_64-linux-gnu/libc.so.6" {
		t.Fatalf("Path = %q", r.Path)
	}
}

func TestParseMapsLineAnonymous(t *testing.T) {
	line := "7f1234560000-7f1234580000 rw-p 00000000 00:00 0"
	if _, ok := parseMapsLine(line); !ok {
		t.Fatalf("parseMapsLine rejected a short anonymous-mapping line")
	}
}

func TestParseMapsLineMalformed(t *testing.T) {
	if _, ok := parseMapsLine("not a maps line"); ok {
		t.Fatalf("parseMapsLine accepted garbage input")
	}
}

func TestFirstMappingOfPicksLowestStart(t *testing.T) {
	regions := []MappedRegion{
		{Start: 0x2000, End: 0x3000, Path: "/lib/libc.so.6"},
		{Start: 0x1000, End: 0x2000, Path: "/lib/libc.so.6"},
		{Start: 0x5000, End: 0x6000, Path: "/lib/libm.so.6"},
	}
	low, ok := FirstMappingOf(regions, "/lib/libc.so.6")
	if !ok || low.Start != 0x1000 {
		t.Fatalf("FirstMappingOf = %+v, ok=%v, want Start=0x1000", low, ok)
	}
}

func TestBaseName(t *testing.T) {
	if got := baseName("/lib/x86_64-linux-gnu/libc.so.6"); got != "libc.so.6" {
		t.Fatalf("baseName = %q", got)
	}
	if got := baseName("libc.so.6"); got != "libc.so.6" {
		t.Fatalf("baseName with no slash = %q", got)
	}
}

func TestBridgeResolveNotMapped(t *testing.T) {
	b := &Bridge{regions: nil}
	if _, err := b.Resolve("libfoo.so"); err == nil {
		t.Fatalf("Resolve succeeded for a library absent from the scanned regions")
	}
}

func TestBridgeResolveFound(t *testing.T) {
	b := &Bridge{regions: []MappedRegion{
		{Start: 0x1000, End: 0x2000, Path: "/lib/libc.so.6"},
		{Start: 0x2000, End: 0x4000, Path: "/lib/libc.so.6"},
	}}
	src, err := b.Resolve("libc.so.6")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.Name() != "/lib/libc.so.6" {
		t.Fatalf("Resolve name = %q", src.Name())
	}
}
