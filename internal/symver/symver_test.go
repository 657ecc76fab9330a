package symver

import (
	"testing"
	"unsafe"
)

func TestMatchesNoVersioning(t *testing.T) {
	if !Matches(&Request{Name: "foo"}, nil, nil, 3) {
		t.Fatalf("Matches returned false when the library carries no version table")
	}
}

func TestMatchesUnversionedCallerRejectsHidden(t *testing.T) {
	// A hand-built .gnu.version table: index 0 is a hidden definition of
	// version 2, index 1 the default definition of the same version.
	table := []uint16{VERSYM_HIDDEN | 2, 2}
	versym := VersymTable{Base: uint64(uintptr(unsafe.Pointer(&table[0])))}

	if Matches(nil, &versym, nil, 0) {
		t.Fatalf("Matches accepted a hidden definition for an unversioned caller")
	}
	if !Matches(nil, &versym, nil, 1) {
		t.Fatalf("Matches rejected the default definition for an unversioned caller")
	}
}
