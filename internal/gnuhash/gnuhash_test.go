package gnuhash

import "testing"

func TestHash(t *testing.T) {
	// Values from the GNU hash ABI example (System V gABI, "the GNU hash
	// table" note): hash("") == 0, hash("printf") == 0x156b2bb8.
	cases := map[string]uint32{
		"":       0x00000000,
		"printf": 0x156b2bb8,
	}
	for in, want := range cases {
		if got := Hash(in); got != want {
			t.Errorf("Hash(%q) = 0x%x, want 0x%x", in, got, want)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash("foo") != Hash("foo") {
		t.Fatalf("Hash is not deterministic")
	}
	if Hash("foo") == Hash("bar") {
		t.Fatalf("Hash collided unexpectedly for distinct short strings")
	}
}
