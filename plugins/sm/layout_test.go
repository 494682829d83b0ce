package sm

import (
	"strings"
	"testing"
)

func TestArenaNameDeterministic(t *testing.T) {
	a := ArenaName("na_sm_test", 1234, 0)
	b := ArenaName("na_sm_test", 1234, 0)
	if a != b {
		t.Fatalf("ArenaName should be deterministic for the same inputs: %q != %q", a, b)
	}
	if !strings.Contains(a, "1234") {
		t.Fatalf("ArenaName %q should contain the pid", a)
	}
	if !strings.HasSuffix(a, "-0") {
		t.Fatalf("ArenaName %q should end with the instance suffix", a)
	}
}

func TestArenaNameDefaultsPrefix(t *testing.T) {
	a := ArenaName("", 1, 0)
	if !strings.HasPrefix(a, defaultPrefix+"_") {
		t.Fatalf("ArenaName with empty prefix should fall back to defaultPrefix, got %q", a)
	}
}

func TestRingNameIncludesConnAndDirection(t *testing.T) {
	s := RingName("na_sm_test", 1234, 0, 7, "s")
	r := RingName("na_sm_test", 1234, 0, 7, "r")
	if s == r {
		t.Fatalf("send and recv ring names must differ: %q", s)
	}
	if !strings.HasSuffix(s, "-7-s") {
		t.Fatalf("RingName %q should end with -<conn>-s", s)
	}
	if !strings.HasSuffix(r, "-7-r") {
		t.Fatalf("RingName %q should end with -<conn>-r", r)
	}
	arena := ArenaName("na_sm_test", 1234, 0)
	if !strings.HasPrefix(s, arena) {
		t.Fatalf("RingName %q should be derived from ArenaName %q", s, arena)
	}
}

func TestSockPathCreatesDirectory(t *testing.T) {
	path, err := SockPath("na_sm_test", 999999, 0)
	if err != nil {
		t.Fatalf("SockPath: %v", err)
	}
	if !strings.HasSuffix(path, "/sock") {
		t.Fatalf("SockPath %q should end with /sock", path)
	}
}
