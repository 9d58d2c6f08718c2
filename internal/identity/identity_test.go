package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeStripsGhostAndCase(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain lowercase", "skyrim.esm", "skyrim.esm"},
		{"mixed case", "Skyrim.esm", "skyrim.esm"},
		{"ghosted", "Dawnguard.esm.ghost", "dawnguard.esm"},
		{"ghosted mixed case suffix", "Dawnguard.esm.GHOST", "dawnguard.esm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotentAndGhostInvariant(t *testing.T) {
	inputs := []string{"Foo.esp", "bar.esm.ghost", "BAZ.ESP"}
	for _, s := range inputs {
		n1 := Normalize(s)
		n2 := Normalize(n1)
		if n1 != n2 {
			t.Errorf("Normalize not idempotent for %q: %q != %q", s, n1, n2)
		}
		if Normalize(s+".ghost") != Normalize(s) {
			t.Errorf("Normalize(%q + .ghost) != Normalize(%q)", s, s)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("Foo.esp", "foo.esp.ghost") {
		t.Error("expected Foo.esp to equal foo.esp.ghost")
	}
	if Equal("Foo.esp", "Bar.esp") {
		t.Error("expected Foo.esp to not equal Bar.esp")
	}
}

func TestCRC32Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.esp")
	if err := os.WriteFile(path, []byte("some plugin bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	a, err := CRC32(path)
	if err != nil {
		t.Fatalf("CRC32: %v", err)
	}
	b, err := CRC32(path)
	if err != nil {
		t.Fatalf("CRC32: %v", err)
	}
	if a != b {
		t.Errorf("expected CRC32 to be deterministic, got %d and %d", a, b)
	}
	if a == 0 {
		t.Error("expected a non-zero CRC for non-empty content")
	}
}

func TestCRC32MissingFile(t *testing.T) {
	if _, err := CRC32(filepath.Join(t.TempDir(), "missing.esp")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
