package pluginfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pluginsort/lootcore/internal/environment"
)

type testSubrecord struct {
	sig  string
	data []byte
}

func encodeSubrecords(subs []testSubrecord) []byte {
	var buf bytes.Buffer
	for _, s := range subs {
		buf.WriteString(s.sig)
		var size [2]byte
		binary.LittleEndian.PutUint16(size[:], uint16(len(s.data)))
		buf.Write(size[:])
		buf.Write(s.data)
	}
	return buf.Bytes()
}

// buildTES4 assembles a minimal, valid TES4 container: a header record
// carrying the given subrecords, optionally followed by one trailing
// non-group record (to exercise the full-record walk).
func buildTES4(flags uint32, numRecords uint32, subs []testSubrecord, trailingFormID uint32, trailingSig string) []byte {
	var out bytes.Buffer

	hedrSub := testSubrecord{sig: "HEDR", data: make([]byte, 12)}
	binary.LittleEndian.PutUint32(hedrSub.data[4:8], numRecords)
	all := append([]testSubrecord{hedrSub}, subs...)
	body := encodeSubrecords(all)

	var hdr [24]byte
	copy(hdr[0:4], "TES4")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(hdr[8:12], flags)
	out.Write(hdr[:])
	out.Write(body)

	if trailingSig != "" {
		var rh [24]byte
		copy(rh[0:4], trailingSig)
		binary.LittleEndian.PutUint32(rh[4:8], 0) // dataSize
		binary.LittleEndian.PutUint32(rh[12:16], trailingFormID)
		out.Write(rh[:])
	}

	return out.Bytes()
}

func writePlugin(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	desc := "Test plugin {{BASH: Relev, -Delev}} version: 1.2.3\x00"
	data := buildTES4(flagMaster, 2, []testSubrecord{
		{sig: "CNAM", data: []byte("Me\x00")},
		{sig: "SNAM", data: []byte(desc)},
		{sig: "MAST", data: []byte("Skyrim.esm\x00")},
	}, 0, "")
	writePlugin(t, dir, "Test.esm", data)

	p, err := Read(dir, "Test.esm", environment.TES5SE, true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !p.IsMaster {
		t.Error("expected the master flag to be set")
	}
	if len(p.Masters) != 1 || p.Masters[0] != "skyrim.esm" {
		t.Errorf("expected one normalized master, got %+v", p.Masters)
	}
	if p.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", p.Version)
	}
	if len(p.ExtractedTags) != 2 {
		t.Fatalf("expected 2 extracted tags, got %+v", p.ExtractedTags)
	}
	if p.ExtractedTags[0].Name != "Relev" || !p.ExtractedTags[0].IsAddition {
		t.Errorf("expected first tag Relev addition, got %+v", p.ExtractedTags[0])
	}
	if p.ExtractedTags[1].Name != "Delev" || p.ExtractedTags[1].IsAddition {
		t.Errorf("expected second tag Delev removal, got %+v", p.ExtractedTags[1])
	}
	if p.FullyLoaded {
		t.Error("header-only read should not set FullyLoaded")
	}
}

func TestReadFullComputesCRCAndOverrides(t *testing.T) {
	dir := t.TempDir()
	data := buildTES4(0, 1, []testSubrecord{
		{sig: "MAST", data: []byte("Skyrim.esm\x00")},
	}, 0x00000123, "WEAP") // modIndex 0 references the single declared master: an override.
	writePlugin(t, dir, "Test.esp", data)

	p, err := Read(dir, "Test.esp", environment.TES5SE, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !p.FullyLoaded {
		t.Fatal("expected FullyLoaded after a full read")
	}
	if p.CRC == 0 {
		t.Error("expected a non-zero CRC after a full read")
	}
	if p.NumOverrideRecords != 1 {
		t.Errorf("NumOverrideRecords = %d, want 1", p.NumOverrideRecords)
	}
	if len(p.RecordIDs) != 1 {
		t.Errorf("expected exactly one record id, got %d", len(p.RecordIDs))
	}
}

func TestReadGhostedResolution(t *testing.T) {
	dir := t.TempDir()
	data := buildTES4(0, 0, nil, 0, "")
	writePlugin(t, dir, "Ghosted.esp.ghost", data)

	p, err := Read(dir, "Ghosted.esp", environment.TES5SE, true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if p.Name != "ghosted.esp" {
		t.Errorf("Name = %q, want ghosted.esp", p.Name)
	}
}

func TestReadRecoversFromMalformedHeader(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "Bad.esp", []byte("not a plugin"))

	p, err := Read(dir, "Bad.esp", environment.TES5SE, true)
	if err != nil {
		t.Fatalf("Read should recover malformed headers locally, got error: %v", err)
	}
	if len(p.StatusMessages) == 0 {
		t.Error("expected a warn status message for a malformed header")
	}
}

func TestIsValid(t *testing.T) {
	dir := t.TempDir()
	data := buildTES4(0, 0, nil, 0, "")
	writePlugin(t, dir, "Good.esp", data)
	writePlugin(t, dir, "Bad.txt", data)

	if !IsValid(filepath.Join(dir, "Good.esp")) {
		t.Error("expected Good.esp to be valid")
	}
	if IsValid(filepath.Join(dir, "Bad.txt")) {
		t.Error("expected Bad.txt to be rejected by extension")
	}
}
