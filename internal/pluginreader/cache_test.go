package pluginreader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pluginsort/lootcore/internal/environment"
)

// minimalTES4 builds the smallest valid TES4 container: a header record with
// a single HEDR subrecord declaring numRecords, no groups or data records.
func minimalTES4(numRecords uint32) []byte {
	hedr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hedr[4:8], numRecords)

	body := make([]byte, 0, 6+len(hedr))
	body = append(body, []byte("HEDR")...)
	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(hedr)))
	body = append(body, size[:]...)
	body = append(body, hedr...)

	var hdr [24]byte
	copy(hdr[0:4], "TES4")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(body)))

	return append(hdr[:], body...)
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPopulatesCacheDeterministically(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Skyrim.esm", minimalTES4(1))
	writeFile(t, dir, "Dawnguard.esm", minimalTES4(1))
	writeFile(t, dir, "Plugin.esp", minimalTES4(1))

	env, err := environment.New(dir, environment.TES5SE, []string{"Skyrim.esm", "Plugin.esp"}, nil)
	if err != nil {
		t.Fatalf("environment.New: %v", err)
	}

	c := New(env)
	if err := c.Load([]string{"Skyrim.esm", "Dawnguard.esm", "Plugin.esp"}, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	all := c.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 loaded plugins, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Errorf("expected deterministic alphabetical iteration order, got %v then %v", all[i-1].Name, all[i].Name)
		}
	}

	if !c.IsActive("plugin.esp") {
		t.Error("expected Plugin.esp to report active")
	}
	if c.IsActive("dawnguard.esm") {
		t.Error("expected Dawnguard.esm to report inactive")
	}

	if _, ok := c.Get("skyrim.esm"); !ok {
		t.Error("expected Skyrim.esm to be retrievable by normalized name")
	}
}

func TestLoadSkipsInvalidCandidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Good.esp", minimalTES4(0))
	writeFile(t, dir, "Bad.esp", []byte("not a plugin at all"))

	env, err := environment.New(dir, environment.TES5SE, nil, nil)
	if err != nil {
		t.Fatalf("environment.New: %v", err)
	}
	c := New(env)
	if err := c.Load([]string{"Good.esp", "Bad.esp", "Missing.esp"}, true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Get("good.esp"); !ok {
		t.Error("expected Good.esp to load")
	}
	if len(c.All()) != 1 {
		t.Errorf("expected only the one valid plugin to load, got %d", len(c.All()))
	}
}
