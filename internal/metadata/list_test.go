package metadata

import (
	"path/filepath"
	"testing"
)

func TestFindPluginLiteralBeforeRegex(t *testing.T) {
	l := NewList([]PluginMetadata{
		NewNameOnly(`Armor.*\.esp`),
		{Name: "ArmorPlus.esp", Enabled: true, Tags: []Tag{{Name: "Relev", IsAddition: true}}},
	})
	got := l.FindPlugin("armorplus.esp")
	if len(got.Tags) != 1 {
		t.Fatalf("expected the literal entry to win over the regex entry, got %+v", got)
	}
}

func TestFindPluginFallsBackToNameOnly(t *testing.T) {
	l := NewList(nil)
	got := l.FindPlugin("unknown.esp")
	if !got.HasNameOnly() || got.Name != "unknown.esp" {
		t.Errorf("expected a name-only entry for an unknown plugin, got %+v", got)
	}
}

func TestSaveThenLoadDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masterlist.yaml")

	original := NewList([]PluginMetadata{
		{
			Name:          "Dawnguard.esm",
			Enabled:       true,
			LocalPriority: Priority{Value: 5, IsExplicit: true},
			Tags:          []Tag{{Name: "Relev", IsAddition: true}, {Name: "Delev", IsAddition: false}},
			LoadAfter:     []File{{Name: "Skyrim.esm"}},
			Messages: []Message{
				{Type: Warn, Contents: []MessageContent{{Text: "check for updates", Language: EnglishLanguage}}},
			},
		},
	})

	if err := SaveDocument(path, original); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	loaded, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	entries := loaded.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Name != "Dawnguard.esm" || !got.Enabled || got.LocalPriority.Value != 5 {
		t.Errorf("round-tripped entry mismatch: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0].Name != "Relev" || !got.Tags[0].IsAddition {
		t.Errorf("expected Relev addition tag to survive round trip, got %+v", got.Tags)
	}
	if len(got.Tags) > 1 && (got.Tags[1].Name != "Delev" || got.Tags[1].IsAddition) {
		t.Errorf("expected Delev removal tag to survive round trip, got %+v", got.Tags)
	}
	if len(got.LoadAfter) != 1 || got.LoadAfter[0].Name != "Skyrim.esm" {
		t.Errorf("expected load-after entry to survive round trip, got %+v", got.LoadAfter)
	}
}
