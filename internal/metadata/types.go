// Package metadata implements the value types, condition evaluator, and
// merge/diff algebra over per-plugin metadata (spec components C3-C6).
package metadata

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pluginsort/lootcore/internal/identity"
)

// File is a reference to another plugin, with a display string and a
// gating condition. Identity is by normalized name only.
type File struct {
	Name      string `yaml:"name"`
	Display   string `yaml:"display,omitempty"`
	Condition string `yaml:"condition,omitempty"`
}

// NormalizedName returns the normalized identity of the reference.
func (f File) NormalizedName() string { return identity.Normalize(f.Name) }

// EqualFile reports whether two Files share identity.
func EqualFile(a, b File) bool { return a.NormalizedName() == b.NormalizedName() }

// LessFile orders Files by normalized name.
func LessFile(a, b File) bool { return a.NormalizedName() < b.NormalizedName() }

// Tag is a compatibility-patcher hint, additively or subtractively attached
// to a plugin.
type Tag struct {
	Name       string `yaml:"name"`
	IsAddition bool   `yaml:"-"`
	Condition  string `yaml:"condition,omitempty"`
}

// identityKey distinguishes an addition tag from a same-named removal tag.
func (t Tag) identityKey() string {
	prefix := "-"
	if t.IsAddition {
		prefix = "+"
	}
	return prefix + strings.ToLower(t.Name)
}

// EqualTag reports whether two Tags are the same addition-or-removal entry.
func EqualTag(a, b Tag) bool { return a.identityKey() == b.identityKey() }

// LessTag orders Tags by name, then addition-before-removal, then condition.
func LessTag(a, b Tag) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	if a.IsAddition != b.IsAddition {
		return a.IsAddition // addition < removal
	}
	return a.Condition < b.Condition
}

// Location is an external download/info URL for a plugin.
type Location struct {
	URL  string `yaml:"link"`
	Name string `yaml:"name,omitempty"`
}

// EqualLocation reports whether two Locations share a URL.
func EqualLocation(a, b Location) bool {
	return strings.EqualFold(a.URL, b.URL)
}

// LessLocation orders Locations case-insensitively by URL.
func LessLocation(a, b Location) bool {
	return strings.ToLower(a.URL) < strings.ToLower(b.URL)
}

// MessageContent is one localized variant of a message.
type MessageContent struct {
	Text     string `yaml:"text"`
	Language string `yaml:"lang,omitempty"`
}

const EnglishLanguage = "en"

// EqualContent reports whether two contents carry the same text.
func EqualContent(a, b MessageContent) bool {
	return strings.EqualFold(a.Text, b.Text)
}

// LessContent orders contents case-insensitively by text.
func LessContent(a, b MessageContent) bool {
	return strings.ToLower(a.Text) < strings.ToLower(b.Text)
}

// MessageType is the severity of a Message.
type MessageType string

const (
	Say  MessageType = "say"
	Warn MessageType = "warn"
	Err  MessageType = "error"
)

// Message carries one or more localized content variants gated by a
// condition.
type Message struct {
	Type      MessageType      `yaml:"type"`
	Contents  []MessageContent `yaml:"content"`
	Condition string           `yaml:"condition,omitempty"`
}

// FirstText returns the first content's text, the sort key spec §4.3
// assigns to Message.
func (m Message) FirstText() string {
	if len(m.Contents) == 0 {
		return ""
	}
	return m.Contents[0].Text
}

// HasEnglish reports whether m carries an English-language content variant,
// the invariant required whenever more than one variant is present.
func (m Message) HasEnglish() bool {
	if len(m.Contents) <= 1 {
		return true
	}
	for _, c := range m.Contents {
		if c.Language == EnglishLanguage {
			return true
		}
	}
	return false
}

// ContentFor selects the localized content variant for target, falling
// back to the single content if there is only one, else to English.
func (m Message) ContentFor(target string) MessageContent {
	if len(m.Contents) == 1 {
		return m.Contents[0]
	}
	var english MessageContent
	for _, c := range m.Contents {
		if c.Language == target {
			return c
		}
		if c.Language == EnglishLanguage {
			english = c
		}
	}
	return english
}

// messageSortKey is the (type, first-content-text) key NewMetadata's
// message diff sorts by, pinning determinism independent of input order.
func messageSortKey(m Message) string {
	return string(m.Type) + "\x00" + strings.ToLower(m.FirstText())
}

func sortMessages(msgs []Message) []Message {
	out := append([]Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		return messageSortKey(out[i]) < messageSortKey(out[j])
	})
	return out
}

// PluginCleaningData records a "dirty" or "clean" verdict for one exact
// file content, identified by CRC.
type PluginCleaningData struct {
	CRC             uint32           `yaml:"crc"`
	Utility         string           `yaml:"util"`
	ITMs            uint32           `yaml:"itm,omitempty"`
	DeletedRefs     uint32           `yaml:"udr,omitempty"`
	DeletedNavmeshes uint32          `yaml:"nav,omitempty"`
	Info            []MessageContent `yaml:"info,omitempty"`
}

// EqualCleaningData reports whether two records describe the same file
// content.
func EqualCleaningData(a, b PluginCleaningData) bool { return a.CRC == b.CRC }

// LessCleaningData orders cleaning records by CRC.
func LessCleaningData(a, b PluginCleaningData) bool { return a.CRC < b.CRC }

// ToMessage derives a diagnostic Message from a cleaning data record, per
// spec §4.3: a single pluralized sentence naming whichever of
// itms/deleted_refs/deleted_navmeshes are non-zero, with info variants
// prefixed by that sentence when present.
func (d PluginCleaningData) ToMessage() Message {
	var parts []string
	if d.ITMs > 0 {
		parts = append(parts, pluralize(d.ITMs, "identical to master record", "identical to master records"))
	}
	if d.DeletedRefs > 0 {
		parts = append(parts, pluralize(d.DeletedRefs, "deleted reference", "deleted references"))
	}
	if d.DeletedNavmeshes > 0 {
		parts = append(parts, pluralize(d.DeletedNavmeshes, "deleted navmesh", "deleted navmeshes"))
	}
	summary := d.Utility + " found "
	if len(parts) == 0 {
		summary += "no issues"
	} else {
		summary += strings.Join(parts, ", ")
	}
	summary += "."

	if len(d.Info) == 0 {
		return Message{Type: Warn, Contents: []MessageContent{{Text: summary, Language: EnglishLanguage}}}
	}
	contents := make([]MessageContent, len(d.Info))
	for i, c := range d.Info {
		contents[i] = MessageContent{Text: summary + " " + c.Text, Language: c.Language}
	}
	return Message{Type: Warn, Contents: contents}
}

func pluralize(n uint32, singular, plural string) string {
	word := plural
	if n == 1 {
		word = singular
	}
	return strconv.FormatUint(uint64(n), 10) + " " + word
}

// Scope distinguishes local (conflict-scoped) from global priority.
type Scope int

const (
	Local Scope = iota
	Global
)

// Priority is a bounded signed integer paired with an explicit flag. Its
// scope (local or global) is given by the PluginMetadata field holding it.
type Priority struct {
	Value      int
	IsExplicit bool
}

// Dominates reports whether p is strictly greater than other as a
// priority value; non-explicit priorities act as zero.
func (p Priority) Dominates(other Priority) bool {
	pv, ov := 0, 0
	if p.IsExplicit {
		pv = p.Value
	}
	if other.IsExplicit {
		ov = other.Value
	}
	return pv > ov
}
