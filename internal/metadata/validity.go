package metadata

import "fmt"

// filterTag is the special compatibility tag that suppresses
// requirement-inactivity diagnostics for a plugin, per spec §4.9.
const filterTag = "Filter"

// PluginFacts is the minimal plugin-side information ValidityMessages
// needs, kept independent of pluginfile to avoid a dependency cycle.
type PluginFacts struct {
	Name     string
	IsActive bool
	CRC      uint32
}

// PresenceChecker answers whether a referenced file exists, is cached,
// and/or is active, the same questions the condition evaluator asks.
type PresenceChecker interface {
	HasPlugin(normalizedName string) bool
	Exists(relPath string) bool
	IsActive(normalizedName string) bool
}

// ValidityMessages derives the diagnostic messages C9 specifies for one
// plugin's merged, evaluated metadata: missing requirements, present
// incompatibilities, inactive requirements, and matching dirty info.
func ValidityMessages(plugin PluginFacts, m PluginMetadata, p PresenceChecker) []Message {
	var out []Message
	hasFilterTag := hasTag(m.Tags, filterTag)

	for _, req := range m.Requirements {
		if present(req, p) {
			continue
		}
		out = append(out, errorMessage(fmt.Sprintf("This plugin requires %q to be installed, but it is missing.", displayName(req))))
	}

	for _, inc := range m.Incompatibilities {
		if !present(inc, p) {
			continue
		}
		if !p.IsActive(inc.NormalizedName()) {
			continue
		}
		out = append(out, errorMessage(fmt.Sprintf("This plugin is incompatible with %q, which is also present.", displayName(inc))))
	}

	if plugin.IsActive && !hasFilterTag {
		for _, req := range m.Requirements {
			if !present(req, p) {
				continue
			}
			if p.IsActive(req.NormalizedName()) {
				continue
			}
			out = append(out, errorMessage(fmt.Sprintf("This plugin requires %q to be active.", displayName(req))))
		}
	}

	for _, d := range m.DirtyInfo {
		if d.CRC == plugin.CRC {
			out = append(out, d.ToMessage())
		}
	}

	return out
}

func present(f File, p PresenceChecker) bool {
	norm := f.NormalizedName()
	return p.HasPlugin(norm) || p.Exists(f.Name) || p.Exists(f.Name+".ghost")
}

func hasTag(tags []Tag, name string) bool {
	for _, t := range tags {
		if t.IsAddition && t.Name == name {
			return true
		}
	}
	return false
}

func displayName(f File) string {
	if f.Display != "" {
		return f.Display
	}
	return f.Name
}

func errorMessage(text string) Message {
	return Message{Type: Err, Contents: []MessageContent{{Text: text, Language: EnglishLanguage}}}
}
