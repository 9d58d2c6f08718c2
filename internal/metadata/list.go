package metadata

import (
	"os"

	"github.com/pluginsort/lootcore/internal/errs"
	"gopkg.in/yaml.v3"
)

// List is an ordered collection of PluginMetadata entries, supporting
// literal-then-regex lookup with deterministic results (spec §4.6).
type List struct {
	entries []PluginMetadata
}

// NewList wraps entries, preserving their document order.
func NewList(entries []PluginMetadata) *List {
	return &List{entries: entries}
}

// Entries returns the list's entries in document order.
func (l *List) Entries() []PluginMetadata { return l.entries }

// FindPlugin looks up metadata for normalizedName: first the literal
// entries in order, then the regex entries in order; if nothing matches,
// a fresh name-only entry is returned.
func (l *List) FindPlugin(normalizedName string) PluginMetadata {
	for _, e := range l.entries {
		if !e.IsRegexName() && e.MatchesPluginName(normalizedName) {
			return e
		}
	}
	for _, e := range l.entries {
		if e.IsRegexName() && e.MatchesPluginName(normalizedName) {
			return e
		}
	}
	return NewNameOnly(normalizedName)
}

// document is the on-disk YAML shape for a masterlist/userlist file, per
// spec §6's format-neutral metadata file contract.
type document struct {
	Plugins []yamlPlugin `yaml:"plugins"`
}

type yamlPlugin struct {
	Name           string               `yaml:"name"`
	Enabled        *bool                `yaml:"enabled,omitempty"`
	Priority       *int                 `yaml:"priority,omitempty"`
	GlobalPriority *int                 `yaml:"global_priority,omitempty"`
	After          []File               `yaml:"after,omitempty"`
	Req            []File               `yaml:"req,omitempty"`
	Inc            []File               `yaml:"inc,omitempty"`
	Msg            []yamlMessage        `yaml:"msg,omitempty"`
	Tag            []yamlTag            `yaml:"tag,omitempty"`
	Dirty          []PluginCleaningData `yaml:"dirty,omitempty"`
	Clean          []PluginCleaningData `yaml:"clean,omitempty"`
	URL            []Location           `yaml:"url,omitempty"`
}

type yamlMessage struct {
	Type      string           `yaml:"type"`
	Content   []MessageContent `yaml:"content"`
	Condition string           `yaml:"condition,omitempty"`
}

type yamlTag struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition,omitempty"`
}

// LoadDocument parses a masterlist or userlist YAML file into a List.
func LoadDocument(path string) (*List, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileAccess, "read metadata document", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.Wrap(errs.ParseFormat, "parse metadata document "+path, err)
	}
	entries := make([]PluginMetadata, 0, len(doc.Plugins))
	for _, p := range doc.Plugins {
		entries = append(entries, fromYAML(p))
	}
	return NewList(entries), nil
}

func fromYAML(p yamlPlugin) PluginMetadata {
	m := PluginMetadata{Name: p.Name, Enabled: true}
	if p.Enabled != nil {
		m.Enabled = *p.Enabled
	}
	if p.Priority != nil {
		m.LocalPriority = Priority{Value: *p.Priority, IsExplicit: true}
	}
	if p.GlobalPriority != nil {
		m.GlobalPriority = Priority{Value: *p.GlobalPriority, IsExplicit: true}
	}
	m.LoadAfter = p.After
	m.Requirements = p.Req
	m.Incompatibilities = p.Inc
	for _, t := range p.Tag {
		name := t.Name
		isAdd := true
		if len(name) > 0 && name[0] == '-' {
			isAdd = false
			name = name[1:]
		}
		m.Tags = append(m.Tags, Tag{Name: name, IsAddition: isAdd, Condition: t.Condition})
	}
	for _, msg := range p.Msg {
		m.Messages = append(m.Messages, Message{
			Type:      MessageType(msg.Type),
			Contents:  msg.Content,
			Condition: msg.Condition,
		})
	}
	m.DirtyInfo = p.Dirty
	m.CleanInfo = p.Clean
	m.Locations = p.URL
	return m
}

// SaveDocument serializes a List back to YAML, the emission half of
// spec §6's metadata file contract.
func SaveDocument(path string, l *List) error {
	doc := document{}
	for _, m := range l.entries {
		doc.Plugins = append(doc.Plugins, toYAML(m))
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.ParseFormat, "marshal metadata document", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return errs.Wrap(errs.FileAccess, "write metadata document", err)
	}
	return nil
}

func toYAML(m PluginMetadata) yamlPlugin {
	p := yamlPlugin{Name: m.Name}
	if !m.Enabled {
		b := false
		p.Enabled = &b
	}
	if m.LocalPriority.IsExplicit {
		v := m.LocalPriority.Value
		p.Priority = &v
	}
	if m.GlobalPriority.IsExplicit {
		v := m.GlobalPriority.Value
		p.GlobalPriority = &v
	}
	p.After = m.LoadAfter
	p.Req = m.Requirements
	p.Inc = m.Incompatibilities
	for _, t := range m.Tags {
		name := t.Name
		if !t.IsAddition {
			name = "-" + name
		}
		p.Tag = append(p.Tag, yamlTag{Name: name, Condition: t.Condition})
	}
	for _, msg := range m.Messages {
		p.Msg = append(p.Msg, yamlMessage{
			Type:      string(msg.Type),
			Content:   msg.Contents,
			Condition: msg.Condition,
		})
	}
	p.Dirty = m.DirtyInfo
	p.Clean = m.CleanInfo
	p.URL = m.Locations
	return p
}
