// Package lootcore is the public API surface: load_plugins, sort,
// plugin_metadata, messages, and the is_valid/is_active/loads_archive
// predicates spec §6 names as the core's external interface.
package lootcore

import (
	"github.com/pluginsort/lootcore/internal/cache"
	"github.com/pluginsort/lootcore/internal/environment"
	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
	"github.com/pluginsort/lootcore/internal/metadata"
	"github.com/pluginsort/lootcore/internal/pluginfile"
	"github.com/pluginsort/lootcore/internal/pluginreader"
	"github.com/pluginsort/lootcore/internal/sorter"
)

// Re-export the error taxonomy and game-kind enumeration so embedders
// never need to import internal/ packages directly.
type (
	ErrorKind = errs.Kind
	GameKind  = environment.Kind
)

const (
	ErrFileAccess      = errs.FileAccess
	ErrParseFormat     = errs.ParseFormat
	ErrConditionSyntax = errs.ConditionSyntax
	ErrSorting         = errs.Sorting
	ErrInvalidArgument = errs.InvalidArgument

	TES4   = environment.TES4
	TES5   = environment.TES5
	TES5SE = environment.TES5SE
	FO3    = environment.FO3
	FONV   = environment.FONV
	FO4    = environment.FO4
)

// Message, MessageContent, and PluginMetadata are re-exported directly:
// the public API hands these back to the caller unmodified.
type (
	Message            = metadata.Message
	MessageContent     = metadata.MessageContent
	MessageType        = metadata.MessageType
	PluginMetadata     = metadata.PluginMetadata
	File               = metadata.File
	Tag                = metadata.Tag
	Location           = metadata.Location
	PluginCleaningData = metadata.PluginCleaningData
)

// Plugin is the parsed, sorted-order view of one plugin handed back by
// Sort.
type Plugin struct {
	Name               string
	IsMaster           bool
	Masters            []string
	Description        string
	Version            string
	IsEmpty            bool
	LoadsArchive       bool
	CRC                uint32
	NumOverrideRecords uint32
	IsActive           bool
}

// Core is the library's entry point: one per (data path, game, active set,
// existing order) environment.
type Core struct {
	env        *environment.Environment
	cache      *pluginreader.Cache
	masterlist *metadata.List
	userlist   *metadata.List
	messages   []Message
}

// New constructs a Core bound to a caller-supplied environment.
func New(dataPath string, game GameKind, active, existingOrder []string) (*Core, error) {
	env, err := environment.New(dataPath, game, active, existingOrder)
	if err != nil {
		return nil, err
	}
	return &Core{
		env:        env,
		cache:      pluginreader.New(env),
		masterlist: metadata.NewList(nil),
		userlist:   metadata.NewList(nil),
	}, nil
}

// SetDiskCache attaches a cross-process CRC/override-count cache to the
// Core's plugin cache.
func (c *Core) SetDiskCache(dc *cache.Cache) { c.cache.SetDiskCache(dc) }

// LoadMasterlist parses a masterlist YAML document.
func (c *Core) LoadMasterlist(path string) error {
	l, err := metadata.LoadDocument(path)
	if err != nil {
		return err
	}
	c.masterlist = l
	return nil
}

// LoadUserlist parses a userlist YAML document.
func (c *Core) LoadUserlist(path string) error {
	l, err := metadata.LoadDocument(path)
	if err != nil {
		return err
	}
	c.userlist = l
	return nil
}

// LoadPlugins parses plugins from the environment's data path, caching the
// results keyed by normalized name.
func (c *Core) LoadPlugins(names []string, headerOnly bool) error {
	return c.cache.Load(names, headerOnly)
}

// Sort builds the plugin graph and returns the total load order, or a
// Sorting-kind error naming a detected cycle.
func (c *Core) Sort(targetLanguage string) ([]Plugin, error) {
	g, err := sorter.NewGraph(c.cache.All(), c.masterlist, c.userlist, c.cache)
	if err != nil {
		return nil, err
	}

	ordered, err := g.Sort(existingOrderNames(c.env))
	if err != nil {
		return nil, err
	}

	c.messages = nil
	for _, v := range g.VerticesInOrder(ordered) {
		for _, m := range v.Messages {
			c.messages = append(c.messages, localize(m, targetLanguage))
		}
	}

	out := make([]Plugin, 0, len(ordered))
	for _, p := range ordered {
		out = append(out, Plugin{
			Name:               p.Name,
			IsMaster:           p.IsMaster,
			Masters:            p.Masters,
			Description:        p.Description,
			Version:            p.Version,
			IsEmpty:            p.IsEmpty,
			LoadsArchive:       p.LoadsArchive,
			CRC:                p.CRC,
			NumOverrideRecords: p.NumOverrideRecords,
			IsActive:           p.IsActive,
		})
	}
	return out, nil
}

// PluginMetadataFor returns the masterlist entry for name merged with its
// userlist entry (when that entry is enabled and not name-only), computed
// on each call. Conditions are not evaluated, so entries gated by a false
// condition are still included, and the result does not depend on Sort.
func (c *Core) PluginMetadataFor(name string) PluginMetadata {
	merged := c.masterlist.FindPlugin(identity.Normalize(name))
	userEntry := c.userlist.FindPlugin(identity.Normalize(name))
	if userEntry.Enabled && !userEntry.HasNameOnly() {
		merged = metadata.Merge(merged, userEntry)
	}
	return merged
}

// Messages returns every diagnostic message accumulated by the most
// recent Sort call.
func (c *Core) Messages() []Message { return c.messages }

// IsValid reports whether name parses as at least a header and has a
// recognized extension.
func (c *Core) IsValid(name string) bool {
	path, err := c.env.ResolvePath(name)
	if err != nil {
		return false
	}
	return pluginfile.IsValid(path)
}

// IsActive reports whether name is in the active-plugins set.
func (c *Core) IsActive(name string) bool { return c.cache.IsActive(name) }

// LoadsArchive reports whether name has a paired archive file, per the
// cached plugin's LoadsArchive field.
func (c *Core) LoadsArchive(name string) bool {
	p, ok := c.cache.Get(name)
	return ok && p.LoadsArchive
}

func existingOrderNames(env *environment.Environment) []string {
	// The environment keeps the existing order as supplied; the sorter's
	// tie-break phase takes it as a name list and builds its own rank map.
	return env.ExistingOrder()
}

func localize(m Message, target string) Message {
	c := m.ContentFor(target)
	return Message{Type: m.Type, Contents: []MessageContent{c}, Condition: m.Condition}
}
