// Package pluginreader implements the plugin cache and game context (spec
// C7): a normalized-name-keyed store of parsed plugins, parallel
// header/full loading balanced by file size, and the Resolver seam the
// condition evaluator (C4) reads through.
package pluginreader

import (
	"context"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dustin/go-humanize"
	"github.com/pluginsort/lootcore/internal/cache"
	"github.com/pluginsort/lootcore/internal/environment"
	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
	"github.com/pluginsort/lootcore/internal/pluginfile"
)

// headerCacheSize bounds the in-process header-only parse cache; a
// typical load order is a few hundred plugins, so this comfortably covers
// re-parsing the same file within one process lifetime without growing
// unbounded across repeated Load calls for different data paths.
const headerCacheSize = 2048

type headerCacheKey struct {
	path string
	size int64
	mtimeUnixNano int64
}

// Cache holds loaded plugins keyed by normalized name and exposes the game
// context (data path, game kind, active set, existing order).
type Cache struct {
	env *environment.Environment

	mu          sync.RWMutex
	plugins     map[string]*pluginfile.Plugin
	order       []string // insertion order, for deterministic iteration
	fullyLoaded bool

	headerCache *lru.Cache[headerCacheKey, *pluginfile.Plugin]
	diskCache   *cache.Cache
}

// New constructs an empty Cache bound to env.
func New(env *environment.Environment) *Cache {
	hc, _ := lru.New[headerCacheKey, *pluginfile.Plugin](headerCacheSize)
	return &Cache{env: env, plugins: make(map[string]*pluginfile.Plugin), headerCache: hc}
}

// SetDiskCache attaches a cross-process SQLite cache of CRC and
// override-record-count results, consulted on full loads before falling
// back to re-parsing the whole file. A cache hit skips the record walk
// entirely, so RecordIDs is left empty for overlap-edge purposes; only the
// override count carries over. Cache it once record-id granularity is
// needed for AddOverlapEdges's plugin-pair overlap check.

func (c *Cache) SetDiskCache(dc *cache.Cache) { c.diskCache = dc }

// DataPath returns the absolute directory containing plugin files.
func (c *Cache) DataPath() string { return c.env.DataPath }

// IsActive delegates to the environment, falling back to the cached
// plugin's own flag if the environment has no opinion.
func (c *Cache) IsActive(name string) bool {
	norm := identity.Normalize(name)
	if c.env.IsActive(norm) {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.plugins[norm]; ok {
		return p.IsActive
	}
	return false
}

// ActiveLoadOrderIndex returns name's rank among active plugins in the
// existing order, or (0, false) if the plugin is not active.
func (c *Cache) ActiveLoadOrderIndex(name string) (int, bool) {
	norm := identity.Normalize(name)
	if !c.IsActive(norm) {
		return 0, false
	}
	rank := 0
	for _, n := range c.env.ExistingOrder() {
		nn := identity.Normalize(n)
		if nn == norm {
			return rank, true
		}
		if c.IsActive(nn) {
			rank++
		}
	}
	return 0, false
}

// Get returns the cached plugin for name, if loaded.
func (c *Cache) Get(name string) (*pluginfile.Plugin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plugins[identity.Normalize(name)]
	return p, ok
}

// All returns every cached plugin in insertion order.
func (c *Cache) All() []*pluginfile.Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*pluginfile.Plugin, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.plugins[n])
	}
	return out
}

// HasPlugin reports whether normalizedName is loaded in the cache.
func (c *Cache) HasPlugin(normalizedName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.plugins[normalizedName]
	return ok
}

// PluginCRC returns the cached plugin's CRC, if loaded and fully parsed.
func (c *Cache) PluginCRC(normalizedName string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plugins[normalizedName]
	if !ok || !p.FullyLoaded {
		return 0, false
	}
	return p.CRC, true
}

// PluginVersion returns the cached plugin's extracted version string.
func (c *Cache) PluginVersion(normalizedName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plugins[normalizedName]
	if !ok || p.Version == "" {
		return "", false
	}
	return p.Version, true
}

// Exists reports whether a path relative to the data path exists on disk.
func (c *Cache) Exists(rel string) bool { return c.env.Exists(rel) }

// ResolvePath joins rel against the data path, rejecting traversal.
func (c *Cache) ResolvePath(rel string) (string, error) { return c.env.ResolvePath(rel) }

// ListDir lists the basenames of files in a data-path-relative directory.
// An empty relDir lists the data path root itself.
func (c *Cache) ListDir(relDir string) ([]string, error) {
	dir, err := c.env.ResolvePath(relDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.FileAccess, "list directory "+relDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// CRCOfPath computes the CRC-32 of an absolute path, for condition()'s
// checksum() fallback when the path is not a cached plugin.
func (c *Cache) CRCOfPath(path string) (uint32, error) {
	return identity.CRC32(path)
}

// Load clears the cache and reloads plugins, parallelized across workers
// balanced by descending file size, per spec §4.7.
func (c *Cache) Load(names []string, headerOnly bool) error {
	masterFile, err := c.env.Game.MasterFile()
	if err != nil {
		return err
	}
	masterNorm := identity.Normalize(masterFile)

	type candidate struct {
		name string
		size int64
	}
	var candidates []candidate
	for _, n := range names {
		diskPath, _, rerr := pluginfile.ResolveOnDisk(c.env.DataPath, n)
		if rerr != nil || !pluginfile.IsValid(diskPath) {
			continue
		}
		info, statErr := os.Stat(diskPath)
		size := int64(0)
		if statErr == nil {
			size = info.Size()
		}
		candidates = append(candidates, candidate{name: n, size: size})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount > len(candidates) {
		workerCount = len(candidates)
	}
	if workerCount < 1 {
		workerCount = 1
	}

	partitions := make([][]candidate, workerCount)
	for i, cand := range candidates {
		w := i % workerCount
		partitions[w] = append(partitions[w], cand)
	}

	c.mu.Lock()
	c.plugins = make(map[string]*pluginfile.Plugin, len(candidates))
	c.order = nil
	c.mu.Unlock()

	var orderMu sync.Mutex
	var wg sync.WaitGroup
	for worker, part := range partitions {
		worker, part := worker, part
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sizeLoaded uint64
			for _, cand := range part {
				loadHeaderOnly := headerOnly || identity.Equal(cand.name, masterNorm)

				var key headerCacheKey
				if loadHeaderOnly {
					diskPath, _, rerr := pluginfile.ResolveOnDisk(c.env.DataPath, cand.name)
					if rerr == nil {
						if info, statErr := os.Stat(diskPath); statErr == nil {
							key = headerCacheKey{path: diskPath, size: info.Size(), mtimeUnixNano: info.ModTime().UnixNano()}
							if cached, ok := c.headerCache.Get(key); ok {
								cached.IsActive = c.env.IsActive(cached.Name)
								c.mu.Lock()
								c.plugins[cached.Name] = cached
								c.mu.Unlock()
								orderMu.Lock()
								c.order = append(c.order, cached.Name)
								orderMu.Unlock()
								sizeLoaded += uint64(cand.size)
								continue
							}
						}
					}
				}

				var diskKey string
				if !loadHeaderOnly && c.diskCache != nil {
					if diskPath, _, rerr := pluginfile.ResolveOnDisk(c.env.DataPath, cand.name); rerr == nil {
						if info, statErr := os.Stat(diskPath); statErr == nil {
							diskKey = cache.Key(diskPath, info.Size(), info.ModTime().UnixNano())
							if entry, getErr := c.diskCache.Get(context.Background(), diskKey); getErr == nil {
								hp, herr := pluginfile.Read(c.env.DataPath, cand.name, c.env.Game, true)
								if herr == nil {
									hp.CRC = entry.CRC
									hp.NumOverrideRecords = entry.NumOverrideRecords
									hp.FullyLoaded = true
									hp.IsActive = c.env.IsActive(hp.Name)
									sizeLoaded += uint64(cand.size)
									c.mu.Lock()
									c.plugins[hp.Name] = hp
									c.mu.Unlock()
									orderMu.Lock()
									c.order = append(c.order, hp.Name)
									orderMu.Unlock()
									continue
								}
							}
						}
					}
				}

				p, err := pluginfile.Read(c.env.DataPath, cand.name, c.env.Game, loadHeaderOnly)
				if err != nil {
					continue
				}
				p.IsActive = c.env.IsActive(p.Name)
				sizeLoaded += uint64(cand.size)

				if loadHeaderOnly && key != (headerCacheKey{}) {
					c.headerCache.Add(key, p)
				}
				if !loadHeaderOnly && c.diskCache != nil && diskKey != "" {
					c.diskCache.Set(context.Background(), diskKey, cache.Entry{CRC: p.CRC, NumOverrideRecords: p.NumOverrideRecords})
				}

				c.mu.Lock()
				c.plugins[p.Name] = p
				c.mu.Unlock()

				orderMu.Lock()
				c.order = append(c.order, p.Name)
				orderMu.Unlock()
			}
			log.Printf("pluginreader: worker %d loaded %s across %d plugins", worker, humanize.Bytes(sizeLoaded), len(part))
		}()
	}
	wg.Wait()

	// Deterministic iteration order regardless of worker completion order.
	c.mu.Lock()
	sort.Strings(c.order)
	c.fullyLoaded = !headerOnly
	c.mu.Unlock()

	return nil
}

// FullyLoaded reports whether the last Load call requested full parsing.
func (c *Cache) FullyLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fullyLoaded
}

// SummarizeSizes renders a human-readable total of the on-disk sizes of
// the loaded plugin files.
func (c *Cache) SummarizeSizes() string {
	var total uint64
	for _, p := range c.All() {
		path, _, err := pluginfile.ResolveOnDisk(c.env.DataPath, p.Name)
		if err != nil {
			continue
		}
		if info, statErr := os.Stat(path); statErr == nil {
			total += uint64(info.Size())
		}
	}
	return humanize.Bytes(total)
}

