// Package environment models the four capabilities the core consumes from
// its caller: a data path, a game kind, an active-plugins set, and an
// existing load order. It intentionally mirrors the teacher's hand-rolled
// env/.env loader rather than reaching for a config library, since this
// value is constructed directly by embedders as well as by cmd/ front ends.
package environment

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
)

// Kind is the closed enumeration of supported games.
type Kind string

const (
	TES4   Kind = "tes4"
	TES5   Kind = "tes5"
	TES5SE Kind = "tes5se"
	FO3    Kind = "fo3"
	FONV   Kind = "fonv"
	FO4    Kind = "fo4"
)

// MasterFile returns the game's distinguished always-master plugin name.
func (k Kind) MasterFile() (string, error) {
	switch k {
	case TES4:
		return "Oblivion.esm", nil
	case TES5, TES5SE:
		return "Skyrim.esm", nil
	case FO3:
		return "Fallout3.esm", nil
	case FONV:
		return "FalloutNV.esm", nil
	case FO4:
		return "Fallout4.esm", nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown game kind: "+string(k))
	}
}

// ArchiveExtension returns the game's BSA/BA2-style archive extension.
func (k Kind) ArchiveExtension() (string, error) {
	switch k {
	case FO4:
		return ".ba2", nil
	case TES4, TES5, TES5SE, FO3, FONV:
		return ".bsa", nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown game kind: "+string(k))
	}
}

// Valid reports whether k is one of the closed enumeration members.
func (k Kind) Valid() bool {
	switch k {
	case TES4, TES5, TES5SE, FO3, FONV, FO4:
		return true
	}
	return false
}

// Environment is the data path, game kind, active-plugin set, and existing
// load order supplied by the caller.
type Environment struct {
	DataPath     string
	Game         Kind
	active       map[string]bool
	existing     []string
	existingRank map[string]int
}

// New validates and constructs an Environment.
func New(dataPath string, game Kind, active, existing []string) (*Environment, error) {
	if !game.Valid() {
		return nil, errs.New(errs.InvalidArgument, "unknown game kind: "+string(game))
	}
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "resolve data path", err)
	}
	e := &Environment{
		DataPath:     abs,
		Game:         game,
		active:       make(map[string]bool, len(active)),
		existing:     append([]string(nil), existing...),
		existingRank: make(map[string]int, len(existing)),
	}
	for _, a := range active {
		e.active[identity.Normalize(a)] = true
	}
	for i, n := range existing {
		e.existingRank[identity.Normalize(n)] = i
	}
	return e, nil
}

// IsActive reports whether name is in the active-plugins set.
func (e *Environment) IsActive(name string) bool {
	return e.active[identity.Normalize(name)]
}

// ActiveCount returns the number of plugins marked active.
func (e *Environment) ActiveCount() int { return len(e.active) }

// ExistingOrder returns the existing load order as supplied to New.
func (e *Environment) ExistingOrder() []string {
	return append([]string(nil), e.existing...)
}

// ExistingOrderIndex returns name's index in the existing load order and
// true, or (0, false) if it is not present there.
func (e *Environment) ExistingOrderIndex(name string) (int, bool) {
	i, ok := e.existingRank[identity.Normalize(name)]
	return i, ok
}

// ResolvePath joins a relative path against the data path, rejecting
// traversal outside it. A leading ".." followed by another ".." is
// considered unsafe, per the condition evaluator's path-safety rule.
func (e *Environment) ResolvePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	parts := strings.Split(filepath.ToSlash(cleaned), "/")
	parentCount := 0
	for _, p := range parts {
		if p == ".." {
			parentCount++
			if parentCount >= 2 {
				return "", errs.New(errs.InvalidArgument, "unsafe path: "+rel)
			}
		}
	}
	return filepath.Join(e.DataPath, cleaned), nil
}

// Exists reports whether a path relative to the data path exists on disk.
func (e *Environment) Exists(rel string) bool {
	p, err := e.ResolvePath(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// LoadEnvFile parses a simple KEY=VALUE file in the teacher's .env style,
// returning a map of keys to values. Blank lines and lines starting with
// '#' are ignored.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileAccess, "open env file", err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		out[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.FileAccess, "scan env file", err)
	}
	return out, nil
}
