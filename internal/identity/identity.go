// Package identity implements name normalization and CRC-32 hashing, the
// primitives every other package keys plugin identity on.
package identity

import (
	"hash/crc32"
	"io"
	"os"
	"strings"

	"github.com/pluginsort/lootcore/internal/errs"
)

const ghostSuffix = ".ghost"

// Normalize lowercases s and strips every trailing ".ghost" suffix. It is
// the identity function for plugin names throughout the core: two names
// are the same plugin iff Normalize agrees.
func Normalize(name string) string {
	lower := strings.ToLower(name)
	for strings.HasSuffix(lower, ghostSuffix) {
		lower = strings.TrimSuffix(lower, ghostSuffix)
	}
	return lower
}

// Equal reports whether two plugin names identify the same plugin.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// StripGhost removes a trailing ".ghost" suffix without lowercasing,
// preserving the on-disk display case.
func StripGhost(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ghostSuffix) {
		return name[:len(name)-len(ghostSuffix)]
	}
	return name
}

// IsGhosted reports whether name carries the ".ghost" suffix.
func IsGhosted(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ghostSuffix)
}

// CRC32 computes the standard CRC-32 (IEEE polynomial) over a file's full
// byte content, reading in bounded chunks.
func CRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errs.Wrap(errs.FileAccess, "open file for crc", err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, 8192)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, errs.Wrap(errs.FileAccess, "read file for crc", rerr)
		}
	}
	return h.Sum32(), nil
}
