package pluginfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pluginsort/lootcore/internal/environment"
	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
)

var pluginExtensions = map[string]bool{".esp": true, ".esm": true, ".esl": true}

// IsValid is a side-effect-free check: the file has a recognized extension
// (optionally ".ghost"-suffixed) and its header parses.
func IsValid(path string) bool {
	ext := strings.ToLower(filepath.Ext(identity.StripGhost(path)))
	if !pluginExtensions[ext] {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = readRecordHeader(f)
	return err == nil
}

// ResolveOnDisk returns the actual on-disk path for a logical plugin name,
// transparently trying the ".ghost"-suffixed form when the literal name is
// absent, per spec §4.2.
func ResolveOnDisk(dataPath, name string) (path string, ghosted bool, err error) {
	plain := filepath.Join(dataPath, name)
	if _, statErr := os.Stat(plain); statErr == nil {
		return plain, false, nil
	}
	ghost := plain + ".ghost"
	if _, statErr := os.Stat(ghost); statErr == nil {
		return ghost, true, nil
	}
	return "", false, errs.New(errs.FileAccess, "plugin not found (plain or ghosted): "+name)
}

// Read parses a plugin. headerOnly selects between the cheap top-level
// parse and the full record/group walk that also computes CRC and
// override-record counts.
func Read(dataPath, name string, game environment.Kind, headerOnly bool) (*Plugin, error) {
	diskPath, ghosted, err := ResolveOnDisk(dataPath, name)
	if err != nil {
		return nil, err
	}
	_ = ghosted

	f, err := os.Open(diskPath)
	if err != nil {
		return nil, errs.Wrap(errs.FileAccess, "open plugin", err)
	}
	defer f.Close()

	p := &Plugin{Name: identity.Normalize(name)}

	hdr, subrecords, err := parseTop(f)
	if err != nil {
		p.StatusMessages = append(p.StatusMessages, StatusMessage{
			Type: "warn",
			Text: fmt.Sprintf("%s could not be parsed: %v", name, err),
		})
		return p, nil
	}

	p.IsMaster = hdr.flags&flagMaster != 0
	p.IsEmpty = hdr.numRecords == 0 && hdr.numGroups == 0

	for _, s := range subrecords {
		switch s.sig {
		case sigCNAM:
			// author, unused by the core
		case sigSNAM:
			p.Description = nullTerminated(s.data)
		case sigMAST:
			master := nullTerminated(s.data)
			if master != "" {
				p.Masters = append(p.Masters, identity.Normalize(master))
			}
		}
	}

	p.ExtractedTags = extractTags(p.Description)
	p.Version = extractVersion(p.Description)
	p.LoadsArchive = loadsArchive(dataPath, name, game)

	if !headerOnly {
		crc, err := identity.CRC32(diskPath)
		if err != nil {
			p.StatusMessages = append(p.StatusMessages, StatusMessage{
				Type: "warn", Text: fmt.Sprintf("could not compute crc for %s: %v", name, err),
			})
		} else {
			p.CRC = crc
		}

		recordIDs, overrides, err := walkFullRecords(diskPath, len(p.Masters))
		if err != nil {
			p.StatusMessages = append(p.StatusMessages, StatusMessage{
				Type: "warn", Text: fmt.Sprintf("%s could not be fully parsed: %v", name, err),
			})
		} else {
			p.RecordIDs = recordIDs
			p.NumOverrideRecords = overrides
		}
		p.FullyLoaded = true
	}

	return p, nil
}

type topHeader struct {
	flags      uint32
	numRecords uint32
	numGroups  uint32
}

type subrecord struct {
	sig  string
	data []byte
}

// parseTop reads the TES4 header record and its subrecords (header-only
// mode). numGroups is approximated by scanning for top-level GRUP markers
// immediately following the header record, matching is_empty's "zero
// records and zero groups" definition without a full record walk.
func parseTop(r io.ReadSeeker) (*topHeader, []subrecord, error) {
	rh, err := readRecordHeader(r)
	if err != nil {
		return nil, nil, err
	}
	if rh.signature != sigTES4 {
		return nil, nil, errs.New(errs.ParseFormat, "expected TES4 header, got "+rh.signature)
	}

	data := make([]byte, rh.dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, errs.Wrap(errs.ParseFormat, "read TES4 data", err)
	}

	var subs []subrecord
	var numRecords uint32
	br := bytes.NewReader(data)
	for br.Len() > 0 {
		var shdr [6]byte
		if _, err := io.ReadFull(br, shdr[:]); err != nil {
			break
		}
		sig := string(shdr[0:4])
		size := binary.LittleEndian.Uint16(shdr[4:6])
		sdata := make([]byte, size)
		if _, err := io.ReadFull(br, sdata); err != nil {
			return nil, nil, errs.Wrap(errs.ParseFormat, "read subrecord "+sig, err)
		}
		if sig == sigHEDR && len(sdata) >= 12 {
			numRecords = binary.LittleEndian.Uint32(sdata[4:8])
		}
		subs = append(subs, subrecord{sig: sig, data: sdata})
	}

	numGroups := uint32(0)
	if peek, err := peekGroup(r); err == nil && peek {
		numGroups = 1
	}

	return &topHeader{flags: rh.flags, numRecords: numRecords, numGroups: numGroups}, subs, nil
}

func peekGroup(r io.ReadSeeker) (bool, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	defer r.Seek(cur, io.SeekStart)

	var sig [4]byte
	n, err := r.Read(sig[:])
	if err != nil || n < 4 {
		return false, nil
	}
	return string(sig[:]) == sigGRUP, nil
}

type recordHeader struct {
	signature string
	dataSize  uint32
	flags     uint32
	formID    uint32
}

func readRecordHeader(r io.Reader) (*recordHeader, error) {
	var buf [24]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errs.Wrap(errs.ParseFormat, "read record header", err)
	}
	sig := string(buf[0:4])
	for _, c := range sig {
		if c < 32 || c > 126 {
			return nil, errs.New(errs.ParseFormat, "non-ascii record signature")
		}
	}
	return &recordHeader{
		signature: sig,
		dataSize:  binary.LittleEndian.Uint32(buf[4:8]),
		flags:     binary.LittleEndian.Uint32(buf[8:12]),
		formID:    binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func nullTerminated(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// walkFullRecords walks every record and group after the TES4 header,
// collecting record identifiers and counting the ones whose form index
// (the high byte of the form ID) references one of numMasters existing
// masters rather than the plugin itself — the "override record" metric.
func walkFullRecords(path string, numMasters int) (map[RecordID]bool, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errs.Wrap(errs.FileAccess, "reopen plugin for full parse", err)
	}
	defer f.Close()

	top, err := readRecordHeader(f)
	if err != nil {
		return nil, 0, err
	}
	if _, err := f.Seek(int64(top.dataSize), io.SeekCurrent); err != nil {
		return nil, 0, errs.Wrap(errs.ParseFormat, "skip TES4 data", err)
	}

	ids := make(map[RecordID]bool)
	var overrides uint32

	for {
		var sig [4]byte
		if _, err := io.ReadFull(f, sig[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, errs.Wrap(errs.ParseFormat, "read group/record signature", err)
		}
		sigStr := string(sig[:])

		// rest holds bytes [4:24) of the 24-byte header: dataSize(4),
		// flags(4), formID(4), timestamp(4), formVersion(2), unknown(2).
		var rest [20]byte
		if _, err := io.ReadFull(f, rest[:]); err != nil {
			return nil, 0, errs.Wrap(errs.ParseFormat, "read header tail", err)
		}
		size := binary.LittleEndian.Uint32(rest[0:4])

		if sigStr == sigGRUP {
			// Group size includes the 24-byte group header itself. The
			// header has been consumed; the group's records and subgroups
			// follow and are walked by the next iterations.
			if size < 24 {
				return nil, 0, errs.New(errs.ParseFormat, "malformed group size")
			}
			continue
		}

		formID := binary.LittleEndian.Uint32(rest[8:12])
		rid := RecordID{Signature: sigStr, FormID: formID & 0x00FFFFFF}
		ids[rid] = true

		modIndex := formID >> 24
		if int(modIndex) < numMasters {
			overrides++
		}

		if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, 0, errs.Wrap(errs.ParseFormat, "skip record data", err)
		}
	}

	return ids, overrides, nil
}

var tagBlockRE = regexp.MustCompile(`\{\{BASH:(.*?)\}\}`)

// extractTags parses zero or more compatibility tags delimited by
// "{{BASH:" and "}}" out of a plugin's description, splitting on commas.
func extractTags(description string) []ExtractedTag {
	m := tagBlockRE.FindStringSubmatch(description)
	if m == nil {
		return nil
	}
	var tags []ExtractedTag
	for _, raw := range strings.Split(m[1], ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		isAdd := true
		if strings.HasPrefix(name, "-") {
			isAdd = false
			name = strings.TrimSpace(name[1:])
		}
		tags = append(tags, ExtractedTag{Name: name, IsAddition: isAdd})
	}
	return tags
}

// Version-extraction cascade, grounded on the original helpers/version.cpp
// regexes, tried in priority order against the description text.
var (
	dateVersionRE   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{1,4} \d{1,2}:\d{1,2}:\d{1,2}`)
	labeledVersionRE = regexp.MustCompile(`(?i)version:?\s*([0-9]+(?:[-._:][0-9A-Za-z]+)*)`)
	anchoredVersionRE = regexp.MustCompile(`(?:^|v|\s)([0-9]+(?:[-._:][0-9A-Za-z]+)+)`)
	trailingIntegerRE = regexp.MustCompile(`(?:^|v)([0-9]+)\s*$`)
)

func extractVersion(description string) string {
	if m := dateVersionRE.FindString(description); m != "" {
		return m
	}
	if m := labeledVersionRE.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	if m := anchoredVersionRE.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	if m := trailingIntegerRE.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return ""
}

// loadsArchive implements spec §4.2's filesystem-derived archive pairing
// rule: exact-basename match for Skyrim-family games, prefix match bounded
// to .esp for the one legacy game kind, otherwise any matching extension.
func loadsArchive(dataPath, name string, game environment.Kind) bool {
	ext, err := game.ArchiveExtension()
	if err != nil {
		return false
	}
	base := strings.TrimSuffix(identity.StripGhost(filepath.Base(name)), filepath.Ext(identity.StripGhost(name)))

	switch game {
	case environment.TES5, environment.TES5SE:
		_, statErr := os.Stat(filepath.Join(dataPath, base+ext))
		return statErr == nil
	default:
		if game == environment.TES4 && strings.ToLower(filepath.Ext(identity.StripGhost(name))) != ".esp" {
			return false
		}
		entries, err := os.ReadDir(dataPath)
		if err != nil {
			return false
		}
		lowerBase := strings.ToLower(base)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := e.Name()
			lowerN := strings.ToLower(n)
			if !strings.HasPrefix(lowerN, lowerBase) {
				continue
			}
			if strings.HasSuffix(lowerN, ext) {
				return true
			}
		}
		return false
	}
}
