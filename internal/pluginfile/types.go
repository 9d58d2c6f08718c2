// Package pluginfile implements the binary plugin reader (spec C2): header-
// only and full parsing of the TES4 record/group container format, ghost
// resolution, and description-derived tag/version extraction. Grounded on
// the teacher's internal/plugin package, extended with full-record walking,
// override-record counting, and ghosting per the expanded specification.
package pluginfile

// recordFlag bits, Skyrim-and-later 24-byte record header layout.
const (
	flagMaster    uint32 = 0x00000001
	flagLocalized uint32 = 0x00000080
	flagLight     uint32 = 0x00000200
)

// Signatures of subrecords this reader inspects.
const (
	sigTES4 = "TES4"
	sigGRUP = "GRUP"
	sigHEDR = "HEDR"
	sigCNAM = "CNAM"
	sigSNAM = "SNAM"
	sigMAST = "MAST"
	sigDATA = "DATA"
)

// RecordID identifies a record for override-record/conflict bookkeeping:
// the record signature and the low 24 bits of the on-disk form identifier.
// The high byte (an index into the plugin's own master list) is not kept
// here; walkFullRecords reads it only to decide whether the record
// overrides a master's record.
type RecordID struct {
	Signature string
	FormID    uint32
}

// Plugin is the parsed result of reading one plugin file, spec §3's Plugin
// data model.
type Plugin struct {
	Name               string
	IsMaster           bool
	Masters            []string
	Description        string
	Version            string
	IsEmpty            bool
	LoadsArchive       bool
	CRC                uint32
	RecordIDs          map[RecordID]bool
	NumOverrideRecords uint32
	IsActive           bool
	StatusMessages     []StatusMessage
	ExtractedTags      []ExtractedTag
	FullyLoaded        bool
}

// StatusMessage is a lightweight stand-in for metadata.Message used inside
// this package to avoid a dependency cycle; pluginreader converts these to
// metadata.Message when assembling diagnostics.
type StatusMessage struct {
	Type string // "warn" or "error"
	Text string
}

// ExtractedTag is a Bash-compatibility-tag name parsed out of a plugin's
// description text.
type ExtractedTag struct {
	Name       string
	IsAddition bool
}
