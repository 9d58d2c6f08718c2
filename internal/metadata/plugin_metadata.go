package metadata

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pluginsort/lootcore/internal/identity"
)

// regexMetaChars are the characters condition_grammar.h's IsRegexPlugin
// equivalent (strpbrk) tests for: a name containing any of these is a
// regex pattern rather than a literal plugin name.
const regexMetaChars = `:\*?|`

// PluginMetadata is a keyed metadata aggregate for one plugin (or, if Name
// is a regex pattern, for every plugin the pattern matches).
type PluginMetadata struct {
	Name              string
	Enabled           bool
	LocalPriority     Priority
	GlobalPriority    Priority
	LoadAfter         []File
	Requirements      []File
	Incompatibilities []File
	Messages          []Message
	Tags              []Tag
	DirtyInfo         []PluginCleaningData
	CleanInfo         []PluginCleaningData
	Locations         []Location
}

// NewNameOnly returns a metadata record with every field at its default
// except Name and Enabled.
func NewNameOnly(name string) PluginMetadata {
	return PluginMetadata{Name: name, Enabled: true}
}

// IsRegexName reports whether m's Name is a regex pattern rather than a
// literal plugin name.
func (m PluginMetadata) IsRegexName() bool {
	return strings.ContainsAny(m.Name, regexMetaChars)
}

// HasNameOnly reports whether every field besides Name is at its default:
// Enabled true and every other field at its zero value.
func (m PluginMetadata) HasNameOnly() bool {
	return m.Enabled &&
		!m.LocalPriority.IsExplicit && !m.GlobalPriority.IsExplicit &&
		len(m.LoadAfter) == 0 && len(m.Requirements) == 0 &&
		len(m.Incompatibilities) == 0 && len(m.Messages) == 0 &&
		len(m.Tags) == 0 && len(m.DirtyInfo) == 0 && len(m.CleanInfo) == 0 &&
		len(m.Locations) == 0
}

// NamesEqual implements the spec's name-equality rule: literal-literal is
// case-insensitive string equality; if either side is a regex, the
// literal side is matched against the regex (case-insensitive, ECMAScript-
// like semantics approximated with Go's RE2 syntax).
func NamesEqual(a, b PluginMetadata) bool {
	aRegex, bRegex := a.IsRegexName(), b.IsRegexName()
	switch {
	case !aRegex && !bRegex:
		return strings.EqualFold(a.Name, b.Name)
	case aRegex && !bRegex:
		return regexMatchesLiteral(a.Name, b.Name)
	case !aRegex && bRegex:
		return regexMatchesLiteral(b.Name, a.Name)
	default:
		return strings.EqualFold(a.Name, b.Name)
	}
}

func regexMatchesLiteral(pattern, literal string) bool {
	re, err := regexp.Compile("(?i)^" + pattern + "$")
	if err != nil {
		return false
	}
	return re.MatchString(literal)
}

// MatchesPluginName reports whether m's Name (literal or regex) matches a
// concrete, normalized plugin name.
func (m PluginMetadata) MatchesPluginName(normalizedName string) bool {
	if !m.IsRegexName() {
		return identity.Equal(m.Name, normalizedName)
	}
	re, err := regexp.Compile("(?i)^" + m.Name + "$")
	if err != nil {
		return false
	}
	return re.MatchString(normalizedName)
}

// Merge folds src into dst per spec §4.5: enabled and explicit priorities
// are overwritten, set fields are unioned, messages are appended. A
// name-only src is a no-op. dst is returned as a new value; the inputs are
// not mutated.
func Merge(dst, src PluginMetadata) PluginMetadata {
	if src.HasNameOnly() {
		return dst
	}
	out := dst
	out.Enabled = src.Enabled
	if src.LocalPriority.IsExplicit {
		out.LocalPriority = src.LocalPriority
	}
	if src.GlobalPriority.IsExplicit {
		out.GlobalPriority = src.GlobalPriority
	}
	out.LoadAfter = unionFiles(dst.LoadAfter, src.LoadAfter)
	out.Requirements = unionFiles(dst.Requirements, src.Requirements)
	out.Incompatibilities = unionFiles(dst.Incompatibilities, src.Incompatibilities)
	out.Tags = unionTags(dst.Tags, src.Tags)
	out.DirtyInfo = unionCleaning(dst.DirtyInfo, src.DirtyInfo)
	out.CleanInfo = unionCleaning(dst.CleanInfo, src.CleanInfo)
	out.Locations = unionLocations(dst.Locations, src.Locations)
	out.Messages = append(append([]Message(nil), dst.Messages...), src.Messages...)
	return out
}

func unionFiles(a, b []File) []File {
	out := append([]File(nil), a...)
	for _, f := range b {
		if !containsFile(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func containsFile(set []File, f File) bool {
	for _, e := range set {
		if EqualFile(e, f) {
			return true
		}
	}
	return false
}

func unionTags(a, b []Tag) []Tag {
	out := append([]Tag(nil), a...)
	for _, t := range b {
		if !containsTag(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func containsTag(set []Tag, t Tag) bool {
	for _, e := range set {
		if EqualTag(e, t) {
			return true
		}
	}
	return false
}

func unionCleaning(a, b []PluginCleaningData) []PluginCleaningData {
	out := append([]PluginCleaningData(nil), a...)
	for _, d := range b {
		if !containsCleaning(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func containsCleaning(set []PluginCleaningData, d PluginCleaningData) bool {
	for _, e := range set {
		if EqualCleaningData(e, d) {
			return true
		}
	}
	return false
}

func unionLocations(a, b []Location) []Location {
	out := append([]Location(nil), a...)
	for _, l := range b {
		if !containsLocation(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func containsLocation(set []Location, l Location) bool {
	for _, e := range set {
		if EqualLocation(e, l) {
			return true
		}
	}
	return false
}

// Diff produces the metadata in a but not in b, per spec §4.5.
func Diff(a, b PluginMetadata) PluginMetadata {
	out := PluginMetadata{Name: a.Name, Enabled: a.Enabled}
	if a.LocalPriority == b.LocalPriority {
		out.LocalPriority = Priority{}
	} else {
		out.LocalPriority = a.LocalPriority
	}
	if a.GlobalPriority == b.GlobalPriority {
		out.GlobalPriority = Priority{}
	} else {
		out.GlobalPriority = a.GlobalPriority
	}
	out.LoadAfter = diffFiles(a.LoadAfter, b.LoadAfter)
	out.Requirements = diffFiles(a.Requirements, b.Requirements)
	out.Incompatibilities = diffFiles(a.Incompatibilities, b.Incompatibilities)
	out.Tags = diffTags(a.Tags, b.Tags)
	out.DirtyInfo = diffCleaning(a.DirtyInfo, b.DirtyInfo)
	out.CleanInfo = diffCleaning(a.CleanInfo, b.CleanInfo)
	out.Locations = diffLocations(a.Locations, b.Locations)
	out.Messages = diffMessages(a.Messages, b.Messages, false)
	return out
}

// NewMetadata is the "user delta" extractor: like Diff, but message
// identity uses full equality (not just first-content-text) and priorities
// are omitted unless they differ from b's (already covered by Diff's
// equality check, restated here for the spec's naming).
func NewMetadata(a, b PluginMetadata) PluginMetadata {
	out := Diff(a, b)
	out.Messages = diffMessages(a.Messages, b.Messages, true)
	return out
}

func diffFiles(a, b []File) []File {
	var out []File
	for _, f := range a {
		if !containsFile(b, f) {
			out = append(out, f)
		}
	}
	return out
}

func diffTags(a, b []Tag) []Tag {
	var out []Tag
	for _, t := range a {
		if !containsTag(b, t) {
			out = append(out, t)
		}
	}
	return out
}

func diffCleaning(a, b []PluginCleaningData) []PluginCleaningData {
	var out []PluginCleaningData
	for _, d := range a {
		if !containsCleaning(b, d) {
			out = append(out, d)
		}
	}
	return out
}

func diffLocations(a, b []Location) []Location {
	var out []Location
	for _, l := range a {
		if !containsLocation(b, l) {
			out = append(out, l)
		}
	}
	return out
}

// diffMessages sorts both sides by the pinned (type, first-content-text)
// key and computes a set difference; fullEquality additionally requires
// every content variant and the condition to match, the stricter identity
// NewMetadata uses.
func diffMessages(a, b []Message, fullEquality bool) []Message {
	sa := sortMessages(a)
	sb := sortMessages(b)
	var out []Message
	for _, m := range sa {
		found := false
		for _, other := range sb {
			if fullEquality {
				if messagesFullyEqual(m, other) {
					found = true
					break
				}
			} else if m.FirstText() == other.FirstText() && m.Type == other.Type {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}
	return out
}

func messagesFullyEqual(a, b Message) bool {
	if a.Type != b.Type || a.Condition != b.Condition || len(a.Contents) != len(b.Contents) {
		return false
	}
	ac := append([]MessageContent(nil), a.Contents...)
	bc := append([]MessageContent(nil), b.Contents...)
	sort.Slice(ac, func(i, j int) bool { return LessContent(ac[i], ac[j]) })
	sort.Slice(bc, func(i, j int) bool { return LessContent(bc[i], bc[j]) })
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
