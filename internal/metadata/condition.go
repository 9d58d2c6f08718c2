package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
	"github.com/pluginsort/lootcore/internal/semverish"
)

// Resolver is the environment seam the condition evaluator reads through:
// a plugin cache, a data path, an active-plugins set. Implemented by
// internal/pluginreader's cache/game context (C7).
type Resolver interface {
	HasPlugin(normalizedName string) bool
	PluginCRC(normalizedName string) (uint32, bool)
	PluginVersion(normalizedName string) (string, bool)
	IsActive(normalizedName string) bool
	Exists(relPath string) bool
	ResolvePath(relPath string) (string, error)
	ListDir(relDir string) ([]string, error)
	CRCOfPath(path string) (uint32, error)
}

// reservedSelfReference is the literal path string condition_grammar.h
// treats as a trivially-true self-reference to the running core itself.
const reservedSelfReference = "LOOT"

// condToken is one lexical unit of the condition mini-language.
type condToken struct {
	kind string // "ident", "lparen", "rparen", "string", "cmp", "eof"
	val  string
}

func tokenize(s string) ([]condToken, error) {
	var toks []condToken
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, condToken{"lparen", "("})
			i++
		case c == ')':
			toks = append(toks, condToken{"rparen", ")"})
			i++
		case c == ',':
			toks = append(toks, condToken{"comma", ","})
			i++
		case c == '"':
			j := i + 1
			for j < n && s[j] != '"' {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string starting at %d", i)
			}
			toks = append(toks, condToken{"string", s[i+1 : j]})
			i = j + 1
		case strings.HasPrefix(s[i:], "=="), strings.HasPrefix(s[i:], "!="),
			strings.HasPrefix(s[i:], "<="), strings.HasPrefix(s[i:], ">="):
			toks = append(toks, condToken{"cmp", s[i : i+2]})
			i += 2
		case c == '<' || c == '>':
			toks = append(toks, condToken{"cmp", string(c)})
			i++
		case isIdentStart(c):
			j := i
			for j < n && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, condToken{"ident", s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	toks = append(toks, condToken{"eof", ""})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// condParser is a small recursive-descent parser for the grammar:
//
//	expr     := term ( "or" term )*
//	term     := factor ( "and" factor )*
//	factor   := function | "not" factor | "(" expr ")"
//	function := file(path) | regex(str) | many(str) | checksum(path,hex) |
//	            version(path,str,cmp) | active(path) | many_active(str)
type condParser struct {
	toks []condToken
	pos  int
	r    Resolver
}

// EvaluateCondition parses and evaluates a condition string against r. An
// empty condition is always true.
func EvaluateCondition(cond string, r Resolver) (bool, error) {
	if strings.TrimSpace(cond) == "" {
		return true, nil
	}
	toks, err := tokenize(cond)
	if err != nil {
		return false, errs.Wrap(errs.ConditionSyntax, "tokenize condition: "+cond, err)
	}
	p := &condParser{toks: toks, r: r}
	v, err := p.parseExpr()
	if err != nil {
		return false, errs.Wrap(errs.ConditionSyntax, "parse condition: "+cond, err)
	}
	if p.cur().kind != "eof" {
		return false, errs.New(errs.ConditionSyntax, fmt.Sprintf("trailing input in condition %q near %q", cond, p.cur().val))
	}
	return v, nil
}

func (p *condParser) cur() condToken { return p.toks[p.pos] }

func (p *condParser) advance() condToken {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *condParser) parseExpr() (bool, error) {
	v, err := p.parseTerm()
	if err != nil {
		return false, err
	}
	for p.cur().kind == "ident" && strings.EqualFold(p.cur().val, "or") {
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
	return v, nil
}

func (p *condParser) parseTerm() (bool, error) {
	v, err := p.parseFactor()
	if err != nil {
		return false, err
	}
	for p.cur().kind == "ident" && strings.EqualFold(p.cur().val, "and") {
		p.advance()
		rhs, err := p.parseFactor()
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
	return v, nil
}

func (p *condParser) parseFactor() (bool, error) {
	switch {
	case p.cur().kind == "ident" && strings.EqualFold(p.cur().val, "not"):
		p.advance()
		v, err := p.parseFactor()
		if err != nil {
			return false, err
		}
		return !v, nil
	case p.cur().kind == "lparen":
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return false, err
		}
		if p.cur().kind != "rparen" {
			return false, fmt.Errorf("expected ')' near %q", p.cur().val)
		}
		p.advance()
		return v, nil
	case p.cur().kind == "ident":
		return p.parseFunction()
	default:
		return false, fmt.Errorf("expected function, 'not', or '(' but found %q", p.cur().val)
	}
}

func (p *condParser) parseFunction() (bool, error) {
	name := p.advance().val
	if p.cur().kind != "lparen" {
		return false, fmt.Errorf("expected '(' after %q", name)
	}
	p.advance()

	args, err := p.parseArgs()
	if err != nil {
		return false, err
	}
	if p.cur().kind != "rparen" {
		return false, fmt.Errorf("expected ')' to close %q", name)
	}
	p.advance()

	switch strings.ToLower(name) {
	case "file":
		if len(args) != 1 {
			return false, fmt.Errorf("file() expects 1 argument, got %d", len(args))
		}
		return evalFile(args[0], p.r)
	case "regex":
		if len(args) != 1 {
			return false, fmt.Errorf("regex() expects 1 argument, got %d", len(args))
		}
		n, err := countRegexMatches(args[0], p.r)
		return n > 0, err
	case "many":
		if len(args) != 1 {
			return false, fmt.Errorf("many() expects 1 argument, got %d", len(args))
		}
		n, err := countRegexMatches(args[0], p.r)
		return n > 1, err
	case "checksum":
		if len(args) != 2 {
			return false, fmt.Errorf("checksum() expects 2 arguments, got %d", len(args))
		}
		return evalChecksum(args[0], args[1], p.r)
	case "version":
		if len(args) != 3 {
			return false, fmt.Errorf("version() expects 3 arguments, got %d", len(args))
		}
		return evalVersion(args[0], args[1], args[2], p.r)
	case "active":
		if len(args) != 1 {
			return false, fmt.Errorf("active() expects 1 argument, got %d", len(args))
		}
		return p.r.IsActive(identity.Normalize(args[0])), nil
	case "many_active":
		if len(args) != 1 {
			return false, fmt.Errorf("many_active() expects 1 argument, got %d", len(args))
		}
		n, err := countActiveRegexMatches(args[0], p.r)
		return n > 1, err
	default:
		return false, fmt.Errorf("unknown condition function %q", name)
	}
}

func (p *condParser) parseArgs() ([]string, error) {
	var args []string
	if p.cur().kind == "rparen" {
		return args, nil
	}
	for {
		switch p.cur().kind {
		case "string":
			args = append(args, p.advance().val)
		case "cmp":
			args = append(args, p.advance().val)
		default:
			return nil, fmt.Errorf("expected argument, found %q", p.cur().val)
		}
		if p.cur().kind == "comma" {
			p.advance()
			continue
		}
		break
	}
	return args, nil
}

// evalFile implements file(p): LOOT self-reference, then plugin cache,
// then on-disk, then ghosted on-disk.
func evalFile(path string, r Resolver) (bool, error) {
	if path == reservedSelfReference {
		return true, nil
	}
	if err := checkSafePath(path); err != nil {
		return false, err
	}
	if r.HasPlugin(identity.Normalize(path)) {
		return true, nil
	}
	if r.Exists(path) {
		return true, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".esp" || ext == ".esm" {
		return r.Exists(path + ".ghost"), nil
	}
	return false, nil
}

// splitRegex separates a path string into a plain directory portion and a
// leaf regex portion, rejecting unsafe or regex-bearing directory parts.
func splitRegex(pattern string) (dir, leaf string, err error) {
	if serr := checkSafePath(pattern); serr != nil {
		return "", "", serr
	}
	slash := strings.LastIndex(pattern, "/")
	if slash < 0 {
		return "", pattern, nil
	}
	dirPart := pattern[:slash]
	leafPart := pattern[slash+1:]
	if containsRegexMeta(dirPart) {
		return "", "", errs.New(errs.InvalidArgument, "directory portion of regex condition must not itself be a regex: "+pattern)
	}
	return dirPart, leafPart, nil
}

func containsRegexMeta(s string) bool {
	return strings.ContainsAny(s, ":\\*?|^$[]{}+")
}

// checkSafePath rejects a path with two or more ".." traversal segments,
// the unsafe-path rule condition_grammar.h enforces.
func checkSafePath(path string) error {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	parentCount := 0
	for _, p := range parts {
		if p == ".." {
			parentCount++
			if parentCount >= 2 {
				return errs.New(errs.InvalidArgument, "unsafe path in condition: "+path)
			}
		}
	}
	return nil
}

func countRegexMatches(pattern string, r Resolver) (int, error) {
	dir, leaf, err := splitRegex(pattern)
	if err != nil {
		return 0, err
	}
	re, err := regexp.Compile("(?i)" + leaf)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, "compile regex condition: "+pattern, err)
	}
	entries, err := r.ListDir(dir)
	if err != nil {
		return 0, nil // directory absent: zero matches, not an error
	}
	count := 0
	for _, e := range entries {
		if re.MatchString(e) {
			count++
		}
	}
	return count, nil
}

// countActiveRegexMatches counts files matching pattern that are also
// reported active by r, backing many_active().
func countActiveRegexMatches(pattern string, r Resolver) (int, error) {
	dir, leaf, err := splitRegex(pattern)
	if err != nil {
		return 0, err
	}
	re, err := regexp.Compile("(?i)" + leaf)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, "compile regex condition: "+pattern, err)
	}
	entries, err := r.ListDir(dir)
	if err != nil {
		return 0, nil
	}
	count := 0
	for _, e := range entries {
		if !re.MatchString(e) {
			continue
		}
		if !r.IsActive(identity.Normalize(e)) {
			continue
		}
		count++
	}
	return count, nil
}

func evalChecksum(path, hexCRC string, r Resolver) (bool, error) {
	if err := checkSafePath(path); err != nil {
		return false, err
	}
	var want uint32
	if _, err := fmt.Sscanf(strings.ToLower(hexCRC), "%x", &want); err != nil {
		return false, errs.Wrap(errs.InvalidArgument, "parse checksum hex: "+hexCRC, err)
	}
	norm := identity.Normalize(path)
	if crc, ok := r.PluginCRC(norm); ok {
		return crc == want, nil
	}
	resolved, err := r.ResolvePath(path)
	if err != nil {
		return false, err
	}
	crc, err := r.CRCOfPath(resolved)
	if err != nil {
		return false, nil
	}
	return crc == want, nil
}

func evalVersion(path, version, cmp string, r Resolver) (bool, error) {
	if err := checkSafePath(path); err != nil {
		return false, err
	}
	norm := identity.Normalize(path)
	actual, ok := r.PluginVersion(norm)
	if !ok {
		if !r.Exists(path) && !r.HasPlugin(norm) {
			switch cmp {
			case "!=", "<", "<=":
				return true, nil
			default:
				return false, nil
			}
		}
		return false, nil
	}
	c := semverish.Compare(actual, version)
	switch cmp {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case ">":
		return c > 0, nil
	case "<=":
		return c <= 0, nil
	case ">=":
		return c >= 0, nil
	default:
		return false, fmt.Errorf("unknown comparator %q", cmp)
	}
}
