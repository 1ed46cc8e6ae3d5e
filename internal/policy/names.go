package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// DefaultNamesDelimiter splits stream-names on a pipe or a comma.
const DefaultNamesDelimiter = `(\||,)`

var defaultDelimiterRe = regexp.MustCompile(DefaultNamesDelimiter)

// PatternKind says how a configured token is compared against a stream name.
type PatternKind string

const (
	// KindLiteral is a plain name compared for equality.
	KindLiteral PatternKind = "literal"
	// KindPrefix is a token like "cam*": the stream name must start with "cam".
	KindPrefix PatternKind = "prefix"
	// KindSuffix is a token like "*clip": the stream name must end with "clip".
	KindSuffix PatternKind = "suffix"
	// KindRegex is a full-string regular expression.
	KindRegex PatternKind = "regex"
)

// NamePattern is one parsed token from a stream-names list.
type NamePattern struct {
	Raw  string
	Kind PatternKind

	suffix    string
	prefix    string
	hasPrefix bool
	re        *regexp.Regexp
	err       error
}

func parsePattern(token string) NamePattern {
	p := NamePattern{Raw: token}
	rest := token
	if strings.HasPrefix(rest, "*") {
		p.Kind = KindSuffix
		rest = rest[1:]
		p.suffix = rest
	}
	if strings.HasSuffix(rest, "*") {
		if p.Kind == "" {
			p.Kind = KindPrefix
		}
		p.prefix = rest[:len(rest)-1]
		p.hasPrefix = true
	}
	if p.Kind != "" {
		return p
	}

	if regexp.QuoteMeta(token) == token {
		p.Kind = KindLiteral
		return p
	}
	p.Kind = KindRegex
	p.re, p.err = regexp.Compile(`^(?:` + token + `)$`)
	return p
}

// Err returns the compile error of an invalid regex token, if any.
func (p NamePattern) Err() error {
	return p.err
}

// Match reports whether name satisfies this single token.
func (p NamePattern) Match(name string) bool {
	switch p.Kind {
	case KindLiteral:
		return name == p.Raw
	case KindRegex:
		if p.re == nil {
			return false
		}
		return p.re.MatchString(name)
	}
	if p.Kind == KindSuffix && strings.HasSuffix(name, p.suffix) {
		return true
	}
	return p.hasPrefix && strings.HasPrefix(name, p.prefix)
}

// NameList is the parsed form of the stream-names property.
type NameList struct {
	Raw       string
	Delimiter string
	Patterns  []NamePattern

	logger *slog.Logger
	debug  bool
}

// ParseNameList splits raw with the delimiter regex and parses every token.
// An empty delimiter selects DefaultNamesDelimiter.
func ParseNameList(raw, delimiter string) (NameList, error) {
	list := NameList{Raw: raw, Delimiter: delimiter}
	if strings.TrimSpace(delimiter) == "" {
		list.Delimiter = DefaultNamesDelimiter
	}

	delimRe := defaultDelimiterRe
	if list.Delimiter != DefaultNamesDelimiter {
		re, err := regexp.Compile(list.Delimiter)
		if err != nil {
			return NameList{Raw: raw, Delimiter: list.Delimiter}, fmt.Errorf("compile stream names delimiter %q: %w", list.Delimiter, err)
		}
		delimRe = re
	}

	if raw == "" || raw == "*" {
		return list, nil
	}
	for _, token := range delimRe.Split(raw, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		list.Patterns = append(list.Patterns, parsePattern(token))
	}
	return list, nil
}

// WithDiagnostics returns a copy of the list that logs every check at info level
// when debug is set.
func (l NameList) WithDiagnostics(logger *slog.Logger, debug bool) NameList {
	l.logger = logger
	l.debug = debug
	return l
}

// Empty reports whether no names are configured.
func (l NameList) Empty() bool {
	return l.Raw == "" || (l.Raw != "*" && len(l.Patterns) == 0)
}

// MatchesAll reports whether the list is the universal wildcard.
func (l NameList) MatchesAll() bool {
	return l.Raw == "*"
}

// Literals returns the raw text of every literal token, in configured order.
func (l NameList) Literals() []string {
	var out []string
	for _, p := range l.Patterns {
		if p.Kind == KindLiteral {
			out = append(out, p.Raw)
		}
	}
	return out
}

// InvalidPatterns returns the tokens that failed to compile.
func (l NameList) InvalidPatterns() []NamePattern {
	var out []NamePattern
	for _, p := range l.Patterns {
		if p.err != nil {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether name matches any token of the list.
func (l NameList) Matches(name string) bool {
	if l.Raw == "" {
		l.trace("stream names list is empty", "stream", name)
		return false
	}
	if l.MatchesAll() {
		l.trace("match found against *", "stream", name)
		return true
	}
	for _, p := range l.Patterns {
		l.trace("checking stream name", "stream", name, "pattern", p.Raw, "kind", p.Kind)
		if p.err != nil {
			if l.debug {
				l.log().Warn("skipping invalid stream name pattern", "stream", name, "pattern", p.Raw, "error", p.err)
			}
			continue
		}
		if p.Match(name) {
			l.trace("match found", "stream", name, "pattern", p.Raw, "kind", p.Kind)
			return true
		}
	}
	return false
}

func (l NameList) trace(msg string, args ...any) {
	if !l.debug {
		return
	}
	l.log().Info(msg, args...)
}

func (l NameList) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}
