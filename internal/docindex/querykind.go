package docindex

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/search/query"
)

// QueryKind selects how a query value is matched against a field.
type QueryKind int

const (
	// Exact matches the whole value.
	Exact QueryKind = iota
	// Prefix matches values starting with the query value.
	Prefix
	// CaseInsensitivePrefix is Prefix ignoring case.
	CaseInsensitivePrefix
	// Regexp matches values against a regular expression.
	Regexp
	// CaseInsensitiveRegexp is Regexp ignoring case.
	CaseInsensitiveRegexp
	// CamelCase matches "FoBa" against "FooBar" and "FoBaz".
	CamelCase
	// CaseInsensitiveCamelCase matches either a case-insensitive prefix
	// or the camel-case abbreviation.
	CaseInsensitiveCamelCase
)

var kindNames = map[QueryKind]string{
	Exact:                    "exact",
	Prefix:                   "prefix",
	CaseInsensitivePrefix:    "iprefix",
	Regexp:                   "regexp",
	CaseInsensitiveRegexp:    "iregexp",
	CamelCase:                "camel",
	CaseInsensitiveCamelCase: "icamel",
}

// String returns the short name used on the command line.
func (k QueryKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("QueryKind(%d)", int(k))
}

// ParseQueryKind converts a short name back to a QueryKind.
func ParseQueryKind(s string) (QueryKind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return Exact, fmt.Errorf("unknown query kind %q", s)
}

// buildQuery translates a field/value/kind triple into a bleve query.
func buildQuery(field, value string, kind QueryKind) (query.Query, error) {
	folded := field + foldSuffix
	switch kind {
	case Exact:
		return termQuery(field, value), nil
	case Prefix:
		return prefixQuery(field, value), nil
	case CaseInsensitivePrefix:
		return prefixQuery(folded, strings.ToLower(value)), nil
	case Regexp:
		if _, err := regexp.Compile(value); err != nil {
			return nil, err
		}
		return regexpQuery(field, value), nil
	case CaseInsensitiveRegexp:
		if _, err := regexp.Compile(value); err != nil {
			return nil, err
		}
		return regexpQuery(folded, lowerLiterals(value)), nil
	case CamelCase:
		if value == "" {
			return prefixQuery(field, value), nil
		}
		return regexpQuery(field, camelCasePattern(value)), nil
	case CaseInsensitiveCamelCase:
		if value == "" {
			return prefixQuery(folded, value), nil
		}
		return query.NewDisjunctionQuery([]query.Query{
			prefixQuery(folded, strings.ToLower(value)),
			regexpQuery(field, camelCasePattern(value)),
		}), nil
	default:
		return nil, fmt.Errorf("unknown query kind %d", int(kind))
	}
}

func termQuery(field, value string) query.Query {
	q := query.NewTermQuery(value)
	q.SetField(field)
	return q
}

func prefixQuery(field, value string) query.Query {
	q := query.NewPrefixQuery(value)
	q.SetField(field)
	return q
}

func regexpQuery(field, pattern string) query.Query {
	q := query.NewRegexpQuery(pattern)
	q.SetField(field)
	return q
}

// camelCasePattern turns "FoBa" into a pattern matching "FooBar": each
// part starting at an upper-case letter may be followed by non-upper-case
// characters.
func camelCasePattern(value string) string {
	var parts []string
	start := 0
	runes := []rune(value)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))

	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("[^A-Z]*")
		}
		b.WriteString(regexp.QuoteMeta(p))
	}
	b.WriteString(".*")
	return b.String()
}

// lowerLiterals lower-cases a pattern except for escape sequences, so
// classes like \W keep their meaning.
func lowerLiterals(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
