package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reSeparators      = regexp.MustCompile(`[^0-9\p{L}]+`)
	reMultiUnderscore = regexp.MustCompile(`_+`)
	reISBNChars       = regexp.MustCompile(`^[0-9]{9}[0-9X]$|^[0-9]{13}$`)
)

func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

func upper(s string) string {
	return strings.ToUpper(s)
}

func collapseUnderscores(s string) string {
	s = reMultiUnderscore.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// SanitizeToken cleans a raw scanner payload. Case is preserved.
func SanitizeToken(input string) string {
	p := Pipeline{
		stripInvisible,
		strings.TrimSpace,
	}
	return p.Apply(input)
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeISBN strips formatting from an ISBN-10 or ISBN-13. Anything that
// does not have the shape of an ISBN afterwards yields "".
func NormalizeISBN(input string) string {
	p := Pipeline{
		SanitizeToken,
		func(s string) string { return strings.NewReplacer("-", "", " ", "").Replace(s) },
		upper,
	}
	s := p.Apply(input)
	if !reISBNChars.MatchString(s) {
		return ""
	}
	return s
}

func SanitizeCategory(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		upper,
		func(s string) string { return reSeparators.ReplaceAllString(s, "_") },
		collapseUnderscores,
	}
	return p.Apply(input)
}
