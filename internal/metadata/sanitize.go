package metadata

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// FallbackStem is used when a title sanitizes to nothing.
	FallbackStem = "audio"

	// MaxStemBytes bounds the stem so that derived names such as
	// "<stem>.webm.part" stay within the 255 byte filename limit.
	MaxStemBytes = 200
)

// Sanitize strips every character of the title which is not a letter,
// digit, space, hyphen or underscore, and trims surrounding whitespace.
// Titles longer than MaxStemBytes are cut on a rune boundary. The result
// is safe to use as a filename stem.
func Sanitize(title string) string {
	var sb strings.Builder
	for _, r := range title {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_') {
			continue
		}
		if sb.Len()+utf8.RuneLen(r) > MaxStemBytes {
			break
		}
		sb.WriteRune(r)
	}

	return strings.TrimSpace(sb.String())
}

// Stem returns the sanitized title, or FallbackStem if nothing survives
// sanitization.
func Stem(title string) string {
	if stem := Sanitize(title); stem != "" {
		return stem
	}

	return FallbackStem
}
