package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ligatures = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬆ", "st",
)

var (
	// "ac-\ncepted" -> "accepted"
	hyphenBreakRE = regexp.MustCompile(`(?m)([\p{L}\p{N}])-(?:\r?\n)([\p{Ll}])`)
	// Zeilenumbrüche zählen hier als Leerzeichen, Marker laufen oft über zwei Zeilen.
	whitespaceRE = regexp.MustCompile("[\\s\u00a0]+")
)

// normalizeExtractedText bereitet PDF-Text für die Marker-Suche auf.
func normalizeExtractedText(s string) string {
	s = ligatures.Replace(s)
	if normalized, _, err := transform.String(norm.NFC, s); err == nil {
		s = normalized
	}
	s = hyphenBreakRE.ReplaceAllString(s, "$1$2")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
