package mappers

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var titleStripper = strings.NewReplacer(
	"\t", "",
	"\r", "",
	"\n", "",
	":", "",
	",", "",
	"'", "",
	`"`, "",
	" ", "",
)

// MatchableTitle normalizes a title for fuzzy comparison: NFC, the characters
// tab, CR, LF, colon, comma, quotes and spaces removed, lowercased.
func MatchableTitle(title string) string {
	return strings.ToLower(titleStripper.Replace(norm.NFC.String(title)))
}
