package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims the input, folds runs of whitespace into one space and
// caps it at maxLen runes. Party and item names are free text from the UI.
func SanitizeString(input string, maxLen int) string {
	folded := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 || utf8.RuneCountInString(folded) <= maxLen {
		return folded
	}
	runes := []rune(folded)
	return strings.TrimSpace(string(runes[:maxLen]))
}
