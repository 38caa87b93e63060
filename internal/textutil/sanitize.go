package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
// Brackets, hash, and caret are removed too since they break Obsidian links.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"[", "",
	"]", "",
	"#", "",
	"^", "",
)

// SanitizeFileName makes name safe as a vault file name. The result is NFC
// normalized, control characters are dropped, and leading dots are removed so
// notes are never hidden.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = fileNameReplacer.Replace(name)
	return strings.TrimLeft(strings.TrimSpace(name), ".")
}

// CleanText NFC-normalizes s and collapses runs of whitespace to single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
