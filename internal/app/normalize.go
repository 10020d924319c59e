package app

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes to NFC-free form, drops the combining marks, and
// recomposes. "José Ñ." becomes "Jose N.".
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldDiacritics(value string) string {
	folded, _, err := transform.String(stripDiacritics, value)
	if err != nil {
		return value
	}
	return folded
}

// NormalizeInitials reduces free-form initials input to bare uppercase
// letters: diacritics folded, everything that is not a letter dropped.
func NormalizeInitials(raw string) string {
	folded := foldDiacritics(raw)
	var out strings.Builder
	for _, ch := range folded {
		if unicode.IsLetter(ch) {
			out.WriteRune(unicode.ToUpper(ch))
		}
	}
	return out.String()
}

// NormalizeInstitution trims and collapses internal whitespace runs.
func NormalizeInstitution(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// SearchKey derives the deterministic per-case key backing both search and
// the per-owner uniqueness index. Inputs must already be normalized.
func SearchKey(initials, institution string) string {
	return strings.ToLower(initials) + "|" + strings.ToLower(foldDiacritics(institution))
}

// FoldQuery prepares a free-text search term the same way SearchKey prepares
// its inputs, so lookups stay case- and diacritic-insensitive.
func FoldQuery(raw string) string {
	return strings.ToLower(foldDiacritics(strings.TrimSpace(raw)))
}

// NormalizeText produces the whitespace-normalized copy stored alongside the
// original: CRLF/CR unified to LF, runs of spaces and tabs collapsed, at most
// one blank line in a row, outer whitespace trimmed. It is a pure function of
// its input and a placeholder for a future rewriting step.
func NormalizeText(raw string) string {
	unified := strings.ReplaceAll(raw, "\r\n", "\n")
	unified = strings.ReplaceAll(unified, "\r", "\n")

	lines := strings.Split(unified, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			blanks++
			if blanks > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, collapsed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
