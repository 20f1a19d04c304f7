package document

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiSpace = regexp.MustCompile(`[ \t]{2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// Clean collapses noisy whitespace left behind by text extraction.
// Line breaks survive; more than one blank line becomes one.
// Tabs between spreadsheet cells are kept when they stand alone.
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
