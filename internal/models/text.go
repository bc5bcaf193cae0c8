package models

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// blankRunRegex matches horizontal whitespace runs
	blankRunRegex = regexp.MustCompile(`[ \t\f\v\r]+`)
	// emptyLinesRegex matches three or more consecutive newlines
	emptyLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate returns the first max runes of text and whether anything was cut.
func Truncate(text string, max int) (string, bool) {
	if max < 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	i := 0
	for pos := range text {
		if i == max {
			return text[:pos], true
		}
		i++
	}
	return text, false
}

// CleanText collapses horizontal whitespace, trims each line and squeezes
// runs of blank lines to one, keeping paragraph breaks.
func CleanText(text string) string {
	return strings.TrimSpace(SqueezeBlankLines(CollapseLines(text)))
}

// CollapseLines collapses horizontal whitespace runs and trims every line.
// Newlines, including leading and trailing ones, are kept.
func CollapseLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(blankRunRegex.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

// TrimLineEnds drops carriage returns and trailing blanks from every line,
// leaving indentation alone.
func TrimLineEnds(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	return strings.Join(lines, "\n")
}

// SqueezeBlankLines keeps at most one empty line between paragraphs and
// strips newlines from both ends.
func SqueezeBlankLines(text string) string {
	return strings.Trim(emptyLinesRegex.ReplaceAllString(text, "\n\n"), "\n")
}
