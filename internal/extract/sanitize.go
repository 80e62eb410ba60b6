package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinUsableChars is the shortest sanitized text worth sending to the model.
// Client-rendered pages usually fall below it.
const MinUsableChars = 100

const truncationMarker = "..."

// Document is the plain-text reduction of a fetched page. Lengths are in
// characters, not bytes.
type Document struct {
	Text           string
	OriginalLength int
	Truncated      bool
}

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|li|tr)\s*>`)
	lineBreakRe  = regexp.MustCompile(`(?i)<(?:br|hr)\b[^>]*>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	hspaceRe     = regexp.MustCompile(`[ \t\f\v\r\x{00A0}\x{3000}]+`)
	newlineRunRe = regexp.MustCompile(`\s*\n\s*`)

	// One pass, so "&amp;lt;" becomes "&lt;" and not "<".
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// Sanitize reduces markup to visible text. The steps are order dependent.
func Sanitize(raw string) Document {
	s := scriptRe.ReplaceAllString(raw, "")
	s = styleRe.ReplaceAllString(s, "")

	s = blockCloseRe.ReplaceAllString(s, "\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")

	s = tagRe.ReplaceAllString(s, " ")

	s = entityReplacer.Replace(s)

	s = hspaceRe.ReplaceAllString(s, " ")
	s = newlineRunRe.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(s)

	return Document{
		Text:           s,
		OriginalLength: utf8.RuneCountInString(s),
	}
}

// Usable reports whether the text is long enough to extract from.
func (d Document) Usable() bool {
	return utf8.RuneCountInString(d.Text) >= MinUsableChars
}

// Truncate cuts the text to max characters plus an ellipsis marker. Text of
// exactly max characters is returned unchanged.
func (d Document) Truncate(max int) Document {
	if max <= 0 || utf8.RuneCountInString(d.Text) <= max {
		return d
	}
	runes := []rune(d.Text)
	d.Text = string(runes[:max]) + truncationMarker
	d.Truncated = true
	return d
}
