// Package segment splits page text into sentences and words and cleans text
// for speech synthesis.
package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// Span is a sentence candidate with its byte extent in the source text. Text
// is the trimmed sentence; Start and End delimit the contiguous substring of
// the source it was cut from.
type Span struct {
	Text  string
	Start int
	End   int
}

// Word is a whitespace-delimited token with its byte offset in the source.
// Real reports whether the token contains at least one alphanumeric rune;
// symbol-only tokens are skippable for display and matching but still occupy
// a cursor position so indices stay aligned.
type Word struct {
	Text   string
	Offset int
	Real   bool
}

// Segmenter performs sentence and word segmentation. The zero value is not
// usable; create one with New.
type Segmenter struct {
	hyphenBreakRegex *regexp.Regexp
	citationRegex    *regexp.Regexp
	parenCiteRegex   *regexp.Regexp
	superscriptRegex *regexp.Regexp
	glyphRegex       *regexp.Regexp
	whitespaceRegex  *regexp.Regexp

	abbreviations map[string]bool
}

// New creates a segmenter with compiled patterns.
func New() *Segmenter {
	return &Segmenter{
		hyphenBreakRegex: regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{L})`),
		citationRegex:    regexp.MustCompile(`\[\d+\]`),
		parenCiteRegex:   regexp.MustCompile(`\(\d+\)`),
		superscriptRegex: regexp.MustCompile("[⁰¹²³⁴-⁹]"),
		glyphRegex: regexp.MustCompile("[•◦▪‣·" + // bullets
			"←-⇿" + // arrows
			"∀-⋿" + // math operators
			"─-╿]"), // box drawing
		whitespaceRegex: regexp.MustCompile(`\s+`),
		abbreviations:   makeAbbreviationMap(),
	}
}

// Sentences splits text into admitted sentence spans. Newlines are treated
// as boundary signals and surrounding whitespace is collapsed into the span
// trim. Empty input yields an empty slice.
func (s *Segmenter) Sentences(text string) []Span {
	var spans []Span
	runes := []rune(text)
	lastStart := 0

	flush := func(start, end int) {
		raw := string(runes[start:end])
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || !Admit(trimmed) {
			return
		}
		// Tighten the span to the trimmed extent.
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		byteStart := len(string(runes[:start])) + lead
		spans = append(spans, Span{
			Text:  trimmed,
			Start: byteStart,
			End:   byteStart + len(trimmed),
		})
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush(lastStart, i)
			lastStart = i + 1
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Collect trailing punctuation and closing quotes/brackets.
		punctEnd := i + 1
		for punctEnd < len(runes) && (runes[punctEnd] == '.' || runes[punctEnd] == '!' || runes[punctEnd] == '?') {
			punctEnd++
		}
		for punctEnd < len(runes) && isClosing(runes[punctEnd]) {
			punctEnd++
		}
		if !s.isSentenceEnd(runes, i) {
			continue
		}
		flush(lastStart, punctEnd)
		for punctEnd < len(runes) && unicode.IsSpace(runes[punctEnd]) && runes[punctEnd] != '\n' {
			punctEnd++
		}
		lastStart = punctEnd
		i = punctEnd - 1
	}
	flush(lastStart, len(runes))
	return spans
}

// CleanForSpeech strips markers that read badly aloud: citation markers like
// [12] and (3), superscript digits, bullet/arrow/math glyphs and box-drawing
// characters. Hyphenated line breaks are rejoined before anything else so
// "inter-\nesting" becomes "interesting". Applying it twice yields the same
// result as once.
func (s *Segmenter) CleanForSpeech(text string) string {
	text = s.hyphenBreakRegex.ReplaceAllString(text, "$1$2")
	text = s.citationRegex.ReplaceAllString(text, "")
	text = s.parenCiteRegex.ReplaceAllString(text, "")
	text = s.superscriptRegex.ReplaceAllString(text, "")
	text = s.glyphRegex.ReplaceAllString(text, " ")
	text = s.whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Words tokenizes text into whitespace-delimited words.
func (s *Segmenter) Words(text string) []Word {
	return s.WordsWithPositions(text)
}

// WordsWithPositions tokenizes text and records each word's byte offset in
// the source.
func (s *Segmenter) WordsWithPositions(text string) []Word {
	var words []Word
	i := 0
	for i < len(text) {
		// Skip whitespace.
		for i < len(text) && isSpaceByte(text[i]) {
			i++
		}
		if i >= len(text) {
			break
		}
		start := i
		for i < len(text) && !isSpaceByte(text[i]) {
			i++
		}
		tok := text[start:i]
		words = append(words, Word{
			Text:   tok,
			Offset: start,
			Real:   hasAlnum(tok),
		})
	}
	return words
}

// Normalize lowercases a token and strips everything that is not a letter or
// digit. Used for speak-along comparison.
func Normalize(token string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(token) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Admit reports whether a sentence candidate belongs in the spoken sequence.
// Stray running heads and bare page numbers fail the alphanumeric density or
// minimum-count checks.
func Admit(text string) bool {
	var alnum, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if alnum < 3 {
		return false
	}
	return float64(alnum) >= 0.3*float64(total)
}

// isSentenceEnd checks whether the punctuation at pos really terminates a
// sentence, guarding against abbreviations, decimals and ellipses.
func (s *Segmenter) isSentenceEnd(runes []rune, pos int) bool {
	punct := runes[pos]

	// Word before the punctuation, lowercased, including the punctuation.
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	wordBefore := strings.ToLower(string(runes[start+1 : pos+1]))

	if punct == '.' && wordBefore != "" {
		noPeriod := strings.TrimSuffix(wordBefore, ".")
		if s.abbreviations[noPeriod] || s.abbreviations[wordBefore] {
			return false
		}
		// Multi-part abbreviations like "u.s." or "ph.d."
		if strings.Count(wordBefore, ".") > 1 {
			return false
		}
	}

	// Decimal numbers.
	if punct == '.' && pos > 0 && pos+1 < len(runes) &&
		unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
		return false
	}

	// Ellipsis.
	if punct == '.' && pos+2 < len(runes) && runes[pos+1] == '.' && runes[pos+2] == '.' {
		return false
	}

	next := pos + 1
	for next < len(runes) && isClosing(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[next]) {
		return false
	}
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) || unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]) {
		return true
	}
	// Exclamation and question marks terminate regardless of what follows.
	return punct == '!' || punct == '?'
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr",
		"i.e", "e.g", "etc", "vs", "cf", "al",
		"inc", "ltd", "co", "corp",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"st", "rd", "ave", "blvd",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi",
		"hr", "hrs", "min", "mins", "sec", "secs",
		"fig", "figs", "ch", "sec", "vol", "pp", "pg", "no",
	}
	m := make(map[string]bool)
	for _, a := range abbrevs {
		m[a] = true
		if !strings.Contains(a, ".") {
			m[a+"."] = true
		}
	}
	return m
}
