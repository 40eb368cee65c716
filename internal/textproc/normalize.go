package textproc

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	markupRe     = regexp.MustCompile(`(?i)<\s*(/?[a-z][a-z0-9]*)(\s[^<>]*)?/?>`)
	spaceRunRe   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n+`)
)

// Normalize cleans scraped listing text: markup is stripped, entities are
// unescaped, whitespace runs collapse to one space and blank-line runs to a
// single blank line.
func Normalize(s string) string {
	if markupRe.MatchString(s) {
		s = StripHTML(s)
	} else {
		s = html.UnescapeString(s)
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// StripHTML returns the visible text of an HTML fragment. Block elements end
// a line; script, style and noscript content is dropped.
func StripHTML(s string) string {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return sb.String()
		case xhtml.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
				sb.WriteByte('\n')
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
				sb.WriteByte('\n')
			}
		}
	}
}

// Fold lowercases s and removes diacritics ("Università" -> "universita").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeKey lowercases, trims and collapses inner whitespace. It is the
// identity used to key cached lookups.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokens splits s into folded word tokens. Apostrophes and hyphens separate
// words; digits are kept.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsTerm reports whether the folded text contains term as a whole word
// sequence. Both arguments are folded before matching.
func ContainsTerm(text, term string) bool {
	tt := Tokens(term)
	if len(tt) == 0 {
		return false
	}
	words := Tokens(text)
	for i := 0; i+len(tt) <= len(words); i++ {
		match := true
		for j := range tt {
			if words[i+j] != tt[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
