package stimulus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	markupPattern     = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// LooksLikeHTML reports whether raw contains at least one markup tag.
func LooksLikeHTML(raw string) bool {
	return markupPattern.MatchString(raw)
}

// Normalize turns pasted ad copy into plain text. Markup (landing page
// fragments, email HTML) is reduced to its visible text with block elements
// separated by whitespace. Plain text only has its whitespace collapsed.
func Normalize(raw string) (string, error) {
	if !LooksLikeHTML(raw) {
		return collapse(raw), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse stimulus markup: %w", err)
	}

	doc.Find("script, style, noscript, head").Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, td, section, article, header, footer").
		Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml(" ")
		})

	var parts []string
	if text := collapse(doc.Find("body").Text()); text != "" {
		parts = append(parts, text)
	}
	doc.Find("img[alt]").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			parts = append(parts, collapse(alt))
		}
	})

	return strings.Join(parts, " "), nil
}

func collapse(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
