package provider

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func truncateWithEllipsis(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// htmlToText strips markup from a feed description. Block elements are
// separated by spaces so adjacent paragraphs do not run together.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return cleanText(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("p, br, li, div, h1, h2, h3, h4, tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return cleanText(doc.Text())
}
