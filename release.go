package main

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// summarizeHTML converts the first paragraph of a release overview to plain
// text, truncated to at most limit runes.
func summarizeHTML(s string, limit int) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()

	var t string
	doc.Find("p, li").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t = strings.Join(strings.Fields(p.Text()), " ")
		return t == ""
	})
	if t == "" {
		t = strings.Join(strings.Fields(doc.Text()), " ")
	}

	if r := []rune(t); limit > 0 && len(r) > limit {
		t = strings.TrimSpace(string(r[:limit-1])) + "…"
	}
	return t
}
