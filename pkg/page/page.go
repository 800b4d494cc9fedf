// Package page extracts human-readable bits of a product page for use in
// notification bodies. Nothing here feeds the stock verdict.
package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Summary holds whatever identifying text could be pulled from a page.
type Summary struct {
	Title       string
	Description string
}

// Summarize parses the page and returns its og:title (falling back to the
// document title) and meta description. Unparseable content yields an empty
// Summary; callers fall back to the configured site label.
func Summarize(content string) Summary {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return Summary{}
	}

	var s Summary
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		s.Title = clean(og)
	}
	if s.Title == "" {
		s.Title = clean(doc.Find("title").First().Text())
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		s.Description = clean(desc)
	}
	return s
}

func clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
