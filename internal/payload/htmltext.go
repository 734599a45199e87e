package payload

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText flattens the HTML abstracts the ingestion pipeline stores into
// plain terminal text. Block elements become line breaks; everything else is
// concatenated.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var b strings.Builder
	doc.Find("p, li, br, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	b.WriteString(doc.Text())

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
