// Package webb crawls the licensee head-count ranking of Webb-site and the
// organisation pages it links to.
package webb

import (
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/firmcrawl/internal/crawl"
)

// rows returns the rows belonging to table itself, skipping nested tables.
func rows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})
}

// textNodes returns the trimmed, non-empty text nodes under sel in document
// order. A header cell split by <br> yields one entry per line.
func textNodes(sel *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// checkHeaders compares the header texts of the first row with want.
func checkHeaders(header *goquery.Selection, want []string, pageURL string) error {
	got := textNodes(header.Find("th"))
	if !slices.Equal(got, want) {
		return &crawl.SchemaDriftError{URL: pageURL, Got: got, Want: want}
	}
	return nil
}

// cellText returns the trimmed text of the i-th (1-based) cell of a row.
func cellText(tr *goquery.Selection, i int) string {
	return strings.TrimSpace(tr.Find("td").Eq(i - 1).Text())
}

// parseCount parses a head count, tolerating thousands separators. An empty
// cell counts as zero.
func parseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Wrapf(err, "webb: parse count %q", s)
	}
	return n, nil
}
