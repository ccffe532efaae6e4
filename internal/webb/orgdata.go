package webb

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/model"
)

// ParseOrgData reads the labelled rows of an organisation page into rec.
// Labels that are missing leave their field unset.
func ParseOrgData(r io.Reader, rec model.Record) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return eris.Wrap(err, "webb: parse orgdata html")
	}

	var parseErr error
	doc.Find("table tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		value := tr.Find("td").Eq(1)
		anchor := value.Find("a").First()

		switch {
		case hasLabel(tr, "Domicile:"):
			rec[model.FieldDomicile] = firstText(value)
		case hasLabel(tr, "Incorporation number:"):
			rec[model.FieldIncorporationNumber] = strings.TrimSpace(anchor.Text())
		case hasLabel(tr, "Formed:"):
			s := firstText(value)
			if s == "" {
				return true
			}
			d, err := model.ParseDate(s)
			if err != nil {
				parseErr = eris.Wrapf(err, "webb: formed date %q", s)
				return false
			}
			rec[model.FieldFormedOn] = d
		case hasLabel(tr, "SFC ID:"):
			rec[model.FieldCeref] = strings.TrimSpace(anchor.Text())
		case hasLabel(tr, "Web sites:"):
			if href, ok := anchor.Attr("href"); ok {
				rec[model.FieldWebsite] = href
			}
		}
		return true
	})
	return parseErr
}

func hasLabel(tr *goquery.Selection, label string) bool {
	found := false
	tr.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		found = strings.Contains(td.Text(), label)
		return !found
	})
	return found
}

func firstText(sel *goquery.Selection) string {
	if texts := textNodes(sel); len(texts) > 0 {
		return texts[0]
	}
	return ""
}
