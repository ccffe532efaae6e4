package webb

import (
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/model"
)

// HistoryHeaders is the expected header row of a firm's head-count history.
var HistoryHeaders = []string{"Date", "ROs", "Reps", "Total", "Reps v total"}

// ParseHeadcountHistory parses the dated head counts of one firm.
func ParseHeadcountHistory(r io.Reader, pageURL string) ([]model.HeadcountSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "webb: parse history html")
	}

	table := doc.Find("table[class='numtable center']").First()
	trs := rows(table)
	if trs.Length() == 0 {
		return nil, &crawl.SchemaDriftError{URL: pageURL, Want: HistoryHeaders}
	}
	if err := checkHeaders(trs.First(), HistoryHeaders, pageURL); err != nil {
		return nil, err
	}

	out := make([]model.HeadcountSnapshot, 0, trs.Length()-1)
	for i := 1; i < trs.Length(); i++ {
		tr := trs.Eq(i)
		date, err := model.ParseDate(cellText(tr, 1))
		if err != nil {
			return nil, eris.Wrapf(err, "webb: history row %d date", i)
		}
		ros, err := parseCount(cellText(tr, 2))
		if err != nil {
			return nil, err
		}
		reps, err := parseCount(cellText(tr, 3))
		if err != nil {
			return nil, err
		}
		out = append(out, model.HeadcountSnapshot{Date: date, NumROs: ros, NumReps: reps})
	}
	return out, nil
}
