package webb

import (
	"io"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/model"
)

// RankingHeaders is the expected header row of the head-count ranking.
var RankingHeaders = []string{"Row", "Name", "ROs", "Reps", "Total", "Reps v", "total %", "Licensed"}

// DefaultLicensedOn is used for firms licensed before the current regime
// took effect, for which the ranking shows no date.
var DefaultLicensedOn = model.NewDate(2003, 4, 1)

var webbCodePattern = regexp.MustCompile(`p=(\d+)&`)

// RankingRow is one firm of the head-count ranking.
type RankingRow struct {
	Name       string
	NumROs     int
	NumReps    int
	LicensedOn model.Date
	WebbCode   string
}

// Record converts the row to a partial firm record.
func (r RankingRow) Record() model.Record {
	return model.Record{
		model.FieldName:       r.Name,
		model.FieldNumROs:     r.NumROs,
		model.FieldNumReps:    r.NumReps,
		model.FieldLicensedOn: r.LicensedOn,
		model.FieldWebbCode:   r.WebbCode,
	}
}

// ParseRanking parses the ranking table. The header row must match
// RankingHeaders exactly; otherwise SchemaDriftError is returned and no rows.
// The header and the trailing totals row are skipped.
func ParseRanking(r io.Reader, pageURL string) ([]RankingRow, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "webb: parse ranking html")
	}

	table := doc.Find("table[class='numtable']").First()
	trs := rows(table)
	if trs.Length() == 0 {
		return nil, &crawl.SchemaDriftError{URL: pageURL, Want: RankingHeaders}
	}
	if err := checkHeaders(trs.First(), RankingHeaders, pageURL); err != nil {
		return nil, err
	}

	var out []RankingRow
	for i := 1; i < trs.Length()-1; i++ {
		row, err := parseRankingRow(trs.Eq(i))
		if err != nil {
			return nil, eris.Wrapf(err, "webb: ranking row %d", i)
		}
		out = append(out, row)
	}
	return out, nil
}

func parseRankingRow(tr *goquery.Selection) (RankingRow, error) {
	ros, err := parseCount(cellText(tr, 3))
	if err != nil {
		return RankingRow{}, err
	}
	reps, err := parseCount(cellText(tr, 4))
	if err != nil {
		return RankingRow{}, err
	}

	licensed := DefaultLicensedOn
	if s := cellText(tr, 7); s != "" {
		licensed, err = model.ParseDate(s)
		if err != nil {
			return RankingRow{}, eris.Wrapf(err, "webb: licensed date %q", s)
		}
	}

	var code string
	tr.Find("td[class='left'] > a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := webbCodePattern.FindStringSubmatch(a.AttrOr("href", "")); m != nil {
			code = m[1]
			return false
		}
		return true
	})

	return RankingRow{
		Name:       model.NormalizeText(cellText(tr, 2)),
		NumROs:     ros,
		NumReps:    reps,
		LicensedOn: licensed,
		WebbCode:   code,
	}, nil
}
