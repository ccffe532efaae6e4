package extract

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ExtractBlob scans the <script> elements of an HTML page in document order
// and decodes the first capture group of the first match of pattern as a
// JSON array of objects. ok is false when no script matches.
func ExtractBlob(body io.Reader, pattern *regexp.Regexp) (blob []map[string]any, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, false, eris.Wrap(err, "extract: parse html")
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := pattern.FindStringSubmatch(s.Text())
		if m == nil || len(m) < 2 {
			return true
		}
		raw = m[1]
		ok = true
		return false
	})
	if !ok {
		return nil, false, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&blob); err != nil {
		return nil, true, eris.Wrap(err, "extract: decode data blob")
	}
	if blob == nil {
		blob = []map[string]any{}
	}
	return blob, true, nil
}
