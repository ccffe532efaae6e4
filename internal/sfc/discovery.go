// Package sfc crawls the SFC public register of licensed corporations.
package sfc

import (
	"io"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/fetcher"
	"github.com/sells-group/firmcrawl/internal/model"
)

// SearchOptions are the fixed parameters of a listing search.
type SearchOptions struct {
	RAType   int
	PageSize int
}

// DefaultSearchOptions searches licensees for regulated activity 6 (advising
// on corporate finance), 200 per page.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{RAType: 6, PageSize: 200}
}

// SearchForm builds the form posted to the listing endpoint for one name
// initial.
func SearchForm(partition string, opts SearchOptions) url.Values {
	return url.Values{
		"licstatus":       {"active"},
		"ratype":          {strconv.Itoa(opts.RAType)},
		"roleType":        {"corporation"},
		"limit":           {strconv.Itoa(opts.PageSize)},
		"nameStartLetter": {partition},
	}
}

// ListingItem is one row of a listing response.
type ListingItem struct {
	Ceref   string  `json:"ceref"`
	Name    string  `json:"name"`
	NameChi *string `json:"nameChi"`
	IsCorp  bool    `json:"isCorp"`
	IsRi    bool    `json:"isRi"`
	IsEo    bool    `json:"isEo"`
	IsIndi  bool    `json:"isIndi"`
}

// Classify maps the item's flags to a category. Flags are checked in the
// order corp, ri, eo, indi and the first set flag wins.
func (it ListingItem) Classify() (model.Category, error) {
	switch {
	case it.IsCorp:
		return model.CategoryCorp, nil
	case it.IsRi:
		return model.CategoryRI, nil
	case it.IsEo:
		return model.CategoryEO, nil
	case it.IsIndi:
		return model.CategoryIndi, nil
	default:
		return "", &crawl.UnclassifiedEntityError{Ceref: it.Ceref}
	}
}

// Stub converts the item to an entity stub with normalized names.
func (it ListingItem) Stub() (model.EntityStub, error) {
	cat, err := it.Classify()
	if err != nil {
		return model.EntityStub{}, err
	}
	stub := model.EntityStub{
		Ceref:    it.Ceref,
		Name:     model.NormalizeText(it.Name),
		Category: cat,
	}
	if it.NameChi != nil {
		chi := model.NormalizeText(*it.NameChi)
		stub.NameChi = &chi
	}
	return stub, nil
}

type listing struct {
	TotalCount int           `json:"totalCount"`
	Items      []ListingItem `json:"items"`
}

// DecodeListing decodes a listing response. A zero total yields no items. A
// response whose item count differs from its declared total fails with
// CountMismatchError and yields nothing.
func DecodeListing(partition string, r io.Reader) ([]ListingItem, error) {
	l, err := fetcher.DecodeJSONObject[listing](r)
	if err != nil {
		return nil, eris.Wrapf(err, "sfc: decode listing for partition %s", partition)
	}
	if l.TotalCount == 0 {
		return nil, nil
	}
	if len(l.Items) != l.TotalCount {
		return nil, &crawl.CountMismatchError{
			Partition: partition,
			Received:  len(l.Items),
			Declared:  l.TotalCount,
		}
	}
	return l.Items, nil
}
