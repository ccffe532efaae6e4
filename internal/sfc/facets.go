package sfc

import (
	"regexp"
	"strings"

	"github.com/sells-group/firmcrawl/internal/extract"
	"github.com/sells-group/firmcrawl/internal/model"
)

var (
	generalPattern = regexp.MustCompile(`\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n`)
	emailPattern   = regexp.MustCompile(`\bvar\s+emailData\s*=\s*(\[.*?\])\s*;\s*\n`)
)

// DefaultFacets returns the facet table of the register's detail pages.
func DefaultFacets() *extract.FacetTable {
	t, err := extract.NewFacetTable(
		extract.FacetDescriptor{
			Name:         model.FieldEmail,
			Route:        "/addresses",
			Pattern:      emailPattern,
			Fields:       []string{"email"},
			Multiplicity: extract.Single,
		},
		extract.FacetDescriptor{
			Name:         model.FieldTel,
			Route:        "/co",
			Pattern:      generalPattern,
			Fields:       []string{"tel"},
			Multiplicity: extract.Single,
		},
		extract.FacetDescriptor{
			Name:         model.FieldConditions,
			Route:        "/conditions",
			Pattern:      generalPattern,
			Fields:       []string{"conditionDtl", "conditionCDtl", "effDate"},
			Multiplicity: extract.Multiple,
		},
		extract.FacetDescriptor{
			Name:         model.FieldDisciplinaryActions,
			Route:        "/da",
			Pattern:      generalPattern,
			Fields:       []string{"actnDate", "codeDesc", "codeCdesc", "engDocSeq", "chiDocSeq"},
			Multiplicity: extract.Multiple,
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// FacetURL returns the detail page of a facet for one entity.
func FacetURL(base string, stub model.EntityStub, desc extract.FacetDescriptor) string {
	return strings.TrimRight(base, "/") + "/" + string(stub.Category) + "/" + stub.Ceref + desc.Route
}
