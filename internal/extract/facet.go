// Package extract pulls the JSON data blobs embedded in registry pages and
// shapes them according to each facet's multiplicity policy.
package extract

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Multiplicity says whether a facet yields one value or a sequence.
type Multiplicity int

const (
	Single Multiplicity = iota
	Multiple
)

func (m Multiplicity) String() string {
	if m == Multiple {
		return "multiple"
	}
	return "single"
}

// FacetDescriptor is the static description of one facet page. Name is also
// the record field the facet writes.
type FacetDescriptor struct {
	Name         string
	Route        string
	Pattern      *regexp.Regexp
	Fields       []string
	Multiplicity Multiplicity
}

// IsMultiple reports whether the facet yields a sequence.
func (d FacetDescriptor) IsMultiple() bool {
	return d.Multiplicity == Multiple
}

// FacetTable is an ordered, read-only set of facet descriptors built once at
// startup and shared by every fan-out.
type FacetTable struct {
	facets []FacetDescriptor
	index  map[string]int
}

// NewFacetTable validates descriptors and builds a table. Facet names must be
// unique so that no two facets write the same record field.
func NewFacetTable(descs ...FacetDescriptor) (*FacetTable, error) {
	if len(descs) == 0 {
		return nil, eris.New("extract: facet table is empty")
	}
	t := &FacetTable{
		facets: make([]FacetDescriptor, 0, len(descs)),
		index:  make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		switch {
		case d.Name == "":
			return nil, eris.New("extract: facet without a name")
		case d.Pattern == nil:
			return nil, eris.Errorf("extract: facet %s has no pattern", d.Name)
		case d.Pattern.NumSubexp() < 1:
			return nil, eris.Errorf("extract: facet %s pattern has no capture group", d.Name)
		case len(d.Fields) == 0:
			return nil, eris.Errorf("extract: facet %s requests no fields", d.Name)
		}
		if _, dup := t.index[d.Name]; dup {
			return nil, eris.Errorf("extract: duplicate facet %s", d.Name)
		}
		d.Fields = append([]string(nil), d.Fields...)
		t.index[d.Name] = len(t.facets)
		t.facets = append(t.facets, d)
	}
	return t, nil
}

// Lookup returns the descriptor registered under name.
func (t *FacetTable) Lookup(name string) (FacetDescriptor, bool) {
	i, ok := t.index[name]
	if !ok {
		return FacetDescriptor{}, false
	}
	return t.facets[i], true
}

// All returns the descriptors in registration order.
func (t *FacetTable) All() []FacetDescriptor {
	out := make([]FacetDescriptor, len(t.facets))
	copy(out, t.facets)
	return out
}

// Names returns the facet names in registration order.
func (t *FacetTable) Names() []string {
	names := make([]string, len(t.facets))
	for i, d := range t.facets {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of facets.
func (t *FacetTable) Len() int { return len(t.facets) }

type facetFile struct {
	Facets []facetEntry `yaml:"facets"`
}

type facetEntry struct {
	Name     string   `yaml:"name"`
	Route    string   `yaml:"route"`
	Pattern  string   `yaml:"pattern"`
	Fields   []string `yaml:"fields"`
	Multiple bool     `yaml:"multiple"`
}

// LoadFacetTable reads a facet table from a YAML file of the form
//
//	facets:
//	  - name: tel
//	    route: /co
//	    pattern: '\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n'
//	    fields: [tel]
//	    multiple: false
func LoadFacetTable(path string) (*FacetTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read facet file %s", path)
	}
	return ParseFacetTable(data)
}

// ParseFacetTable builds a facet table from YAML bytes.
func ParseFacetTable(data []byte) (*FacetTable, error) {
	var f facetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "extract: parse facet file")
	}

	descs := make([]FacetDescriptor, 0, len(f.Facets))
	for _, e := range f.Facets {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile pattern for facet %s", e.Name)
		}
		m := Single
		if e.Multiple {
			m = Multiple
		}
		descs = append(descs, FacetDescriptor{
			Name:         e.Name,
			Route:        e.Route,
			Pattern:      re,
			Fields:       e.Fields,
			Multiplicity: m,
		})
	}
	return NewFacetTable(descs...)
}
