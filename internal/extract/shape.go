package extract

import (
	"io"

	"github.com/sells-group/firmcrawl/internal/crawl"
)

// Shape maps a decoded blob to the value stored under the facet's field.
//
// An empty blob yields an empty sequence or an empty string. A single-valued
// facet with one requested field yields that field of the first element,
// even when the page lists several elements. A multi-valued facet with
// several fields yields one object per element holding exactly those fields.
// Any other combination is an UnhandledShapeError.
func Shape(desc FacetDescriptor, blob []map[string]any) (any, error) {
	if len(blob) == 0 {
		if desc.IsMultiple() {
			return []map[string]any{}, nil
		}
		return "", nil
	}

	oneField := len(desc.Fields) == 1
	switch {
	case oneField && !desc.IsMultiple():
		// Several elements on a single-valued page: keep the first.
		return blob[0][desc.Fields[0]], nil
	case len(desc.Fields) > 1 && desc.IsMultiple():
		out := make([]map[string]any, 0, len(blob))
		for _, elem := range blob {
			obj := make(map[string]any, len(desc.Fields))
			for _, f := range desc.Fields {
				obj[f] = elem[f]
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, &crawl.UnhandledShapeError{
			Facet:    desc.Name,
			Elements: len(blob),
			Fields:   len(desc.Fields),
			Multiple: desc.IsMultiple(),
		}
	}
}

// Facet extracts and shapes one facet page fetched from url.
func Facet(desc FacetDescriptor, body io.Reader, url string) (any, error) {
	blob, ok, err := ExtractBlob(body, desc.Pattern)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &crawl.BlobNotFoundError{Facet: desc.Name, URL: url}
	}
	return Shape(desc, blob)
}
