package extract

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmcrawl/internal/crawl"
)

var (
	generalPattern = regexp.MustCompile(`\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n`)
	emailPattern   = regexp.MustCompile(`\bvar\s+emailData\s*=\s*(\[.*?\])\s*;\s*\n`)
)

func page(scripts ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Public Register</title></head><body>")
	for _, s := range scripts {
		sb.WriteString("<script type=\"text/javascript\">\n")
		sb.WriteString(s)
		sb.WriteString("\n</script>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func disciplinaryFacet() FacetDescriptor {
	return FacetDescriptor{
		Name:         "disciplinary_actions",
		Route:        "/da",
		Pattern:      generalPattern,
		Fields:       []string{"actnDate", "codeDesc", "codeCdesc", "engDocSeq", "chiDocSeq"},
		Multiplicity: Multiple,
	}
}

func telFacet() FacetDescriptor {
	return FacetDescriptor{
		Name:         "tel",
		Route:        "/co",
		Pattern:      generalPattern,
		Fields:       []string{"tel"},
		Multiplicity: Single,
	}
}

func TestExtractBlob_FirstMatchingScript(t *testing.T) {
	body := page(
		"var lang = 'en';",
		`var cofficerData = [{"tel":"2840 9222"}];`+"\n",
		`var otherData = [{"tel":"0000"}];`+"\n",
	)

	blob, ok, err := ExtractBlob(strings.NewReader(body), generalPattern)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, blob, 1)
	assert.Equal(t, "2840 9222", blob[0]["tel"])
}

func TestExtractBlob_EmailPatternSkipsOtherBlobs(t *testing.T) {
	body := page(
		`var addrData = [{"addr":"Central"}];`+"\n"+
			`var emailData = [{"email":"compliance@example.com"}];`+"\n",
	)

	blob, ok, err := ExtractBlob(strings.NewReader(body), emailPattern)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "compliance@example.com", blob[0]["email"])
}

func TestExtractBlob_NotFound(t *testing.T) {
	blob, ok, err := ExtractBlob(strings.NewReader(page("var x = 1;")), generalPattern)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, blob)
}

func TestExtractBlob_RequiresTrailingNewline(t *testing.T) {
	body := `<html><body><script>var condData = [];</script></body></html>`
	_, ok, err := ExtractBlob(strings.NewReader(body), generalPattern)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractBlob_InvalidJSON(t *testing.T) {
	body := page(`var condData = [{"a":}];` + "\n")
	_, ok, err := ExtractBlob(strings.NewReader(body), generalPattern)
	require.Error(t, err)
	assert.True(t, ok)
}

func TestExtractBlob_EmptyArray(t *testing.T) {
	body := page(`var condData = [];` + "\n")
	blob, ok, err := ExtractBlob(strings.NewReader(body), generalPattern)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, blob)
	assert.Empty(t, blob)
}

func TestShape_EmptyBlob(t *testing.T) {
	multi, err := Shape(disciplinaryFacet(), nil)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{}, multi)

	single, err := Shape(telFacet(), []map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "", single)
}

func TestShape_SingleValue(t *testing.T) {
	v, err := Shape(telFacet(), []map[string]any{{"tel": "2840 9222", "fax": "2521 7836"}})
	require.NoError(t, err)
	assert.Equal(t, "2840 9222", v)
}

func TestShape_SingleValueMissingField(t *testing.T) {
	v, err := Shape(telFacet(), []map[string]any{{"fax": "2521 7836"}})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestShape_SingleValueKeepsFirstOfMany(t *testing.T) {
	v, err := Shape(telFacet(), []map[string]any{{"tel": "first"}, {"tel": "second"}})
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestShape_DisciplinaryExample(t *testing.T) {
	body := page(`var disRemarkData = [{"actnDate":"2020-01-01","codeDesc":"X","engDocSeq":1}];` + "\n")

	v, err := Facet(disciplinaryFacet(), strings.NewReader(body), "https://apps.sfc.hk/publicregWeb/corp/AAA001/da")
	require.NoError(t, err)

	want := []map[string]any{{
		"actnDate":  "2020-01-01",
		"codeDesc":  "X",
		"codeCdesc": nil,
		"engDocSeq": json.Number("1"),
		"chiDocSeq": nil,
	}}
	assert.Equal(t, want, v)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"actnDate":"2020-01-01","codeDesc":"X","codeCdesc":null,"engDocSeq":1,"chiDocSeq":null}]`, string(out))
}

func TestShape_Unhandled(t *testing.T) {
	tests := []struct {
		name string
		desc FacetDescriptor
	}{
		{
			name: "multiple with one field",
			desc: FacetDescriptor{Name: "emails", Pattern: generalPattern, Fields: []string{"email"}, Multiplicity: Multiple},
		},
		{
			name: "single with several fields",
			desc: FacetDescriptor{Name: "contact", Pattern: generalPattern, Fields: []string{"tel", "fax"}, Multiplicity: Single},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Shape(tt.desc, []map[string]any{{"email": "a"}, {"email": "b"}})
			var shapeErr *crawl.UnhandledShapeError
			require.True(t, errors.As(err, &shapeErr))
			assert.Equal(t, tt.desc.Name, shapeErr.Facet)
			assert.Equal(t, 2, shapeErr.Elements)
			assert.Equal(t, "unhandled_shape", crawl.Kind(err))
		})
	}
}

func TestFacet_BlobNotFound(t *testing.T) {
	_, err := Facet(telFacet(), strings.NewReader("<html><body>Service unavailable</body></html>"), "https://example.test/co")
	var notFound *crawl.BlobNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "tel", notFound.Facet)
	assert.Equal(t, "https://example.test/co", notFound.URL)
}

func TestNewFacetTable(t *testing.T) {
	table, err := NewFacetTable(telFacet(), disciplinaryFacet())
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"tel", "disciplinary_actions"}, table.Names())

	d, ok := table.Lookup("disciplinary_actions")
	require.True(t, ok)
	assert.Equal(t, "/da", d.Route)
	assert.True(t, d.IsMultiple())

	_, ok = table.Lookup("fax")
	assert.False(t, ok)

	all := table.All()
	all[0].Name = "mutated"
	assert.Equal(t, "tel", table.All()[0].Name)
}

func TestNewFacetTable_Rejects(t *testing.T) {
	noGroup := telFacet()
	noGroup.Pattern = regexp.MustCompile(`var`)
	noFields := telFacet()
	noFields.Fields = nil

	tests := []struct {
		name  string
		descs []FacetDescriptor
	}{
		{"empty", nil},
		{"duplicate", []FacetDescriptor{telFacet(), telFacet()}},
		{"no capture group", []FacetDescriptor{noGroup}},
		{"no fields", []FacetDescriptor{noFields}},
		{"no pattern", []FacetDescriptor{{Name: "tel", Fields: []string{"tel"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFacetTable(tt.descs...)
			require.Error(t, err)
		})
	}
}

func TestLoadFacetTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facets.yaml")
	content := `facets:
  - name: tel
    route: /co
    pattern: '\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n'
    fields: [tel]
  - name: conditions
    route: /conditions
    pattern: '\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n'
    fields: [conditionDtl, conditionCDtl, effDate]
    multiple: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadFacetTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tel", "conditions"}, table.Names())

	cond, ok := table.Lookup("conditions")
	require.True(t, ok)
	assert.Equal(t, Multiple, cond.Multiplicity)
	assert.Equal(t, generalPattern.String(), cond.Pattern.String())
}

func TestLoadFacetTable_BadPattern(t *testing.T) {
	_, err := ParseFacetTable([]byte("facets:\n  - name: tel\n    pattern: '('\n    fields: [tel]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile pattern")
}

func TestLoadFacetTable_MissingFile(t *testing.T) {
	_, err := LoadFacetTable(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
