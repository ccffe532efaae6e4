package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmcrawl/internal/config"
	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/fetcher"
	fetchermocks "github.com/sells-group/firmcrawl/internal/fetcher/mocks"
	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/store"
)

func TestSpiderNames(t *testing.T) {
	assert.Nil(t, spiderNames(nil))
	assert.Nil(t, spiderNames([]string{"sfc", "all"}))
	assert.Equal(t, []string{"webb"}, spiderNames([]string{"webb"}))
	assert.Equal(t, []string{"webb", "sfc"}, spiderNames([]string{"webb", "sfc", "webb"}))
}

func testConfig(webbURL string) *config.Config {
	c := &config.Config{}
	c.Crawl.MaxConcurrency = 2
	c.SFC.Partitions = []string{"A"}
	c.SFC.PageSize = 200
	c.SFC.RAType = 6
	c.SFC.PartitionConcurrency = 1
	c.Webb.BaseURL = webbURL
	c.Webb.RAType = 6
	return c
}

func TestBuildRegistry(t *testing.T) {
	reg, err := buildRegistry(testConfig(""), fetchermocks.NewMockFetcher(t))
	require.NoError(t, err)
	assert.Equal(t, knownSpiders, reg.Names())
}

func TestBuildRegistry_FacetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facets.yaml")
	facets := `facets:
  - name: tel
    route: /co
    pattern: '\bvar\s+\w+Data\s*=\s*(\[.*?\])\s*;\s*\n'
    fields: [tel]
`
	require.NoError(t, os.WriteFile(path, []byte(facets), 0o644))

	c := testConfig("")
	c.SFC.FacetsFile = path
	_, err := buildRegistry(c, fetchermocks.NewMockFetcher(t))
	require.NoError(t, err)
}

func TestBuildRegistry_BadFacetsFile(t *testing.T) {
	c := testConfig("")
	c.SFC.FacetsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildRegistry(c, fetchermocks.NewMockFetcher(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load facets")
}

const e2eRanking = `<html><body>
<table class="numtable">
<tr><th>Row</th><th>Name</th><th>ROs</th><th>Reps</th><th>Total</th><th>Reps v<br>total %</th><th>Licensed</th></tr>
<tr><td>1</td><td class="left"><a href="SFClicensees.asp?p=11&amp;a=6">Alpha Capital Limited</a></td><td>12</td><td>40</td><td>52</td><td>76.9</td><td>2005-07-12</td></tr>
<tr><td>2</td><td class="left"><a href="SFClicensees.asp?p=22&amp;a=6">Beta Securities Limited</a></td><td>3</td><td>7</td><td>10</td><td>70.0</td></tr>
<tr><td></td><td>Total</td><td>15</td><td>47</td><td>62</td><td>75.8</td><td></td></tr>
</table>
</body></html>`

const e2eOrgData = `<html><body>
<table>
<tr><td>Domicile:</td><td>Hong Kong</td></tr>
<tr><td>SFC ID:</td><td><a href="https://apps.sfc.hk/publicregWeb/corp/%[1]s/details">%[1]s</a></td></tr>
</table>
</body></html>`

func TestCrawl_WebbIntoSQLite(t *testing.T) {
	cerefs := map[string]string{"11": "AAA001", "22": "BBB002"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/SFClicount.asp":
			_, _ = w.Write([]byte(e2eRanking))
		case "/orgdata.asp":
			ceref, ok := cerefs[r.URL.Query().Get("p")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = fmt.Fprintf(w, e2eOrgData, ceref)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "firms.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RatePerSec: 100, MaxRetries: 1})
	reg, err := buildRegistry(testConfig(srv.URL), f)
	require.NoError(t, err)

	engine := crawl.NewEngine(reg, st, crawl.StoreSinks(st))
	summary, err := engine.Run(ctx, spiderNames([]string{"webb"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"webb"}, summary.Succeeded)
	assert.Empty(t, summary.Failed)

	firm, err := st.GetFirm(ctx, "AAA001")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Capital Limited", firm.Name)
	require.NotNil(t, firm.NumReps)
	assert.Equal(t, 40, *firm.NumReps)
	assert.Equal(t, "Hong Kong", firm.Domicile)
	assert.Equal(t, "11", firm.WebbCode)

	beta, err := st.GetFirm(ctx, "BBB002")
	require.NoError(t, err)
	require.NotNil(t, beta.LicensedOn)
	assert.Equal(t, "2003-04-01", beta.LicensedOn.String())

	runs, err := st.ListRuns(ctx, store.RunFilter{Spider: "webb"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}
