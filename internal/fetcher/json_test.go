package fetcher

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func TestDecodeJSONObject_KeepsNumbers(t *testing.T) {
	type listing struct {
		TotalCount json.Number      `json:"totalCount"`
		Items      []map[string]any `json:"items"`
	}

	out, err := DecodeJSONObject[listing](stringsReader(`{"totalCount":2,"items":[{"ceref":"AAA001","seq":12345678901234567}]}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), out.TotalCount)
	require.Len(t, out.Items, 1)
	assert.Equal(t, json.Number("12345678901234567"), out.Items[0]["seq"])
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	_, err := DecodeJSONObject[map[string]any](stringsReader(`<html>maintenance</html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode object")
}
