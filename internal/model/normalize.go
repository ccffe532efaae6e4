package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds compatibility characters (full-width Latin letters and
// digits, ideographic spaces) and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
