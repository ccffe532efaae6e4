// Package reconcile assembles per-entity records from independently fetched
// facets and releases each record once it is complete.
package reconcile

import "github.com/sells-group/firmcrawl/internal/model"

// Gate holds back records until every required field is present. A field
// whose value is nil or empty still counts as present.
type Gate struct {
	RequiredFields []string
}

// SFCGate requires every registry facet.
var SFCGate = Gate{RequiredFields: []string{
	model.FieldTel,
	model.FieldEmail,
	model.FieldConditions,
	model.FieldDisciplinaryActions,
}}

// Complete reports whether rec carries all required fields.
func (g Gate) Complete(rec model.Record) bool {
	for _, f := range g.RequiredFields {
		if !rec.Has(f) {
			return false
		}
	}
	return true
}

// Missing lists the required fields rec does not carry yet.
func (g Gate) Missing(rec model.Record) []string {
	var out []string
	for _, f := range g.RequiredFields {
		if !rec.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
