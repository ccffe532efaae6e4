package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Category is the register section an SFC entity is listed under. It doubles
// as the path segment of the entity's detail pages.
type Category string

const (
	CategoryCorp Category = "corp"
	CategoryRI   Category = "ri"
	CategoryEO   Category = "eo"
	CategoryIndi Category = "indi"
)

// EntityStub is the minimal identity returned by a discovery listing.
type EntityStub struct {
	Ceref    string   `json:"ceref"`
	Name     string   `json:"name"`
	NameChi  *string  `json:"nameChi"`
	Category Category `json:"category"`
}

// Output field names. Every facet and table column writes to exactly one of
// these keys.
const (
	FieldCeref                = "ceref"
	FieldName                 = "name"
	FieldNameChi              = "nameChi"
	FieldTel                  = "tel"
	FieldEmail                = "email"
	FieldConditions           = "conditions"
	FieldDisciplinaryActions  = "disciplinary_actions"
	FieldNumROs               = "num_ros"
	FieldNumReps              = "num_reps"
	FieldLicensedOn           = "licensed_on"
	FieldWebbCode             = "webb_code"
	FieldDomicile             = "domicile"
	FieldFormedOn             = "formed_on"
	FieldIncorporationNumber  = "incorporation_number"
	FieldWebsite              = "website"
	FieldHistNumProfessionals = "hist_num_professionals"
)

// Record is a firm document, or a part of one, keyed by output field name.
// Only the keys present are written on upsert.
type Record map[string]any

// NewRecord seeds a record with the identity fields of a stub.
func NewRecord(stub EntityStub) Record {
	r := Record{
		FieldCeref: stub.Ceref,
		FieldName:  stub.Name,
	}
	if stub.NameChi != nil {
		r[FieldNameChi] = *stub.NameChi
	} else {
		r[FieldNameChi] = nil
	}
	return r
}

// Ceref returns the record's identifier. Empty strings count as missing.
func (r Record) Ceref() (string, bool) {
	v, ok := r[FieldCeref]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Has reports whether field is present, including when its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the present field names in sorted order.
func (r Record) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Condition is one licensing condition attached to a firm.
type Condition struct {
	ConditionDtl  *Text `json:"conditionDtl"`
	ConditionCDtl *Text `json:"conditionCDtl"`
	EffDate       *Text `json:"effDate"`
}

// DisciplinaryAction is one public disciplinary remark.
type DisciplinaryAction struct {
	ActnDate  *Text `json:"actnDate"`
	CodeDesc  *Text `json:"codeDesc"`
	CodeCdesc *Text `json:"codeCdesc"`
	EngDocSeq *Text `json:"engDocSeq"`
	ChiDocSeq *Text `json:"chiDocSeq"`
}

const sfcDocumentURL = "https://apps.sfc.hk/publicregWeb/displayFile?docno=%s"

// DocumentURL returns the link to the published notice in the given language
// ("en" or "zh"), or "" when no document is attached.
func (d DisciplinaryAction) DocumentURL(lang string) string {
	seq := d.EngDocSeq
	if lang == "zh" {
		seq = d.ChiDocSeq
	}
	if seq == nil || seq.String() == "" {
		return ""
	}
	return fmt.Sprintf(sfcDocumentURL, seq.String())
}

// HeadcountSnapshot is a dated count of licensed staff.
type HeadcountSnapshot struct {
	Date    Date `json:"date"`
	NumROs  int  `json:"num_ros"`
	NumReps int  `json:"num_reps"`
}

// Firm is the typed view of a stored firm document.
type Firm struct {
	Ceref                string               `json:"ceref"`
	Name                 string               `json:"name,omitempty"`
	NameChi              *Text                `json:"nameChi,omitempty"`
	Tel                  *Text                `json:"tel,omitempty"`
	Email                *Text                `json:"email,omitempty"`
	Conditions           []Condition          `json:"conditions,omitempty"`
	DisciplinaryActions  []DisciplinaryAction `json:"disciplinary_actions,omitempty"`
	NumROs               *int                 `json:"num_ros,omitempty"`
	NumReps              *int                 `json:"num_reps,omitempty"`
	LicensedOn           *Date                `json:"licensed_on,omitempty"`
	WebbCode             string               `json:"webb_code,omitempty"`
	Domicile             string               `json:"domicile,omitempty"`
	FormedOn             *Date                `json:"formed_on,omitempty"`
	IncorporationNumber  string               `json:"incorporation_number,omitempty"`
	Website              string               `json:"website,omitempty"`
	HistNumProfessionals []HeadcountSnapshot  `json:"hist_num_professionals,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodeFirm builds a Firm from a stored JSON document.
func DecodeFirm(doc []byte, createdAt, updatedAt time.Time) (*Firm, error) {
	var f Firm
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, err
	}
	f.CreatedAt = createdAt
	f.UpdatedAt = updatedAt
	return &f, nil
}
