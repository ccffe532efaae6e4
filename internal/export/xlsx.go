// Package export writes stored firms to spreadsheet workbooks.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/firmcrawl/internal/model"
)

// Sheet names in the exported workbook.
const (
	FirmsSheet        = "firms"
	ConditionsSheet   = "conditions"
	DisciplinarySheet = "disciplinary_actions"
)

// FirmColumns is the header row of the firms sheet.
var FirmColumns = []string{
	"ceref", "name", "name_chi", "tel", "email", "num_ros", "num_reps",
	"licensed_on", "webb_code", "domicile", "formed_on", "incorporation_number",
	"website", "conditions", "disciplinary_actions", "updated_at",
}

var (
	conditionColumns    = []string{"ceref", "effective", "condition", "condition_chi"}
	disciplinaryColumns = []string{"ceref", "action_date", "description", "description_chi", "document_en", "document_zh"}
)

// Workbook builds a workbook with one sheet per firm table.
func Workbook(firms []model.Firm) (*xlsx.File, error) {
	f := xlsx.NewFile()

	firmSheet, err := addSheet(f, FirmsSheet, FirmColumns)
	if err != nil {
		return nil, err
	}
	condSheet, err := addSheet(f, ConditionsSheet, conditionColumns)
	if err != nil {
		return nil, err
	}
	daSheet, err := addSheet(f, DisciplinarySheet, disciplinaryColumns)
	if err != nil {
		return nil, err
	}

	for _, firm := range firms {
		row := firmSheet.AddRow()
		addString(row, firm.Ceref)
		addString(row, firm.Name)
		addString(row, deref(firm.NameChi))
		addString(row, deref(firm.Tel))
		addString(row, deref(firm.Email))
		addInt(row, firm.NumROs)
		addInt(row, firm.NumReps)
		addDate(row, firm.LicensedOn)
		addString(row, firm.WebbCode)
		addString(row, firm.Domicile)
		addDate(row, firm.FormedOn)
		addString(row, firm.IncorporationNumber)
		addString(row, firm.Website)
		row.AddCell().SetInt(len(firm.Conditions))
		row.AddCell().SetInt(len(firm.DisciplinaryActions))
		if firm.UpdatedAt.IsZero() {
			addString(row, "")
		} else {
			row.AddCell().SetDateTime(firm.UpdatedAt)
		}

		for _, c := range firm.Conditions {
			cr := condSheet.AddRow()
			addString(cr, firm.Ceref)
			addString(cr, deref(c.EffDate))
			addString(cr, deref(c.ConditionDtl))
			addString(cr, deref(c.ConditionCDtl))
		}
		for _, da := range firm.DisciplinaryActions {
			dr := daSheet.AddRow()
			addString(dr, firm.Ceref)
			addString(dr, deref(da.ActnDate))
			addString(dr, deref(da.CodeDesc))
			addString(dr, deref(da.CodeCdesc))
			addString(dr, da.DocumentURL("en"))
			addString(dr, da.DocumentURL("zh"))
		}
	}
	return f, nil
}

// WriteXLSX writes firms as an xlsx workbook to w.
func WriteXLSX(w io.Writer, firms []model.Firm) error {
	f, err := Workbook(firms)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// SaveXLSX writes firms to the workbook at path.
func SaveXLSX(path string, firms []model.Firm) error {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return eris.Errorf("export: %q must have an .xlsx extension", path)
	}
	f, err := Workbook(firms)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		addString(row, h)
	}
	return sheet, nil
}

func addString(row *xlsx.Row, s string) {
	row.AddCell().SetString(s)
}

func addInt(row *xlsx.Row, n *int) {
	if n == nil {
		addString(row, "")
		return
	}
	row.AddCell().SetInt(*n)
}

func addDate(row *xlsx.Row, d *model.Date) {
	if d == nil {
		addString(row, "")
		return
	}
	addString(row, d.String())
}

func deref(t *model.Text) string {
	if t == nil {
		return ""
	}
	return t.String()
}
