package profile

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportFormat selects the export file type.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts csv or xlsx, case-insensitively. Empty means csv.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var exportColumns = []string{
	"id", FieldFirstName, FieldLastName, FieldEmail, FieldMobile, FieldStatus,
	FieldCountry, FieldLifetimeValue, FieldIsSubscribed, FieldTags,
}

// ExportHeader returns the fixed columns followed by every custom field key in
// use across profiles, sorted. Custom columns use the bare key so the file
// re-imports into the same custom fields.
func ExportHeader(profiles []*Profile) []string {
	custom := make(map[string]struct{})
	for _, p := range profiles {
		for k := range p.CustomFields {
			if !slices.Contains(exportColumns, k) {
				custom[k] = struct{}{}
			}
		}
	}
	return append(slices.Clone(exportColumns), slices.Sorted(maps.Keys(custom))...)
}

// ExportRow renders p under header.
func ExportRow(p *Profile, header []string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		switch col {
		case "id":
			row[i] = p.ID.String()
		case FieldFirstName:
			row[i] = p.FirstName
		case FieldLastName:
			row[i] = p.LastName
		case FieldEmail:
			row[i] = deref(p.Email)
		case FieldMobile:
			row[i] = deref(p.Mobile)
		case FieldStatus:
			row[i] = string(p.Status)
		case FieldCountry:
			row[i] = deref(p.Country)
		case FieldLifetimeValue:
			if p.LifetimeValue.Valid {
				row[i] = p.LifetimeValue.Decimal.String()
			}
		case FieldIsSubscribed:
			row[i] = strconv.FormatBool(p.IsSubscribed)
		case FieldTags:
			row[i] = strings.Join(p.Tags, ";")
		default:
			row[i] = p.CustomFields.GetString(col)
		}
	}
	return row
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// WriteExport writes profiles to w in format.
func WriteExport(w io.Writer, format ExportFormat, profiles []*Profile) error {
	header := ExportHeader(profiles)
	switch format {
	case FormatXLSX:
		return writeXLSX(w, header, profiles)
	default:
		return writeCSV(w, header, profiles)
	}
}

func writeCSV(w io.Writer, header []string, profiles []*Profile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range profiles {
		if err := cw.Write(ExportRow(p, header)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const exportSheet = "Profiles"

func writeXLSX(w io.Writer, header []string, profiles []*Profile) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return err
	}

	writeRow := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return sw.SetRow(cell, cells)
	}

	if err := writeRow(1, header); err != nil {
		return err
	}
	for i, p := range profiles {
		if err := writeRow(i+2, ExportRow(p, header)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
