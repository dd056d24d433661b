package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"audience/internal/core/apperror"
)

func TestParse_CSV(t *testing.T) {
	data := "\ufeffEmail, First Name,Plan\n" +
		"ann@example.com, Ann,pro\n" +
		"\n" +
		",,\n" +
		"bo@example.com,Bo\n"

	table, err := Parse(strings.NewReader(data), FormatCSV, 0)
	require.NoError(t, err)

	require.Len(t, table.Columns, 3)
	assert.Equal(t, "email", table.Columns[0].Field)
	assert.Equal(t, "first_name", table.Columns[1].Field)
	assert.Equal(t, Column{Header: "Plan", Field: "plan", Custom: true}, table.Columns[2])

	require.Len(t, table.Rows, 2)
	assert.Equal(t, Row{Line: 2, Cells: []string{"ann@example.com", "Ann", "pro"}}, table.Rows[0])
	assert.Equal(t, Row{Line: 5, Cells: []string{"bo@example.com", "Bo"}}, table.Rows[1])
}

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Email", "Subscribed"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"ann@example.com", "Yes"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"bo@example.com", "no"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	table, err := Parse(bytes.NewReader(buf.Bytes()), FormatXLSX, 0)
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"ann@example.com", "Yes"}, table.Rows[0].Cells)
	assert.Equal(t, 4, table.Rows[1].Line)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		maxRows int
		message string
	}{
		{"empty", "", FormatCSV, 0, "file is empty"},
		{"header only", "email\n", FormatCSV, 0, "no data rows"},
		{"no contact column", "name,country\nAnn,Spain\n", FormatCSV, 0, "email or mobile"},
		{"row limit", "email\na@x.io\nb@x.io\nc@x.io\n", FormatCSV, 2, "more than 2 rows"},
		{"unknown format", "email\na@x.io\n", Format("pdf"), 0, "unsupported"},
		{"broken xlsx", "not a zip", FormatXLSX, 0, "could not be read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), tt.format, tt.maxRows)
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeImportRejected, appErr.Code)
			assert.Contains(t, appErr.Message, tt.message)
		})
	}
}

func TestFormatFromFilename(t *testing.T) {
	f, err := FormatFromFilename("Contacts.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromFilename("contacts.txt")
	assert.Error(t, err)
}
