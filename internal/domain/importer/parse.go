package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"audience/internal/core/apperror"
)

// Format is the uploaded file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", apperror.NewImportRejected(fmt.Sprintf("unsupported file format %q", s))
}

// FormatFromFilename derives the format from the file extension.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Row is one data row keyed by column index.
type Row struct {
	// Line is the 1-based line (CSV) or row number (XLSX) in the source file.
	Line  int
	Cells []string
}

// Table is a parsed upload: resolved columns and the non-blank data rows.
type Table struct {
	Columns []Column
	Rows    []Row
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrTooManyRows is wrapped when a file exceeds the configured row limit.
var ErrTooManyRows = errors.New("too many rows")

// Parse reads r as format. maxRows limits data rows; zero means unlimited.
func Parse(r io.Reader, format Format, maxRows int) (*Table, error) {
	var (
		raw   [][]string
		lines []int
		err   error
	)
	switch format {
	case FormatCSV:
		raw, lines, err = readCSV(r, maxRows)
	case FormatXLSX:
		raw, lines, err = readXLSX(r, maxRows)
	default:
		return nil, apperror.NewImportRejected(fmt.Sprintf("unsupported file format %q", format))
	}
	if err != nil {
		if errors.Is(err, ErrTooManyRows) {
			return nil, apperror.NewImportRejected(fmt.Sprintf("file has more than %d rows", maxRows)).WithCause(err)
		}
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.NewImportRejected("file could not be read").WithCause(err)
	}

	if len(raw) == 0 {
		return nil, apperror.NewImportRejected("file is empty")
	}

	t := &Table{Columns: ResolveColumns(raw[0])}
	if !hasContactColumn(t.Columns) {
		return nil, apperror.NewImportRejected("file needs an email or mobile column").
			WithDetail("headers", raw[0])
	}
	for i, cells := range raw[1:] {
		t.Rows = append(t.Rows, Row{Line: lines[i+1], Cells: cells})
	}
	if len(t.Rows) == 0 {
		return nil, apperror.NewImportRejected("file has no data rows")
	}
	return t, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(r io.Reader, maxRows int) ([][]string, []int, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var (
		out   [][]string
		lines []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if blank(rec) {
			continue
		}
		if maxRows > 0 && len(out) > maxRows {
			return nil, nil, ErrTooManyRows
		}
		line, _ := cr.FieldPos(0)
		out = append(out, rec)
		lines = append(lines, line)
	}
	return out, lines, nil
}

func readXLSX(r io.Reader, maxRows int) ([][]string, []int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		out   [][]string
		lines []int
		n     int
	)
	for rows.Next() {
		n++
		cells, err := rows.Columns()
		if err != nil {
			return nil, nil, err
		}
		if blank(cells) {
			continue
		}
		if maxRows > 0 && len(out) > maxRows {
			return nil, nil, ErrTooManyRows
		}
		out = append(out, cells)
		lines = append(lines, n)
	}
	return out, lines, rows.Error()
}
