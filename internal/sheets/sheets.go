// Package sheets inspects uploaded workbook files so the dashboard can offer
// sheet/tab choices before a submission is sent.
package sheets

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

var ErrUnsupportedWorkbook = errors.New("unsupported workbook type")

// SheetInfo describes one sheet/tab of a workbook.
type SheetInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// WorkbookInfo is the result of inspecting an uploaded workbook.
type WorkbookInfo struct {
	Filename string      `json:"filename"`
	Sheets   []SheetInfo `json:"sheets"`
}

// Inspect reads an uploaded .xlsx or .csv file and returns its sheet names
// and per-sheet row counts. CSV files present as a single unnamed sheet.
func Inspect(file models.FileUpload) (*WorkbookInfo, error) {
	switch file.Type {
	case models.MimeXLSX:
		return inspectXLSX(file)
	case models.MimeCSV:
		return &WorkbookInfo{
			Filename: file.Name,
			Sheets:   []SheetInfo{{Name: "Sheet1", RowCount: countLines(file.Content)}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWorkbook, file.Type)
	}
}

func inspectXLSX(file models.FileUpload) (*WorkbookInfo, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(file.Content))
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", file.Name, err)
	}
	defer wb.Close()

	info := &WorkbookInfo{Filename: file.Name}
	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		info.Sheets = append(info.Sheets, SheetInfo{Name: name, RowCount: len(rows)})
	}
	return info, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
