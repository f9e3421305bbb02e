package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/xuri/excelize/v2"
)

// maxSheetNameLen is the spreadsheet format's limit on sheet names.
const maxSheetNameLen = 31

// XLSXWriter writes a single-sheet workbook.
type XLSXWriter struct {
	// SheetName names the only sheet. Defaults to DefaultSheetName.
	SheetName string
}

// Format returns FormatXLSX.
func (x *XLSXWriter) Format() Format { return FormatXLSX }

// ContentType returns the xlsx MIME type.
func (x *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write builds the workbook and writes it to w.
func (x *XLSXWriter) Write(w io.Writer, rows []Row, defs []columns.Def) error {
	sheet, err := Prepare(rows, defs)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	name := sheetName(x.SheetName)
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(sheet.Header))
	for i, h := range sheet.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &sheet.Rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return DefaultSheetName
	}
	if runes := []rune(name); len(runes) > maxSheetNameLen {
		name = string(runes[:maxSheetNameLen])
	}
	return name
}
