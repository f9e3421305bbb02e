// Package export writes table rows to downloadable files. Cells arrive already
// formatted; the writers only normalize them for the target format.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/rs/zerolog/log"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Defaults for exported orders.
const (
	DefaultFileName  = "ordenes"
	DefaultSheetName = "Órdenes"
)

var (
	// ErrNoColumns is returned when no exportable column remains.
	ErrNoColumns = errors.New("no columns available for export")

	// ErrNoRows is returned for an empty row set.
	ErrNoRows = errors.New("no rows available for export")

	// ErrUnknownFormat is returned by NewWriter for unsupported formats.
	ErrUnknownFormat = errors.New("unknown export format")
)

// Row maps a field to its display value.
type Row map[string]any

// Writer writes rows under the given columns. The "select" pseudo-column is
// never written.
type Writer interface {
	Write(w io.Writer, rows []Row, defs []columns.Def) error
	Format() Format
	ContentType() string
}

// ParseFormat parses s case-insensitively. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// NewWriter returns the writer for format with default naming.
func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatXLSX:
		return &XLSXWriter{SheetName: DefaultSheetName}, nil
	case FormatPDF:
		return &PDFWriter{Title: DefaultSheetName}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FileName trims name, falls back to DefaultFileName and appends the format's
// extension when missing.
func FileName(name string, format Format) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultFileName
	}
	ext := "." + string(format)
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

// Sheet is the normalized content of an export: one header row and one value
// row per input row.
type Sheet struct {
	Header []string
	Rows   [][]any
}

// Prepare checks its inputs and builds the sheet. Headers use the column title
// and fall back to the field name.
func Prepare(rows []Row, defs []columns.Def) (*Sheet, error) {
	defs = columns.Exportable(defs)
	if len(defs) == 0 {
		return nil, ErrNoColumns
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	sheet := &Sheet{
		Header: make([]string, len(defs)),
		Rows:   make([][]any, len(rows)),
	}
	for i, d := range defs {
		sheet.Header[i] = d.Header()
	}
	for i, row := range rows {
		values := make([]any, len(defs))
		for j, d := range defs {
			values[j] = CellValue(row[d.Field])
		}
		sheet.Rows[i] = values
	}
	return sheet, nil
}

// CellValue normalizes a display value for a spreadsheet cell. The empty
// marker becomes an empty cell; numbers and booleans stay typed; objects are
// written as JSON.
func CellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == columns.EmptyMarker {
			return ""
		}
		return val
	case bool, int, int32, int64, float32, float64:
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			log.Warn().Err(err).Msg("Could not serialize export value")
			return "[objeto]"
		}
		return string(data)
	}
}

// Text renders a prepared cell as plain text.
func Text(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return fmt.Sprint(val)
	}
}
