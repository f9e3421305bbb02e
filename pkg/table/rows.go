package table

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/export"
	"github.com/Sternrassler/opsgrid/pkg/record"
)

// Row is a display row: the source record plus its formatted cells.
type Row struct {
	ID     string
	Record record.Record
	Cells  map[string]string
}

// RowIDs derives a row id for every record: the record id joined with its
// tenant, made unique within the page by a position suffix (bumped until
// unused). Records without an id get "row-<position>".
func RowIDs(items []record.Record) []string {
	ids := make([]string, len(items))
	seen := make(map[string]bool, len(items))
	for i, rec := range items {
		id := strings.TrimSpace(rec.ID())
		if id == "" {
			id = fmt.Sprintf("row-%d", i)
		} else if tenant := firstNonEmpty(rec.TenantID(), rec.TenantName()); tenant != "" {
			id = id + "-" + tenant
		}
		for base, n := id, i; seen[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		seen[id] = true
		ids[i] = id
	}
	return ids
}

// BuildRows formats items through defs. The select pseudo-column has no cell.
func BuildRows(items []record.Record, defs []columns.Def, f *columns.Formatter) []Row {
	ids := RowIDs(items)
	rows := make([]Row, len(items))
	for i, rec := range items {
		cells := make(map[string]string, len(defs))
		for _, d := range defs {
			if d.Field == columns.SelectField {
				continue
			}
			cells[d.Field] = f.Format(d.Field, rec)
		}
		rows[i] = Row{ID: ids[i], Record: rec, Cells: cells}
	}
	return rows
}

// ExportRows converts display rows for an export.Writer.
func ExportRows(rows []Row) []export.Row {
	out := make([]export.Row, len(rows))
	for i, row := range rows {
		r := make(export.Row, len(row.Cells))
		for field, v := range row.Cells {
			r[field] = v
		}
		out[i] = r
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
