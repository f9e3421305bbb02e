package columns

import "github.com/Sternrassler/opsgrid/pkg/record"

// DecodeConfig reads the column configuration out of a decoded response body.
// It tolerates numeric tenant ids. Only a JSON true in "active" shows a
// column; a missing or non-boolean flag hides it. ok is false when the body carries none of
// the configuration keys.
func DecodeConfig(payload map[string]any) (cfg Config, ok bool) {
	if payload == nil {
		return Config{}, false
	}

	if raw, found := payload["columns"]; found {
		ok = true
		cfg.Columns = decodeDefs(raw)
	}
	if raw, found := payload["defaultColumns"]; found {
		ok = true
		cfg.DefaultColumns = decodeDefs(raw)
	}
	if raw, found := payload["columnsConfig"]; found {
		ok = true
		entries, _ := raw.([]any)
		for _, e := range entries {
			m, isMap := e.(map[string]any)
			if !isMap {
				continue
			}
			rec := record.Record(m)
			cfg.ColumnsConfig = append(cfg.ColumnsConfig, TenantColumns{
				TenantID:   rec.TenantID(),
				TenantName: rec.TenantName(),
				Columns:    decodeDefs(m["columns"]),
			})
		}
	}

	return cfg, ok
}

// decodeDefs returns nil when raw is not an array, so a missing list can be
// told apart from an empty one.
func decodeDefs(raw any) []Def {
	items, isArray := raw.([]any)
	if !isArray {
		return nil
	}
	defs := make([]Def, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		field := record.Text(m["value"])
		if field == "" {
			field = record.Text(m["field"])
		}

		def := Def{
			Field:  field,
			Title:  record.Text(m["title"]),
			Active: m["active"] == true,
		}
		if order, found := asInt(m["sortOrder"]); found {
			def.SortOrder = &order
		} else if order, found := asInt(m["originalIndex"]); found {
			def.SortOrder = &order
		}
		defs = append(defs, def)
	}
	return defs
}

func asInt(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}
