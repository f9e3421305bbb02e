package pagination

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Meta is the canonical pagination metadata of one page. Nil pointers mean
// the backend did not report the value.
type Meta struct {
	Total             *int    `json:"total"`
	TotalPages        *int    `json:"totalPages"`
	Page              int     `json:"page"`
	PageSize          *int    `json:"pageSize"`
	HasMoreHint       bool    `json:"hasMoreHint"`
	ContinuationToken *string `json:"continuationToken"`
}

// Candidate keys, highest precedence first.
var (
	totalKeys      = []string{"total", "totalOrders", "totalItems", "count", "records", "recordsCount", "rows"}
	totalPagesKeys = []string{"totalPages", "pages"}
	pageKeys       = []string{"page", "currentPage"}
	pageSizeKeys   = []string{"pageSize", "limit", "perPage"}
	hasMoreKeys    = []string{"hasMore", "hasNext", "hasNextPage", "nextPage", "next", "nextToken", "lastKey", "lastEvaluatedKey", "cursor"}
	nestedMoreKeys = []string{"hasMore", "nextPage", "next"}
	tokenKeys      = []string{"cursor", "nextToken", "lastEvaluatedKey", "lastKey"}
)

// payloadMetaKeys are the top-level body keys that carry pagination data when
// the backend does not send a dedicated "meta" object.
var payloadMetaKeys = func() []string {
	keys := []string{"pagination"}
	for _, group := range [][]string{totalKeys, totalPagesKeys, pageKeys, pageSizeKeys, hasMoreKeys} {
		keys = append(keys, group...)
	}
	return keys
}()

// MetaFromPayload extracts the raw pagination metadata from a decoded response
// body. Top-level pagination keys act as fallbacks; entries of the body's
// "meta" object override them.
func MetaFromPayload(payload map[string]any) RawMeta {
	raw := RawMeta{}
	if payload == nil {
		return raw
	}

	for _, key := range payloadMetaKeys {
		if v, ok := payload[key]; ok && v != nil {
			raw[key] = v
		}
	}

	if meta, ok := payload["meta"].(map[string]any); ok {
		for key, v := range meta {
			raw[key] = v
		}
	}

	return raw
}

// Normalize folds raw metadata into a Meta. For every field the first present
// candidate wins. requestedPage fills in Page when the backend omits it, and
// requestedPageSize is used to derive Total from TotalPages when needed.
func Normalize(raw RawMeta, requestedPage, requestedPageSize int) Meta {
	meta := Meta{Page: requestedPage}

	if total, ok := firstInt(raw, totalKeys); ok {
		meta.Total = &total
	}

	if pages, ok := firstInt(raw, totalPagesKeys); ok {
		meta.TotalPages = &pages
	}

	if page, ok := firstInt(raw, pageKeys); ok && page > 0 {
		meta.Page = page
	}

	if size, ok := firstInt(raw, pageSizeKeys); ok && size > 0 {
		meta.PageSize = &size
	}

	// Derive the total only when both factors are known.
	if meta.Total == nil && meta.TotalPages != nil {
		size := requestedPageSize
		if meta.PageSize != nil {
			size = *meta.PageSize
		}
		if size > 0 {
			total := *meta.TotalPages * size
			meta.Total = &total
		}
	}

	meta.HasMoreHint = hasMore(raw)

	for _, key := range tokenKeys {
		if token, ok := tokenText(raw[key]); ok {
			meta.ContinuationToken = &token
			break
		}
	}

	return meta
}

func hasMore(raw RawMeta) bool {
	for _, key := range hasMoreKeys {
		if truthy(raw[key]) {
			return true
		}
	}
	if nested, ok := raw["pagination"].(map[string]any); ok {
		for _, key := range nestedMoreKeys {
			if truthy(nested[key]) {
				return true
			}
		}
	}
	return false
}

func firstInt(raw RawMeta, keys []string) (int, bool) {
	for _, key := range keys {
		if n, ok := asInt(raw[key]); ok {
			return n, true
		}
	}
	return 0, false
}

// asInt converts a finite, non-negative numeric value (or numeric string) to int.
func asInt(v any) (int, bool) {
	var f float64
	switch val := v.(type) {
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case float32:
		f = float64(val)
	case float64:
		f = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int(f), true
}

// truthy mirrors the loose truthiness backends rely on for continuation flags:
// non-empty strings, non-zero numbers, true, and any object or array.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}

func tokenText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return "", false
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}
