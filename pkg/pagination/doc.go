// Package pagination normalizes the heterogeneous pagination metadata emitted
// by the operations backend and walks paged collections.
//
// Backends report pagination in many shapes: "total", "totalOrders" or
// "count"; "totalPages" or "pages"; "hasMore", "hasNextPage" or a bare cursor.
// Normalize folds all of them into a single Meta with a fixed precedence, so
// the rest of the module never inspects raw keys.
//
// Example usage:
//
//	raw := pagination.MetaFromPayload(payload)
//	meta := pagination.Normalize(raw, req.Page, req.PageSize)
//	rowCount := pagination.Estimate(meta, len(items), req.Page, req.PageSize)
//
// Walking every page for export:
//
//	walker := pagination.NewWalker(collection, pagination.DefaultWalkerConfig())
//	records, err := walker.CollectAll(ctx, filter, func(p pagination.Progress) {
//		log.Info().Int("page", p.Page).Int("accumulated", p.Accumulated).Msg("Export progress")
//	})
//
// The walker is strictly sequential: continuation often depends on the
// previous page's content, so pages cannot be fanned out.
package pagination
