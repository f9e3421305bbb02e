package pagination

import "sort"

// Estimate returns the row count a pager should display for the current page.
//
// A reported total is trusted when it covers the rows seen so far; otherwise a
// known page count is multiplied by the effective page size. Without either,
// the count is extrapolated: a continuation hint or an exactly full page adds
// one more page of headroom, anything else marks the current page terminal.
func Estimate(meta Meta, itemCount, page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	if pageSize < 0 {
		pageSize = 0
	}

	completed := (page-1)*pageSize + itemCount

	if meta.Total != nil && *meta.Total >= completed {
		return *meta.Total
	}

	if meta.TotalPages != nil {
		size := pageSize
		if meta.PageSize != nil && *meta.PageSize > 0 {
			size = *meta.PageSize
		}
		if size > 0 {
			return *meta.TotalPages * size
		}
	}

	if meta.HasMoreHint || (pageSize > 0 && itemCount == pageSize) {
		return completed + pageSize
	}

	return completed
}

// IsTerminal reports whether the page described by meta is the last one.
func IsTerminal(meta Meta, itemCount, page, pageSize int) bool {
	if meta.TotalPages != nil {
		return page >= *meta.TotalPages
	}
	completed := (page-1)*pageSize + itemCount
	if meta.Total != nil && *meta.Total >= completed {
		return completed >= *meta.Total
	}
	return !meta.HasMoreHint && (pageSize <= 0 || itemCount < pageSize)
}

// PageSizeOptions returns the selectable page sizes: the standard set plus
// current when it is not already part of it, in ascending order.
func PageSizeOptions(standard []int, current int) []int {
	options := make([]int, 0, len(standard)+1)
	seen := make(map[int]bool, len(standard)+1)
	for _, size := range append(append([]int{}, standard...), current) {
		if size <= 0 || seen[size] {
			continue
		}
		seen[size] = true
		options = append(options, size)
	}
	sort.Ints(options)
	return options
}
