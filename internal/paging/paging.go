package paging

import "math"

// MaxOffset bounds the row offset a page request can reach.
const MaxOffset = math.MaxInt32

// Bounds are the configured page-size limits.
type Bounds struct {
	Default int
	Min     int
	Max     int
}

// DefaultBounds matches the dashboard defaults.
var DefaultBounds = Bounds{Default: 10, Min: 1, Max: 100}

// Params is a normalized page request. Page is 1-based.
type Params struct {
	Page     int
	PageSize int
}

// Normalize defaults page to 1 and clamps pageSize to [Min, Max].
// A zero pageSize means "not provided" and takes the default. Page is capped
// so Offset stays within MaxOffset.
func (b Bounds) Normalize(page, pageSize int) Params {
	if b.Min <= 0 {
		b.Min = 1
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.Default < b.Min || b.Default > b.Max {
		b.Default = b.Min
	}
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = b.Default
	case pageSize < b.Min:
		pageSize = b.Min
	case pageSize > b.Max:
		pageSize = b.Max
	}
	if maxPage := MaxOffset/pageSize + 1; page > maxPage {
		page = maxPage
	}
	return Params{Page: page, PageSize: pageSize}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Params) Limit() int {
	return p.PageSize
}

// Result is one page of items plus the totals the pagination controls need.
type Result[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewResult computes TotalPages as ceil(total / pageSize).
func NewResult[T any](items []T, total int, p Params) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, TotalPages: TotalPages(total, p.PageSize)}
}

func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
