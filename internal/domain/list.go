// Package domain holds types shared by the profile, segment and importer services.
package domain

// ListResult contains one page of a filtered set.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// NormalizePage clamps paging input: limit defaults to DefaultPageSize and is
// capped at MaxPageSize, a negative offset becomes 0.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Paginate slices an already filtered set. Items is never nil so it renders as [].
func Paginate[T any](all []T, limit, offset int) ListResult[T] {
	limit, offset = NormalizePage(limit, offset)

	res := ListResult[T]{
		Items:      []T{},
		TotalCount: int64(len(all)),
		Limit:      limit,
		Offset:     offset,
	}
	if offset >= len(all) {
		return res
	}
	end := min(offset+limit, len(all))
	res.Items = append(res.Items, all[offset:end]...)
	return res
}
