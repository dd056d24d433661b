// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import "audience/internal/domain"

// PageQuery carries limit/offset paging. Zero limit means the default page size.
type PageQuery struct {
	Limit  int `form:"limit" json:"limit" binding:"min=0,max=1000"`
	Offset int `form:"offset" json:"offset" binding:"min=0"`
}

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// MapList converts a domain page with fn, keeping the paging metadata.
func MapList[S, T any](res domain.ListResult[S], fn func(S) T) ListResponse[T] {
	items := make([]T, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, fn(it))
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	}
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
