package utils

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Page   int `json:"page"`
}

// GetPaginationDetails reads page and limit from the query string, clamping
// limit to maxPageSize.
func GetPaginationDetails(r *http.Request) Pagination {
	q := r.URL.Query()
	limit := positiveInt(q.Get("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := positiveInt(q.Get("page"), 1)

	return Pagination{Limit: limit, Offset: (page - 1) * limit, Page: page}
}

func positiveInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (p Pagination) Meta(total int64) map[string]interface{} {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return map[string]interface{}{
		"total_items":  total,
		"total_pages":  pages,
		"current_page": p.Page,
		"limit":        p.Limit,
		"has_next":     p.Page < pages,
	}
}
