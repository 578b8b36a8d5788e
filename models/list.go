package models

import "strings"

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ListParams carries the filter, sort and pagination state of a list
// request. Handlers decode it from the query string and pass it down.
type ListParams struct {
	Search     string `form:"search"`
	Status     string `form:"status"`
	CustomerID int    `form:"customer_id"`
	Period     string `form:"period"`
	Type       string `form:"type"`
	Sort       string `form:"sort"`
	Order      string `form:"order"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// Normalize fills defaults and clamps the page size.
func (p *ListParams) Normalize() {
	p.Search = strings.TrimSpace(p.Search)
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if !strings.EqualFold(p.Order, "asc") {
		p.Order = "DESC"
	} else {
		p.Order = "ASC"
	}
}

func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// OrderBy maps the requested sort key onto a whitelisted column, falling
// back to def.
func (p ListParams) OrderBy(columns map[string]string, def string) string {
	col, ok := columns[p.Sort]
	if !ok {
		col = def
	}
	order := p.Order
	if order == "" {
		order = "DESC"
	}
	return col + " " + order
}

// Page is a page of list results.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
