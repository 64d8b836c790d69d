package services

import (
	"gorm.io/gorm"
	"strings"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PageQuery is the common list query: page is 1-based.
type PageQuery struct {
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

type Page[T any] struct {
	Meta PageMeta `json:"meta"`
	Data []T      `json:"data"`
}

func (q PageQuery) normalized() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	if strings.ToLower(q.SortOrder) != "asc" {
		q.SortOrder = "desc"
	} else {
		q.SortOrder = "asc"
	}
	return q
}

// order resolves SortBy against an allow list of api name -> column.
func (q PageQuery) order(allowed map[string]string, fallback string) string {
	col, ok := allowed[q.SortBy]
	if !ok {
		col = fallback
	}
	return col + " " + q.SortOrder
}

// paginate counts and loads one page of query into dest.
func paginate[T any](query *gorm.DB, q PageQuery, order string) (*Page[T], error) {
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	items := make([]T, 0, q.Limit)
	if err := query.Order(order).Offset((q.Page - 1) * q.Limit).Limit(q.Limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return &Page[T]{Meta: PageMeta{Page: q.Page, Limit: q.Limit, Total: total}, Data: items}, nil
}
