// Package catalog serves the public article and product listings and the
// admin endpoints that create them.
//
// Read endpoints go through a cache.Querier keyed by the query parameters.
// Mutating endpoints and login are admitted per client by a rate limiter and
// invalidate every list key they may have changed.
package catalog

import (
	"strconv"
	"strings"
	"time"
)

// Article is a blog or news entry.
type Article struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	Featured  bool      `json:"featured"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a storefront catalog item. Price is in minor currency units.
type Product struct {
	ID         string    `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"`
	CategoryID string    `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Paging defaults shared by list endpoints.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MaxPage      = 100000
)

// ArticleFilter selects a page of articles.
type ArticleFilter struct {
	Published bool
	Featured  bool
	Page      int
	Limit     int
}

// ProductFilter selects a page of products. An empty CategoryID matches all.
type ProductFilter struct {
	CategoryID string
	Page       int
	Limit      int
}

// ArticleListKey returns the cache key for one article list page,
// "articles:<published>:<featured>:<page>:<limit>".
func ArticleListKey(published, featured bool, page, limit int) string {
	return strings.Join([]string{
		"articles",
		strconv.FormatBool(published),
		strconv.FormatBool(featured),
		strconv.Itoa(page),
		strconv.Itoa(limit),
	}, ":")
}

// ProductListKey returns the cache key for one product list page,
// "products:<category>:<page>:<limit>". An empty category is written as "all".
func ProductListKey(categoryID string, page, limit int) string {
	if categoryID == "" {
		categoryID = "all"
	}
	return strings.Join([]string{
		"products",
		categoryID,
		strconv.Itoa(page),
		strconv.Itoa(limit),
	}, ":")
}

func (f ArticleFilter) key() string {
	return ArticleListKey(f.Published, f.Featured, f.Page, f.Limit)
}

func (f ProductFilter) key() string {
	return ProductListKey(f.CategoryID, f.Page, f.Limit)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func pageBounds(n, page, limit int) (int, int) {
	if page < 1 || limit < 1 || page-1 > n/limit {
		return n, n
	}
	start := (page - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}
