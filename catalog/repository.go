package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ErrDuplicateSlug is returned when a slug is already taken.
var ErrDuplicateSlug = errors.New("slug already exists")

// Repository is the in-memory source of truth for articles and products.
// Every list call counts as one query so cache effectiveness is observable.
type Repository struct {
	mu       sync.RWMutex
	articles []Article
	products []Product
	queries  atomic.Int64
	now      func() time.Time
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryClock sets the clock used for CreatedAt.
func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates an empty Repository.
func NewRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Queries returns the number of list queries served so far.
func (r *Repository) Queries() int64 {
	return r.queries.Load()
}

// ListArticles returns one page of articles matching f, newest first.
// A false Featured matches every article.
func (r *Repository) ListArticles(ctx context.Context, f ArticleFilter) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.queries.Inc()
	page, limit := normalizePage(f.Page, f.Limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Article, 0, len(r.articles))
	for i := len(r.articles) - 1; i >= 0; i-- {
		a := r.articles[i]
		if a.Published != f.Published {
			continue
		}
		if f.Featured && !a.Featured {
			continue
		}
		matched = append(matched, a)
	}

	start, end := pageBounds(len(matched), page, limit)
	return matched[start:end], nil
}

// CreateArticle stores a new article and returns it with ID and CreatedAt set.
func (r *Repository) CreateArticle(ctx context.Context, a Article) (Article, error) {
	if err := ctx.Err(); err != nil {
		return Article{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.articles {
		if existing.Slug == a.Slug {
			return Article{}, ErrDuplicateSlug
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = r.now()
	r.articles = append(r.articles, a)
	return a, nil
}

// ListProducts returns one page of products matching f, newest first.
func (r *Repository) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.queries.Inc()
	page, limit := normalizePage(f.Page, f.Limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Product, 0, len(r.products))
	for i := len(r.products) - 1; i >= 0; i-- {
		p := r.products[i]
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		matched = append(matched, p)
	}

	start, end := pageBounds(len(matched), page, limit)
	return matched[start:end], nil
}

// CreateProduct stores a new product and returns it with ID and CreatedAt set.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.products {
		if existing.Slug == p.Slug {
			return Product{}, ErrDuplicateSlug
		}
	}
	p.ID = uuid.NewString()
	p.CreatedAt = r.now()
	r.products = append(r.products, p)
	return p, nil
}
