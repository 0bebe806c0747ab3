package catalog

import (
	"container/list"
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"

	"github.com/nhalm/catalogkit"
	"github.com/nhalm/catalogkit/cache"
)

// Rate limit actions, used as the first half of "<action>:<client-ip>".
const (
	ActionLogin         = "login"
	ActionArticleCreate = "article-create"
	ActionProductCreate = "product-create"
)

// LoginLimitMessage is shown to clients that exceed the login limit.
const LoginLimitMessage = "Too many login attempts. Please try again later."

// Defaults for Server options.
const (
	DefaultLoginMaxAttempts  = 5
	DefaultCreateMaxRequests = 10
	DefaultArticleTTL        = 300 * time.Second
	DefaultProductTTL        = 60 * time.Second
	DefaultMaxIndexedKeys    = 10000
)

// Server exposes the catalog over HTTP.
// Routes expects catalogkit.Handler to be installed by the caller.
type Server struct {
	repo     *Repository
	sessions *Sessions
	limiter  catalogkit.Admitter
	querier  *cache.Querier

	loginMax   int
	createMax  int
	articleTTL time.Duration
	productTTL time.Duration

	maxIndexedKeys int
	articleKeys    *keyIndex
	productKeys    *keyIndex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLoginLimit sets the number of login attempts allowed per client and window.
func WithLoginLimit(n int) ServerOption {
	return func(s *Server) {
		s.loginMax = n
	}
}

// WithCreateLimit sets the number of creates allowed per client, action and window.
func WithCreateLimit(n int) ServerOption {
	return func(s *Server) {
		s.createMax = n
	}
}

// WithArticleTTL sets how long article list pages are cached.
func WithArticleTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.articleTTL = ttl
	}
}

// WithProductTTL sets how long product list pages are cached.
func WithProductTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.productTTL = ttl
	}
}

// WithMaxIndexedKeys bounds how many list keys per family are remembered for
// invalidation. Keep it at or below the cache's entry limit; keys dropped from
// the index are deleted from the cache at the same time.
func WithMaxIndexedKeys(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxIndexedKeys = n
		}
	}
}

// NewServer wires the catalog handlers to their collaborators.
func NewServer(repo *Repository, sessions *Sessions, limiter catalogkit.Admitter, querier *cache.Querier, opts ...ServerOption) *Server {
	s := &Server{
		repo:       repo,
		sessions:   sessions,
		limiter:    limiter,
		querier:    querier,
		loginMax:   DefaultLoginMaxAttempts,
		createMax:  DefaultCreateMaxRequests,
		articleTTL: DefaultArticleTTL,
		productTTL: DefaultProductTTL,

		maxIndexedKeys: DefaultMaxIndexedKeys,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.articleKeys = newKeyIndex(s.maxIndexedKeys)
	s.productKeys = newKeyIndex(s.maxIndexedKeys)
	return s
}

// Routes returns the catalog router.
//
//	GET  /api/articles              cached article list
//	POST /api/articles              admin, rate limited
//	GET  /api/products              cached product list
//	POST /api/products              admin, rate limited
//	POST /api/auth/login            rate limited
//	POST /api/auth/logout           admin
//	GET  /api/admin/cache-stats     admin
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	requireSession := catalogkit.RequireSession(s.sessions.Validate)

	r.With(catalogkit.RequireSession(s.sessions.Validate, catalogkit.WithOptionalSession())).
		Get("/api/articles", s.listArticles)
	r.Get("/api/products", s.listProducts)

	r.With(catalogkit.Admit(s.limiter, ActionArticleCreate, s.createMax), requireSession).
		Post("/api/articles", s.createArticle)
	r.With(catalogkit.Admit(s.limiter, ActionProductCreate, s.createMax), requireSession).
		Post("/api/products", s.createProduct)

	r.Post("/api/auth/login", s.login)
	r.With(requireSession).Post("/api/auth/logout", s.logout)
	r.With(requireSession).Get("/api/admin/cache-stats", s.cacheStats)

	return r
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type articleQuery struct {
	Published *bool `query:"published"`
	Featured  bool  `query:"featured"`
	Page      int   `query:"page" validate:"omitempty,gte=1,lte=100000"`
	Limit     int   `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

func (s *Server) listArticles(_ http.ResponseWriter, r *http.Request) {
	var q articleQuery
	if !catalogkit.Query(r, &q) {
		return
	}

	published := true
	if q.Published != nil {
		published = *q.Published
	}
	if !published {
		if _, ok := catalogkit.SessionFromContext(r.Context()); !ok {
			catalogkit.SetError(r, catalogkit.ErrUnauthorized.With("Authentication required to list drafts"))
			return
		}
	}

	page, limit := normalizePage(q.Page, q.Limit)
	filter := ArticleFilter{Published: published, Featured: q.Featured, Page: page, Limit: limit}
	key := filter.key()
	gen := s.articleKeys.generation()

	articles, err := cache.Fetch(r.Context(), s.querier, key, s.articleTTL, func(ctx context.Context) ([]Article, error) {
		return s.repo.ListArticles(ctx, filter)
	})
	if err != nil {
		s.internalError(r, err)
		return
	}
	s.remember(r.Context(), s.articleKeys, key, gen)
	catalogkit.SetResponse(r, http.StatusOK, listResponse[Article]{Data: articles, Page: page, Limit: limit})
}

type productQuery struct {
	CategoryID string `query:"category_id" validate:"omitempty,max=64"`
	Page       int    `query:"page" validate:"omitempty,gte=1,lte=100000"`
	Limit      int    `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

func (s *Server) listProducts(_ http.ResponseWriter, r *http.Request) {
	var q productQuery
	if !catalogkit.Query(r, &q) {
		return
	}

	page, limit := normalizePage(q.Page, q.Limit)
	filter := ProductFilter{CategoryID: q.CategoryID, Page: page, Limit: limit}
	key := filter.key()
	gen := s.productKeys.generation()

	products, err := cache.Fetch(r.Context(), s.querier, key, s.productTTL, func(ctx context.Context) ([]Product, error) {
		return s.repo.ListProducts(ctx, filter)
	})
	if err != nil {
		s.internalError(r, err)
		return
	}
	s.remember(r.Context(), s.productKeys, key, gen)
	catalogkit.SetResponse(r, http.StatusOK, listResponse[Product]{Data: products, Page: page, Limit: limit})
}

type createArticleRequest struct {
	Slug      string `json:"slug" validate:"required,max=200"`
	Title     string `json:"title" validate:"required,max=300"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
	Featured  bool   `json:"featured"`
}

func (s *Server) createArticle(_ http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if !catalogkit.JSON(r, &req) {
		return
	}

	article, err := s.repo.CreateArticle(r.Context(), Article{
		Slug:      req.Slug,
		Title:     req.Title,
		Body:      req.Body,
		Published: req.Published,
		Featured:  req.Featured,
	})
	if errors.Is(err, ErrDuplicateSlug) {
		catalogkit.SetError(r, catalogkit.ErrConflict.WithParam("Slug already exists", "slug"))
		return
	}
	if err != nil {
		s.internalError(r, err)
		return
	}

	// Keys populated by other instances are not in the local index; the
	// default storefront page is always cleared.
	keys := s.articleKeys.drain(ArticleListKey(true, false, DefaultPage, DefaultLimit))
	s.querier.Invalidate(r.Context(), keys...)

	catalogkit.SetResponse(r, http.StatusCreated, article)
}

type createProductRequest struct {
	Slug       string `json:"slug" validate:"required,max=200"`
	Name       string `json:"name" validate:"required,max=300"`
	Price      int64  `json:"price" validate:"gte=0"`
	CategoryID string `json:"category_id" validate:"omitempty,max=64"`
}

func (s *Server) createProduct(_ http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !catalogkit.JSON(r, &req) {
		return
	}

	product, err := s.repo.CreateProduct(r.Context(), Product{
		Slug:       req.Slug,
		Name:       req.Name,
		Price:      req.Price,
		CategoryID: req.CategoryID,
	})
	if errors.Is(err, ErrDuplicateSlug) {
		catalogkit.SetError(r, catalogkit.ErrConflict.WithParam("Slug already exists", "slug"))
		return
	}
	if err != nil {
		s.internalError(r, err)
		return
	}

	keys := s.productKeys.drain(ProductListKey("", DefaultPage, DefaultLimit))
	s.querier.Invalidate(r.Context(), keys...)

	catalogkit.SetResponse(r, http.StatusCreated, product)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) login(_ http.ResponseWriter, r *http.Request) {
	if !catalogkit.AdmitRequest(r, s.limiter, ActionLogin, s.loginMax, catalogkit.AdmitWithMessage(LoginLimitMessage)) {
		return
	}

	var req loginRequest
	if !catalogkit.JSON(r, &req) {
		return
	}

	sess, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		catalogkit.SetError(r, catalogkit.ErrUnauthorized.With("Invalid email or password"))
		return
	}
	if err != nil {
		s.internalError(r, err)
		return
	}

	cookie := &http.Cookie{
		Name:     catalogkit.SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	catalogkit.SetHeader(r, "Set-Cookie", cookie.String())
	catalogkit.SetResponse(r, http.StatusOK, sess)
}

func (s *Server) logout(_ http.ResponseWriter, r *http.Request) {
	if v, ok := catalogkit.SessionFromContext(r.Context()); ok {
		if sess, ok := v.(Session); ok {
			s.sessions.Logout(r.Context(), sess.Token)
		}
	}
	catalogkit.SetResponse(r, http.StatusNoContent, nil)
}

func (s *Server) cacheStats(_ http.ResponseWriter, r *http.Request) {
	catalogkit.SetResponse(r, http.StatusOK, s.querier.Stats())
}

func (s *Server) internalError(r *http.Request, err error) {
	if _, ok := canonlog.TryGetLogger(r.Context()); ok {
		canonlog.ErrorAdd(r.Context(), err)
	}
	catalogkit.SetError(r, catalogkit.ErrInternal)
}

// remember records a populated list key and deletes whatever the index
// reports as no longer safe to keep cached.
func (s *Server) remember(ctx context.Context, idx *keyIndex, key string, gen uint64) {
	if stale := idx.add(key, gen); len(stale) > 0 {
		s.querier.Invalidate(ctx, stale...)
	}
}

// keyIndex remembers the list keys this process has populated so a write can
// invalidate all of them, not just the default page. It holds at most limit
// keys and drops the least recently used first.
//
// A list query can read the repository before a write and store its result
// after the write drained the index. Every drain bumps the generation; a key
// added under an older generation is returned as stale so the caller deletes
// the value it may just have cached. A caller that stops waiting on a shared
// query skips this check, and instances sharing Redis do not see each other's
// drains; in both cases a stale page lives until its TTL expires.
type keyIndex struct {
	mu    sync.Mutex
	limit int
	gen   uint64
	order *list.List
	keys  map[string]*list.Element
}

func newKeyIndex(limit int) *keyIndex {
	return &keyIndex{
		limit: limit,
		order: list.New(),
		keys:  make(map[string]*list.Element),
	}
}

func (k *keyIndex) generation() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.gen
}

// add records key as populated under generation gen. It returns the keys the
// caller must delete from the cache: key itself when a drain happened since
// gen, or the oldest key when the index overflowed.
func (k *keyIndex) add(key string, gen uint64) []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	if gen != k.gen {
		return []string{key}
	}
	if el, ok := k.keys[key]; ok {
		k.order.MoveToFront(el)
		return nil
	}
	k.keys[key] = k.order.PushFront(key)

	var evicted []string
	for k.order.Len() > k.limit {
		oldest := k.order.Back()
		k.order.Remove(oldest)
		name := oldest.Value.(string)
		delete(k.keys, name)
		evicted = append(evicted, name)
	}
	return evicted
}

// drain returns the recorded keys plus extra, forgets the recorded keys and
// starts a new generation.
func (k *keyIndex) drain(extra ...string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	seen := make(map[string]struct{}, len(k.keys)+len(extra))
	keys := make([]string, 0, len(k.keys)+len(extra))
	for _, key := range extra {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	for key := range k.keys {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	k.gen++
	k.order.Init()
	clear(k.keys)
	return keys
}

func (k *keyIndex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.order.Len()
}
