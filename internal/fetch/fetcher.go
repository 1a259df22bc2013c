package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Page is a fetched page reduced to LLM-ready content.
type Page struct {
	URL       string
	Title     string
	Text      string
	Markdown  string
	Platform  Platform
	Rendered  bool // Content came from headless browser rendering
	FromCache bool
}

type cacheEntry struct {
	page    *Page
	expires time.Time
}

// Fetcher fetches pages over HTTP with an optional browser fallback and
// keeps successful results in a short-lived in-memory cache.
type Fetcher struct {
	opts           *Options
	useBrowser     bool
	browserTimeout time.Duration
	ttl            time.Duration
	log            *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	render RenderFunc
	now    func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithOptions sets the HTTP options.
func WithOptions(opts *Options) FetcherOption {
	return func(f *Fetcher) {
		if opts != nil {
			f.opts = opts
		}
	}
}

// WithBrowserFallback enables headless rendering for pages whose HTTP content is too thin.
func WithBrowserFallback(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.useBrowser = true
		if timeout > 0 {
			f.browserTimeout = timeout
		}
	}
}

// WithRenderer replaces the headless browser renderer.
func WithRenderer(render RenderFunc) FetcherOption {
	return func(f *Fetcher) {
		f.render = render
	}
}

// WithCacheTTL sets how long fetched pages are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.ttl = ttl
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(logger *zap.Logger, options ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		opts:           DefaultOptions(),
		browserTimeout: 30 * time.Second,
		ttl:            15 * time.Minute,
		log:            logger,
		cache:          make(map[string]cacheEntry),
		render:         WithBrowser,
		now:            time.Now,
	}
	for _, o := range options {
		o(f)
	}
	f.render = loggingRenderer(f.render, logger)
	return f
}

func (f *Fetcher) cached(url string) (*Page, bool) {
	if f.ttl <= 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[url]
	if !ok {
		return nil, false
	}
	if f.now().After(e.expires) {
		delete(f.cache, url)
		return nil, false
	}
	p := *e.page
	p.FromCache = true
	return &p, true
}

func (f *Fetcher) store(p *Page) {
	if f.ttl <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[p.URL] = cacheEntry{page: p, expires: f.now().Add(f.ttl)}
}

// Page fetches url and extracts its main content.
func (f *Fetcher) Page(ctx context.Context, url string) (*Page, error) {
	if p, ok := f.cached(url); ok {
		f.log.Debug("page cache hit", zap.String("url", url))
		return p, nil
	}

	platform := DetectPlatform(url)
	selectors := PlatformContentSelectors(platform)
	noise := PlatformNoiseSelectors(platform)

	res, err := URL(ctx, url, f.opts)
	if err != nil {
		return nil, err
	}

	html := res.HTML
	text, err := ExtractMainText(html, selectors, noise...)
	if err != nil {
		return nil, &Error{URL: url, Message: "failed to extract text", Cause: err}
	}

	rendered := false
	if f.useBrowser && ShouldUseBrowser(text) {
		f.log.Debug("thin content, rendering in browser", zap.String("url", url), zap.Int("chars", len(text)))
		if bHTML, bErr := f.render(ctx, url, f.browserTimeout); bErr == nil {
			if bText, tErr := ExtractMainText(bHTML, selectors, noise...); tErr == nil && len(bText) > len(text) {
				html, text, rendered = bHTML, bText, true
			}
		}
	}

	md, err := ToMarkdown(html, selectors, noise...)
	if err != nil {
		md = text
	}

	p := &Page{
		URL:      url,
		Title:    Title(html),
		Text:     text,
		Markdown: md,
		Platform: platform,
		Rendered: rendered,
	}
	f.store(p)
	return p, nil
}

// Pages fetches urls concurrently with at most limit requests in flight.
// Failed pages are logged and skipped; results keep input order.
func (f *Fetcher) Pages(ctx context.Context, urls []string, limit int) []*Page {
	if limit <= 0 {
		limit = 4
	}
	results := make([]*Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			p, err := f.Page(gctx, u)
			if err != nil {
				f.log.Warn("page fetch failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Page, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
