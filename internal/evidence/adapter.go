// Package evidence gathers web pages for a research run. Search and scrape
// requests go through a chain of providers, each guarded by a circuit
// breaker, and successful results are cached for the lifetime of the
// adapter.
package evidence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/topic-research/internal/metrics"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/resilience"
)

// DefaultSearchLimit is used when a caller passes a non-positive limit.
const DefaultSearchLimit = 5

// Options configures an Adapter.
type Options struct {
	SearchTimeout time.Duration
	ScrapeTimeout time.Duration
	// Retry applies per provider call. MaxAttempts 1 disables retries.
	Retry resilience.RetryConfig
	// Breaker builds the circuit breaker config for a provider name.
	Breaker func(name string) resilience.CircuitBreakerConfig
}

// DefaultOptions returns the adapter defaults.
func DefaultOptions() Options {
	return Options{
		SearchTimeout: 30 * time.Second,
		ScrapeTimeout: 90 * time.Second,
		Retry:         resilience.RetryConfig{MaxAttempts: 1},
		Breaker:       resilience.DefaultCircuitBreakerConfig,
	}
}

type guarded struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
}

type searchKey struct {
	query string
	limit int
}

// Adapter is the evidence source used by every stage. It never returns an
// error: failures are logged and surface as empty results. Returned pages are
// deep copies, so callers may modify them without touching the cache.
type Adapter struct {
	providers []guarded
	opts      Options

	mu          sync.Mutex
	searchCache map[searchKey][]model.WebPage
	scrapeCache map[string]model.WebPage

	group singleflight.Group
}

// New creates an Adapter that tries providers in order.
func New(opts Options, providers ...Provider) *Adapter {
	d := DefaultOptions()
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = d.SearchTimeout
	}
	if opts.ScrapeTimeout <= 0 {
		opts.ScrapeTimeout = d.ScrapeTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Breaker == nil {
		opts.Breaker = d.Breaker
	}

	a := &Adapter{
		opts:        opts,
		searchCache: make(map[searchKey][]model.WebPage),
		scrapeCache: make(map[string]model.WebPage),
	}
	for _, p := range providers {
		cfg := opts.Breaker(p.Name())
		cfg.Name = p.Name()
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = logStateChange
		}
		a.providers = append(a.providers, guarded{
			provider: p,
			breaker:  resilience.NewCircuitBreaker(cfg),
		})
	}
	return a
}

func logStateChange(name string, from, to resilience.CircuitState) {
	zap.L().Warn("evidence: circuit state changed",
		zap.String("provider", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Search returns normalized pages for query, at most limit per provider
// response. The result is empty when every provider fails or finds nothing.
func (a *Adapter) Search(ctx context.Context, query string, limit int) []model.WebPage {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	key := searchKey{query: query, limit: limit}

	a.mu.Lock()
	cached, ok := a.searchCache[key]
	a.mu.Unlock()
	if ok {
		metrics.RecordCacheHit("search")
		return model.ClonePages(cached)
	}

	v, _, _ := a.group.Do("search\x00"+strconv.Itoa(limit)+"\x00"+query, func() (any, error) {
		pages := a.searchProviders(ctx, query, limit)
		if len(pages) > 0 {
			a.mu.Lock()
			a.searchCache[key] = model.ClonePages(pages)
			a.mu.Unlock()
		}
		return pages, nil
	})
	return model.ClonePages(v.([]model.WebPage))
}

func (a *Adapter) searchProviders(ctx context.Context, query string, limit int) []model.WebPage {
	for _, g := range a.providers {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.SearchTimeout)
		raw, err := resilience.ExecuteVal(callCtx, g.breaker, func(ctx context.Context) (RawSearchResult, error) {
			return resilience.DoVal(ctx, a.retry(g.provider.Name(), "search"), func(ctx context.Context) (RawSearchResult, error) {
				return g.provider.Search(ctx, query, limit)
			})
		})
		cancel()

		metrics.RecordCall(g.provider.Name(), "search", outcome(err))
		if err != nil {
			zap.L().Warn("evidence: search failed",
				zap.String("provider", g.provider.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		pages := Normalize(raw)
		if len(pages) > limit {
			pages = pages[:limit]
		}
		if len(pages) > 0 {
			return pages
		}
		zap.L().Debug("evidence: search returned no results",
			zap.String("provider", g.provider.Name()),
			zap.String("query", query),
		)
	}
	return []model.WebPage{}
}

// Scrape fetches a single page. It returns nil when every provider fails.
func (a *Adapter) Scrape(ctx context.Context, url string) *model.WebPage {
	a.mu.Lock()
	cached, ok := a.scrapeCache[url]
	a.mu.Unlock()
	if ok {
		metrics.RecordCacheHit("scrape")
		out := cached.Clone()
		return &out
	}

	v, _, _ := a.group.Do("scrape\x00"+url, func() (any, error) {
		page := a.scrapeProviders(ctx, url)
		if page != nil {
			a.mu.Lock()
			a.scrapeCache[url] = page.Clone()
			a.mu.Unlock()
		}
		return page, nil
	})

	page, _ := v.(*model.WebPage)
	if page == nil {
		return nil
	}
	out := page.Clone()
	return &out
}

func (a *Adapter) scrapeProviders(ctx context.Context, url string) *model.WebPage {
	for _, g := range a.providers {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.ScrapeTimeout)
		page, err := resilience.ExecuteVal(callCtx, g.breaker, func(ctx context.Context) (*model.WebPage, error) {
			return resilience.DoVal(ctx, a.retry(g.provider.Name(), "scrape"), func(ctx context.Context) (*model.WebPage, error) {
				return g.provider.Scrape(ctx, url)
			})
		})
		cancel()

		metrics.RecordCall(g.provider.Name(), "scrape", outcome(err))
		if err != nil {
			zap.L().Warn("evidence: scrape failed",
				zap.String("provider", g.provider.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			continue
		}
		if page != nil {
			return page
		}
	}
	return nil
}

func (a *Adapter) retry(provider, op string) resilience.RetryConfig {
	cfg := a.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(provider, op)
	}
	return cfg
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, resilience.ErrCircuitOpen):
		return metrics.OutcomeOpen
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
