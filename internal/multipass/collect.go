// Package multipass runs several search passes over a query and merges the
// deduplicated results into one markdown digest.
package multipass

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/topic-research/internal/model"
)

const (
	blockSeparator  = "\n\n\n---\n\n\n"
	truncatedSuffix = "\n\n...[truncated]..."
	queryToken      = "{q}"
)

// Searcher is the evidence source used by the collector.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []model.WebPage
}

// DefaultPasses returns the three standard passes.
func DefaultPasses() []model.PassSpec {
	return []model.PassSpec{
		{ID: "general", SourceType: model.SourceGeneral, Template: "{q} comparison best alternatives"},
		{ID: "docs", SourceType: model.SourceDocs, Template: "{q} vs competitors overview"},
		{ID: "reviews", SourceType: model.SourceBlog, Template: "{q} pros and cons review"},
	}
}

// Options configures a Collector.
type Options struct {
	PerPassLimit int
	SnippetChars int
	// PassInterval spaces consecutive passes. Zero runs them back to back.
	PassInterval time.Duration
}

// Digest is the merged result of a collection run.
type Digest struct {
	Markdown string
	Sources  []model.SourceRef
	Pages    []model.WebPage
}

// Collector runs search passes through a Searcher.
type Collector struct {
	search Searcher
	opts   Options
}

// New creates a Collector.
func New(search Searcher, opts Options) *Collector {
	if opts.PerPassLimit <= 0 {
		opts.PerPassLimit = 5
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 4000
	}
	return &Collector{search: search, opts: opts}
}

// Collect runs passes sequentially, deduplicates the pages and builds the
// digest. A nil or empty passes slice uses DefaultPasses. When every pass
// comes back empty, one direct search on the raw query is tried.
func (c *Collector) Collect(ctx context.Context, query string, passes []model.PassSpec) Digest {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}

	limit := rate.Inf
	if c.opts.PassInterval > 0 {
		limit = rate.Every(c.opts.PassInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var all []model.WebPage
	for _, p := range passes {
		if err := limiter.Wait(ctx); err != nil {
			zap.L().Warn("multipass: stopping passes", zap.String("pass", p.ID), zap.Error(err))
			break
		}

		q := ExpandTemplate(p.Template, query)
		pages := c.search.Search(ctx, q, c.opts.PerPassLimit)
		if len(pages) == 0 {
			zap.L().Info("multipass: pass returned nothing",
				zap.String("pass", p.ID),
				zap.String("query", q),
			)
			continue
		}

		for _, page := range pages {
			all = append(all, page.WithPass(p.ID, p.SourceType, page.Rank))
		}
		zap.L().Debug("multipass: pass complete",
			zap.String("pass", p.ID),
			zap.Int("pages", len(pages)),
		)
	}

	if len(all) == 0 && ctx.Err() == nil {
		zap.L().Info("multipass: all passes empty, falling back to direct search", zap.String("query", query))
		for _, page := range c.search.Search(ctx, query, c.opts.PerPassLimit) {
			all = append(all, page.WithPass("direct", model.SourceGeneral, page.Rank))
		}
	}

	deduped := Dedup(all)
	zap.L().Info("multipass: collected",
		zap.String("query", query),
		zap.Int("raw", len(all)),
		zap.Int("unique", len(deduped)),
	)
	return c.digest(deduped)
}

func (c *Collector) digest(pages []model.WebPage) Digest {
	blocks := make([]string, 0, len(pages))
	sources := make([]model.SourceRef, 0, len(pages))

	for _, p := range pages {
		sources = append(sources, p.Ref())
		if block := c.block(p); block != "" {
			blocks = append(blocks, block)
		}
	}

	return Digest{
		Markdown: strings.Join(blocks, blockSeparator),
		Sources:  sources,
		Pages:    pages,
	}
}

func (c *Collector) block(p model.WebPage) string {
	var header []string
	if p.Title != "" {
		header = append(header, "### "+p.Title)
	}
	if p.URL != "" {
		header = append(header, p.URL)
	}

	body := strings.TrimSpace(p.Markdown)
	if r := []rune(body); len(r) > c.opts.SnippetChars {
		body = string(r[:c.opts.SnippetChars]) + truncatedSuffix
	}

	return strings.TrimSpace(strings.Join(header, "\n") + "\n\n" + body)
}

// ExpandTemplate substitutes query into a pass template. A template without
// the {q} token is appended to the query.
func ExpandTemplate(template, query string) string {
	if template == "" {
		return query
	}
	if strings.Contains(template, queryToken) {
		return strings.TrimSpace(strings.ReplaceAll(template, queryToken, query))
	}
	return strings.TrimSpace(query + " " + template)
}
