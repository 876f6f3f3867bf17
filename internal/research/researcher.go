// Package research resolves candidate names to web sites and turns the
// content found there into structured entity records, several names at a
// time.
package research

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
)

const (
	defaultMaxCandidates  = 4
	defaultMaxWorkers     = 4
	defaultAnalysisChars  = 2500
	defaultCandidateQuery = "{name} official site"
	nameToken             = "{name}"
)

// Evidence is the search and scrape source used by the researcher.
type Evidence interface {
	Search(ctx context.Context, query string, limit int) []model.WebPage
	Scrape(ctx context.Context, url string) *model.WebPage
}

// Options configures a Researcher.
type Options struct {
	MaxCandidates int
	MaxWorkers    int
	// TaskTimeout bounds the work done for a single name. Zero means only
	// the parent context applies.
	TaskTimeout time.Duration
	// CandidateQuery builds the disambiguation search for a name.
	CandidateQuery string
	// AnalysisChars caps the content sent for analysis, in runes.
	AnalysisChars int
	Topic         *model.Topic
}

// Researcher produces entity records for candidate names.
type Researcher struct {
	evidence Evidence
	provider llm.Provider
	opts     Options
}

// New creates a Researcher.
func New(evidence Evidence, provider llm.Provider, opts Options) *Researcher {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = defaultMaxWorkers
	}
	if opts.AnalysisChars <= 0 {
		opts.AnalysisChars = defaultAnalysisChars
	}
	if strings.TrimSpace(opts.CandidateQuery) == "" {
		opts.CandidateQuery = defaultCandidateQuery
	}
	return &Researcher{evidence: evidence, provider: provider, opts: opts}
}

type outcome struct {
	record *model.EntityRecord
	usage  model.TokenUsage
}

// Research builds one record per distinct name, running up to MaxWorkers
// names at once. Records arrive in completion order. A name that finds no
// web site, times out or panics yields no record; a name whose analysis
// fails yields a degraded record. Names not yet started when ctx is done
// are skipped.
func (r *Researcher) Research(ctx context.Context, names []string) ([]model.EntityRecord, model.TokenUsage) {
	var usage model.TokenUsage
	names = uniqueNames(names, 0)
	if len(names) == 0 {
		return []model.EntityRecord{}, usage
	}

	results := make(chan outcome, len(names))

	var g errgroup.Group
	g.SetLimit(min(r.opts.MaxWorkers, len(names)))
	for _, name := range names {
		g.Go(func() error {
			if ctx.Err() != nil {
				zap.L().Debug("research: skipping queued task", zap.String("entity", name))
				return nil
			}
			results <- r.researchOne(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	records := make([]model.EntityRecord, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for res := range results {
		usage.Add(res.usage)
		if res.record == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(res.record.Name))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, *res.record)
	}
	return records, usage
}

func (r *Researcher) researchOne(ctx context.Context, name string) (res outcome) {
	log := zap.L().With(zap.String("entity", name))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("research: task panicked", zap.Any("panic", p))
			res = outcome{usage: res.usage}
		}
	}()

	if r.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TaskTimeout)
		defer cancel()
	}

	pages := r.evidence.Search(ctx, r.candidateQuery(name), 1)
	if ctx.Err() != nil {
		log.Warn("research: task timed out", zap.String("step", "search"))
		return res
	}
	if len(pages) == 0 || pages[0].URL == "" {
		log.Info("research: no web site found")
		return res
	}
	doc := pages[0]

	rec := model.EntityRecord{
		Name:        name,
		Description: doc.Description,
		Website:     doc.URL,
		TechStack:   []string{},
		Competitors: []string{},
		Branding:    doc.Branding,
	}

	content := doc.Markdown
	if strings.TrimSpace(content) == "" {
		log.Debug("research: no markdown in search result, scraping", zap.String("url", doc.URL))
		if scraped := r.evidence.Scrape(ctx, doc.URL); scraped != nil {
			content = scraped.Markdown
			if !scraped.Branding.IsZero() {
				rec.Branding = scraped.Branding
			}
		}
		if ctx.Err() != nil {
			log.Warn("research: task timed out", zap.String("step", "scrape"))
			return res
		}
	}

	if strings.TrimSpace(content) == "" {
		log.Info("research: no content, skipping analysis")
		identity := model.IdentityEntity(name, rec.Website, rec.Description)
		identity.Branding = rec.Branding
		res.record = &identity
		return res
	}

	var analysis model.EntityRecord
	u, err := r.provider.Structure(ctx, llm.Request{
		System: analysisSystem(r.opts.Topic),
		User:   analysisUser(r.opts.Topic, name, truncateRunes(content, r.opts.AnalysisChars)),
		Schema: llm.EntitySchema,
	}, &analysis)
	res.usage = u
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("research: task timed out", zap.String("step", "analysis"))
			return res
		}
		log.Warn("research: analysis failed, using degraded record", zap.Error(err))
		degraded := model.DegradedEntity(name, doc.URL)
		degraded.Branding = rec.Branding
		res.record = &degraded
		return res
	}

	rec.ApplyAnalysis(analysis)
	res.record = &rec
	log.Info("research: entity complete",
		zap.String("website", rec.Website),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res
}

func (r *Researcher) candidateQuery(name string) string {
	tmpl := r.opts.CandidateQuery
	if strings.Contains(tmpl, nameToken) {
		return strings.ReplaceAll(tmpl, nameToken, name)
	}
	return name + " " + tmpl
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
