// Package cost attributes dollar cost to language model calls and to
// search and scrape provider usage.
package cost

import (
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/topic-research/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity map[string]SonarRate `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaRate             `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// SonarRate holds Perplexity pricing: tokens per million plus a flat
// request fee.
type SonarRate struct {
	Input      float64 `yaml:"input" mapstructure:"input"`
	Output     float64 `yaml:"output" mapstructure:"output"`
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// JinaRate holds Jina pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlRate holds Firecrawl plan pricing. Cost per credit is derived
// from the monthly plan price.
type FirecrawlRate struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	in := (float64(input) / 1e6) * rate.Input
	out := (float64(output) / 1e6) * rate.Output
	cw := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	cr := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return in + out + cw + cr
}

// Perplexity computes the cost for a number of sonar requests.
func (c *Calculator) Perplexity(model string, input, output, requests int) float64 {
	rate, ok := c.rates.Perplexity[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input +
		(float64(output)/1e6)*rate.Output +
		float64(requests)*rate.PerRequest
}

// Jina computes the cost for Jina token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// Firecrawl computes the cost of the given number of credits.
func (c *Calculator) Firecrawl(credits int) float64 {
	if c.rates.Firecrawl.CreditsIncluded <= 0 {
		return 0
	}
	return float64(credits) * c.rates.Firecrawl.PlanMonthly / c.rates.Firecrawl.CreditsIncluded
}

// Usage prices an aggregated model usage record, picking the provider
// from the model name.
func (c *Calculator) Usage(modelName string, u model.TokenUsage) float64 {
	switch {
	case strings.HasPrefix(modelName, "claude"):
		return c.Claude(modelName, u.InputTokens, u.OutputTokens, u.CacheCreationTokens, u.CacheReadTokens)
	case strings.HasPrefix(modelName, "sonar"):
		return c.Perplexity(modelName, u.InputTokens, u.OutputTokens, u.Calls)
	default:
		return 0
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Perplexity: map[string]SonarRate{
			"sonar":     {Input: 1.00, Output: 1.00, PerRequest: 0.005},
			"sonar-pro": {Input: 3.00, Output: 15.00, PerRequest: 0.006},
		},
		Jina:      JinaRate{PerMTok: 0.02},
		Firecrawl: FirecrawlRate{PlanMonthly: 19.00, CreditsIncluded: 3000},
	}
}

// Tally accumulates cost per provider across the calls of one run. It is
// safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	totals map[string]float64
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{totals: make(map[string]float64)}
}

// Add records usd against provider. A nil tally ignores the call.
func (t *Tally) Add(provider string, usd float64) {
	if t == nil || usd == 0 {
		return
	}
	t.mu.Lock()
	t.totals[provider] += usd
	t.mu.Unlock()
}

// Total returns the sum over all providers.
func (t *Tally) Total() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, v := range t.totals {
		sum += v
	}
	return sum
}

// Providers returns the providers with recorded cost, sorted.
func (t *Tally) Providers() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.totals))
	for p := range t.totals {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Of returns the cost recorded for provider.
func (t *Tally) Of(provider string) float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[provider]
}
