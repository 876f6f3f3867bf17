// Package llm adapts language model APIs to the two calls the pipeline
// needs: free text generation and schema-validated structured output.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/pkg/anthropic"
	"github.com/sells-group/topic-research/pkg/perplexity"
)

// Provider is a text structuring backend bound to one model.
type Provider interface {
	Model() string
	Generate(ctx context.Context, system, user string) (string, model.TokenUsage, error)
	Structure(ctx context.Context, req Request, out any) (model.TokenUsage, error)
}

// Request is a structured output request.
type Request struct {
	System string
	User   string
	Schema *Schema
}

// Settings are the per-run generation parameters.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Factory resolves a Provider from a model name.
type Factory struct {
	Anthropic  anthropic.Client
	Perplexity perplexity.Client
	Calc       *cost.Calculator
}

// Resolve returns the provider serving s.Model: claude-* models go to
// Anthropic and sonar* models to Perplexity.
func (f *Factory) Resolve(s Settings) (Provider, error) {
	if s.MaxTokens <= 0 {
		s.MaxTokens = 4096
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}

	switch {
	case strings.HasPrefix(s.Model, "claude"):
		if f.Anthropic == nil {
			return nil, eris.Errorf("llm: model %s needs an anthropic client", s.Model)
		}
		return &anthropicProvider{client: f.Anthropic, settings: s, calc: f.Calc}, nil
	case strings.HasPrefix(s.Model, "sonar"):
		if f.Perplexity == nil {
			return nil, eris.Errorf("llm: model %s needs a perplexity client", s.Model)
		}
		return &perplexityProvider{client: f.Perplexity, settings: s, calc: f.Calc}, nil
	default:
		return nil, eris.Errorf("llm: unsupported model %q", s.Model)
	}
}

func withCost(calc *cost.Calculator, modelName string, u model.TokenUsage) model.TokenUsage {
	if calc != nil {
		u.Cost = calc.Usage(modelName, u)
	}
	return u
}
