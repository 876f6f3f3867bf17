package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/pkg/perplexity"
)

type perplexityProvider struct {
	client   perplexity.Client
	settings Settings
	calc     *cost.Calculator
}

func (p *perplexityProvider) Model() string { return p.settings.Model }

func (p *perplexityProvider) Generate(ctx context.Context, system, user string) (string, model.TokenUsage, error) {
	resp, err := p.call(ctx, system, user, nil)
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	return resp.Text(), p.usage(resp), nil
}

func (p *perplexityProvider) Structure(ctx context.Context, req Request, out any) (model.TokenUsage, error) {
	if req.Schema == nil {
		return model.TokenUsage{}, eris.New("llm: structure request without schema")
	}
	resp, err := p.call(ctx, req.System, req.User, perplexity.JSONSchemaFormat(req.Schema.Document()))
	if err != nil {
		return model.TokenUsage{}, err
	}
	usage := p.usage(resp)
	if err := req.Schema.Decode(resp.Text(), out); err != nil {
		return usage, err
	}
	return usage, nil
}

func (p *perplexityProvider) call(ctx context.Context, system, user string, format *perplexity.ResponseFormat) (*perplexity.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
	defer cancel()

	var msgs []perplexity.Message
	if system != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: user})

	temp := p.settings.Temperature
	maxTokens := p.settings.MaxTokens
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:          p.settings.Model,
		Messages:       msgs,
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: perplexity call")
	}
	return resp, nil
}

func (p *perplexityProvider) usage(resp *perplexity.ChatCompletionResponse) model.TokenUsage {
	return withCost(p.calc, p.settings.Model, model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Calls:        1,
	})
}
