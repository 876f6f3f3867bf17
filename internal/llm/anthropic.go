package llm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/pkg/anthropic"
)

const structuredSuffix = `

Respond with a single JSON object that validates against this JSON schema. Do not add commentary.
%s`

type anthropicProvider struct {
	client   anthropic.Client
	settings Settings
	calc     *cost.Calculator
}

func (p *anthropicProvider) Model() string { return p.settings.Model }

func (p *anthropicProvider) Generate(ctx context.Context, system, user string) (string, model.TokenUsage, error) {
	resp, err := p.call(ctx, system, user)
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	return resp.Text(), p.usage(resp), nil
}

func (p *anthropicProvider) Structure(ctx context.Context, req Request, out any) (model.TokenUsage, error) {
	if req.Schema == nil {
		return model.TokenUsage{}, eris.New("llm: structure request without schema")
	}
	system := req.System + fmt.Sprintf(structuredSuffix, req.Schema.Document())

	resp, err := p.call(ctx, system, req.User)
	if err != nil {
		return model.TokenUsage{}, err
	}
	usage := p.usage(resp)
	if err := req.Schema.Decode(resp.Text(), out); err != nil {
		return usage, err
	}
	return usage, nil
}

func (p *anthropicProvider) call(ctx context.Context, system, user string) (*anthropic.MessageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
	defer cancel()

	temp := p.settings.Temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.settings.Model,
		MaxTokens:   int64(p.settings.MaxTokens),
		System:      anthropic.CachedSystem(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic call")
	}
	return resp, nil
}

func (p *anthropicProvider) usage(resp *anthropic.MessageResponse) model.TokenUsage {
	return withCost(p.calc, p.settings.Model, model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		Calls:               1,
	})
}
