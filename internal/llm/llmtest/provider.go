// Package llmtest provides a testify mock of llm.Provider.
package llmtest

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
)

// Provider is a mock llm.Provider.
//
// Generate expectations return (text, usage, error). Structure expectations
// return (usage, reply, error): the reply is decoded into out through the
// request schema, the same way the real providers decode model output.
type Provider struct {
	mock.Mock
	ModelName string
}

var _ llm.Provider = (*Provider)(nil)

// Model returns ModelName.
func (m *Provider) Model() string { return m.ModelName }

// Generate implements llm.Provider.
func (m *Provider) Generate(ctx context.Context, system, user string) (string, model.TokenUsage, error) {
	args := m.Called(ctx, system, user)
	usage, _ := args.Get(1).(model.TokenUsage)
	return args.String(0), usage, args.Error(2)
}

// Structure implements llm.Provider.
func (m *Provider) Structure(ctx context.Context, req llm.Request, out any) (model.TokenUsage, error) {
	args := m.Called(ctx, req, out)
	usage, _ := args.Get(0).(model.TokenUsage)
	if err := args.Error(2); err != nil {
		return usage, err
	}
	reply := args.String(1)
	if req.Schema != nil {
		return usage, req.Schema.Decode(reply, out)
	}
	return usage, json.Unmarshal([]byte(reply), out)
}
