package topic

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
)

// Classify asks the provider which catalog topic fits query. A reply that
// names no topic, or a failed call, selects the default topic.
func (c *Catalog) Classify(ctx context.Context, provider llm.Provider, query string) (*model.Topic, model.TokenUsage) {
	reply, usage, err := provider.Generate(ctx, c.routerPrompt(), "User query: "+query)
	if err != nil {
		zap.L().Warn("topic: classification failed, using default",
			zap.String("query", query), zap.Error(err))
		return c.Default(), usage
	}

	if t, ok := c.Match(firstLine(reply)); ok {
		zap.L().Info("topic: classified", zap.String("query", query), zap.String("topic", t.Key))
		return t, usage
	}
	zap.L().Warn("topic: reply matched no topic, using default",
		zap.String("query", query), zap.String("reply", reply))
	return c.Default(), usage
}

func (c *Catalog) routerPrompt() string {
	var b strings.Builder
	b.WriteString("You are a topic router that classifies user queries into research categories.\n\nAvailable categories:\n")
	for _, t := range c.topics {
		fmt.Fprintf(&b, "- %s: %s\n", t.Label, t.Description)
	}
	b.WriteString("\nRead the query and choose exactly one category. Return only the category label, nothing else. If the query is ambiguous, choose the closest match.")
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
