// Package knowledge distills collected articles and entity profiles into a
// single cross-entity knowledge graph.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
)

const (
	// DefaultMaxInputChars is the input budget when none is configured. It
	// sits above the largest digest the default search settings produce.
	DefaultMaxInputChars = 120000
	chunkSeparator       = "\n\n"
)

// Options configures an Aggregator.
type Options struct {
	// MaxInputChars bounds the input of one structuring call, in runes.
	MaxInputChars int
	// Chunked splits over-budget input into several calls whose graphs are
	// merged. Otherwise the article text is trimmed to fit one call.
	Chunked bool
}

// Aggregator builds knowledge graphs through a structuring provider.
type Aggregator struct {
	provider llm.Provider
	opts     Options
}

// New creates an Aggregator.
func New(provider llm.Provider, opts Options) *Aggregator {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	return &Aggregator{provider: provider, opts: opts}
}

// Aggregate returns nil when there is nothing to aggregate or when every
// structuring call fails.
func (a *Aggregator) Aggregate(ctx context.Context, query, markdown string, entities []model.EntityRecord) (*model.KnowledgeGraph, model.TokenUsage) {
	var usage model.TokenUsage
	input := BuildInput(markdown, entities)
	if input == "" {
		zap.L().Debug("knowledge: no input, skipping")
		return nil, usage
	}

	chunks := []string{FitInput(markdown, entities, a.opts.MaxInputChars)}
	if a.opts.Chunked {
		chunks = Chunk(input, a.opts.MaxInputChars)
	}

	var merged *model.KnowledgeGraph
	for i, chunk := range chunks {
		var g model.KnowledgeGraph
		u, err := a.provider.Structure(ctx, llm.Request{
			System: systemPrompt,
			User:   userPrompt(query, chunk),
			Schema: llm.KnowledgeSchema,
		}, &g)
		usage.Add(u)
		if err != nil {
			zap.L().Warn("knowledge: structuring failed",
				zap.Int("chunk", i), zap.Int("chunks", len(chunks)), zap.Error(err))
			continue
		}
		if merged == nil {
			merged = &model.KnowledgeGraph{}
		}
		merged = Merge(merged, Normalize(&g))
	}

	if merged != nil {
		zap.L().Info("knowledge: graph built",
			zap.Int("entities", len(merged.Entities)),
			zap.Int("relationships", len(merged.Relationships)),
			zap.Int("risks", len(merged.Risks)),
			zap.Int("chunks", len(chunks)))
	}
	return merged, usage
}

// BuildInput joins the article markdown with one synthetic block per entity.
// It returns "" when both are empty.
func BuildInput(markdown string, entities []model.EntityRecord) string {
	parts := make([]string, 0, len(entities)+1)
	if md := strings.TrimSpace(markdown); md != "" {
		parts = append(parts, md)
	}
	for _, e := range entities {
		if block := entityBlock(e); block != "" {
			parts = append(parts, block)
		}
	}
	return strings.Join(parts, chunkSeparator)
}

// FitInput is BuildInput bounded to limit runes. The article text is trimmed
// first so the entity blocks survive.
func FitInput(markdown string, entities []model.EntityRecord, limit int) string {
	input := BuildInput(markdown, entities)
	if limit <= 0 || len([]rune(input)) <= limit {
		return input
	}

	blocks := BuildInput("", entities)
	room := limit - len([]rune(blocks))
	if blocks != "" {
		room -= len([]rune(chunkSeparator))
	}
	if room <= 0 {
		return string([]rune(blocks)[:min(limit, len([]rune(blocks)))])
	}
	md := []rune(strings.TrimSpace(markdown))
	zap.L().Debug("knowledge: trimming article text to fit",
		zap.Int("article_chars", len(md)), zap.Int("kept", room))
	return BuildInput(string(md[:room]), entities)
}

func entityBlock(e model.EntityRecord) string {
	if strings.TrimSpace(e.Name) == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### Entity: %s\n", e.Name)
	if e.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", e.Website)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
	}
	if len(e.Strengths) > 0 {
		fmt.Fprintf(&b, "Strengths: %s\n", strings.Join(e.Strengths, "; "))
	}
	if len(e.Limitations) > 0 {
		fmt.Fprintf(&b, "Limitations: %s\n", strings.Join(e.Limitations, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Chunk splits s into pieces of at most limit runes, breaking on paragraph
// boundaries where possible.
func Chunk(s string, limit int) []string {
	if limit <= 0 || len([]rune(s)) <= limit {
		return []string{s}
	}

	var (
		chunks []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
		}
	}

	sep := []rune(chunkSeparator)
	for _, para := range strings.Split(s, chunkSeparator) {
		r := []rune(para)
		for len(r) > limit {
			flush()
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		need := len(r)
		if len(cur) > 0 {
			need += len(sep)
		}
		if len(cur)+need > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, sep...)
		}
		cur = append(cur, r...)
	}
	flush()
	return chunks
}
