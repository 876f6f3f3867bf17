package pipeline

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/compare"
	"github.com/sells-group/topic-research/internal/knowledge"
	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/multipass"
	"github.com/sells-group/topic-research/internal/render"
	"github.com/sells-group/topic-research/internal/research"
)

// run carries the per-run state shared by the stage functions.
type run struct {
	p        *Pipeline
	opts     RunOptions
	provider llm.Provider
}

func (r *run) interpret(ctx context.Context, st model.PipelineState) model.Update {
	if r.opts.TopicKey != "" {
		if t, ok := r.p.catalog.Get(r.opts.TopicKey); ok {
			return model.Update{Topic: t}
		}
		zap.L().Warn("pipeline: unknown topic, classifying instead", zap.String("topic", r.opts.TopicKey))
	}
	t, usage := r.p.catalog.Classify(ctx, r.provider, st.Query)
	return model.Update{Topic: t, Usage: usage}
}

func (r *run) collect(ctx context.Context, st model.PipelineState) model.Update {
	cfg := r.p.cfg.Search
	c := multipass.New(r.p.evidence, multipass.Options{
		PerPassLimit: cfg.PerPassLimit,
		SnippetChars: cfg.SnippetChars,
		PassInterval: time.Duration(cfg.PassIntervalMs) * time.Millisecond,
	})

	passes := r.passes(st.Topic)
	if r.opts.FastMode && len(passes) > 1 {
		passes = passes[:1]
	}

	d := c.Collect(ctx, st.Query, passes)
	return model.Update{
		AggregatedMarkdown: &d.Markdown,
		Sources:            &d.Sources,
	}
}

// passes picks the search passes for a topic. Topic passes win over the
// configured ones; a topic article query replaces the first pass template.
func (r *run) passes(t *model.Topic) []model.PassSpec {
	if t != nil && len(t.Passes) > 0 {
		return slices.Clone(t.Passes)
	}

	passes := slices.Clone(r.p.cfg.Search.Passes)
	if len(passes) == 0 {
		passes = multipass.DefaultPasses()
	}
	if t != nil && t.ArticleQuery != "" {
		passes[0].Template = t.ArticleQuery
	}
	return passes
}

func (r *run) researcher(t *model.Topic) *research.Researcher {
	cfg := r.p.cfg.Research
	candidateQuery := cfg.CandidateQuery
	if t != nil && t.CandidateQuery != "" {
		candidateQuery = t.CandidateQuery
	}
	return research.New(r.p.evidence, r.provider, research.Options{
		MaxCandidates:  cfg.MaxCandidates,
		MaxWorkers:     cfg.MaxWorkers,
		TaskTimeout:    cfg.TaskTimeout(),
		CandidateQuery: candidateQuery,
		Topic:          t,
	})
}

func (r *run) extract(ctx context.Context, st model.PipelineState) model.Update {
	names, usage := r.researcher(st.Topic).ExtractCandidates(ctx, st.Query, st.AggregatedMarkdown)
	return model.Update{CandidateNames: &names, Usage: usage}
}

func (r *run) research(ctx context.Context, st model.PipelineState) model.Update {
	entities, usage := r.researcher(st.Topic).Research(ctx, st.CandidateNames)
	return model.Update{Entities: &entities, Usage: usage}
}

func (r *run) aggregate(ctx context.Context, st model.PipelineState) model.Update {
	cfg := r.p.cfg.Knowledge
	agg := knowledge.New(r.provider, knowledge.Options{MaxInputChars: cfg.MaxInputChars, Chunked: cfg.Chunked})
	graph, usage := agg.Aggregate(ctx, st.Query, st.AggregatedMarkdown, st.Entities)
	return model.Update{Knowledge: graph, Usage: usage}
}

func (r *run) synthesize(ctx context.Context, st model.PipelineState) model.Update {
	rec, usage := compare.New(r.provider, st.Topic).Synthesize(ctx, st.Query, st.Entities, st.Knowledge)
	return model.Update{Recommendation: rec, Usage: usage}
}

func (r *run) render(_ context.Context, st model.PipelineState) model.Update {
	text := render.Text(st)
	return model.Update{RenderedText: &text}
}
