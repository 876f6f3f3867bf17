// Package pipeline runs a research query through the fixed stage sequence
// and records each stage as a phase of the run.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/config"
	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/metrics"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/research"
	"github.com/sells-group/topic-research/internal/store"
	"github.com/sells-group/topic-research/internal/topic"
)

// Stage names in execution order.
const (
	StageInterpret      = "interpret"
	StageCollect        = "collect_articles"
	StageExtract        = "extract_candidates"
	StageResearch       = "research_entities"
	StageAggregate      = "aggregate_knowledge"
	StageSynthesize     = "synthesize_recommendation"
	StageRender         = "render_text"
	defaultLLMMaxTokens = 4096
)

// Stages lists the stage names in the order they run.
var Stages = []string{
	StageInterpret,
	StageCollect,
	StageExtract,
	StageResearch,
	StageAggregate,
	StageSynthesize,
	StageRender,
}

// Resolver returns the structuring provider for a run.
type Resolver interface {
	Resolve(s llm.Settings) (llm.Provider, error)
}

// RunOptions are the per-run settings. Zero values fall back to config.
type RunOptions struct {
	Model       string
	Temperature *float64
	FastMode    bool
	// TopicKey selects a catalog topic and skips classification.
	TopicKey string
}

// Result is the outcome of one run.
type Result struct {
	RunID  string              `json:"run_id,omitempty"`
	Model  string              `json:"model"`
	State  model.PipelineState `json:"state"`
	Phases []model.PhaseResult `json:"phases"`
}

// Pipeline holds the long-lived dependencies shared by every run.
type Pipeline struct {
	cfg      *config.Config
	evidence research.Evidence
	llm      Resolver
	catalog  *topic.Catalog
	store    store.Store
}

// New creates a Pipeline. st may be nil, in which case run history is not
// recorded.
func New(cfg *config.Config, evidence research.Evidence, resolver Resolver, catalog *topic.Catalog, st store.Store) *Pipeline {
	if catalog == nil {
		catalog = topic.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		evidence: evidence,
		llm:      resolver,
		catalog:  catalog,
		store:    st,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, st model.PipelineState) model.Update
	skip bool
}

// Run executes every stage once, in order, and returns the final state.
// External failures degrade the state instead of failing the run; an error
// is returned only for an empty query or a model that cannot be resolved.
func (p *Pipeline) Run(ctx context.Context, query string, opts RunOptions) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("pipeline: query is required")
	}

	settings := p.settings(opts)
	provider, err := p.llm.Resolve(settings)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve model")
	}

	log := zap.L().With(zap.String("query", query), zap.String("model", settings.Model))
	log.Info("pipeline: starting research", zap.Bool("fast_mode", opts.FastMode))

	r := &run{p: p, opts: opts, provider: provider}
	result := &Result{
		Model: settings.Model,
		State: model.PipelineState{
			Query:          query,
			Sources:        []model.SourceRef{},
			CandidateNames: []string{},
			Entities:       []model.EntityRecord{},
		},
	}

	runID := p.createRun(ctx, query, opts.TopicKey, settings.Model)
	result.RunID = runID

	stages := []stage{
		{name: StageInterpret, run: r.interpret},
		{name: StageCollect, run: r.collect},
		{name: StageExtract, run: r.extract},
		{name: StageResearch, run: r.research},
		{name: StageAggregate, run: r.aggregate, skip: opts.FastMode},
		{name: StageSynthesize, run: r.synthesize},
		{name: StageRender, run: r.render},
	}
	for _, s := range stages {
		pr := p.trackPhase(ctx, runID, s, &result.State)
		result.Phases = append(result.Phases, pr)
	}

	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusFailed
	}
	p.completeRun(ctx, runID, status, result)

	log.Info("pipeline: research complete",
		zap.String("status", string(status)),
		zap.Int("sources", len(result.State.Sources)),
		zap.Int("entities", len(result.State.Entities)),
		zap.Int("llm_calls", result.State.Usage.Calls),
		zap.Int("input_tokens", result.State.Usage.InputTokens),
		zap.Int("output_tokens", result.State.Usage.OutputTokens),
		zap.Float64("cost_usd", result.State.Usage.Cost),
	)
	return result, nil
}

// trackPhase runs one stage, applies its update to st and records the
// phase. Store failures are logged and otherwise ignored.
func (p *Pipeline) trackPhase(ctx context.Context, runID string, s stage, st *model.PipelineState) model.PhaseResult {
	log := zap.L().With(zap.String("stage", s.name))

	var phase *model.RunPhase
	if p.store != nil && runID != "" {
		var err error
		phase, err = p.store.CreatePhase(ctx, runID, s.name)
		if err != nil {
			log.Warn("pipeline: failed to create phase", zap.Error(err))
		}
	}

	start := time.Now()
	pr := model.PhaseResult{Name: s.name, Status: model.PhaseStatusComplete}
	if s.skip {
		pr.Status = model.PhaseStatusSkipped
	} else {
		u := s.run(ctx, *st)
		st.Apply(u)
		pr.TokenUsage = u.Usage
		pr.Metadata = updateMetadata(u)
	}
	elapsed := time.Since(start)
	pr.Duration = elapsed.Milliseconds()

	metrics.ObserveStage(s.name, string(pr.Status), elapsed)
	log.Info("pipeline: phase complete",
		zap.String("status", string(pr.Status)),
		zap.Int64("duration_ms", pr.Duration),
		zap.Int("llm_calls", pr.TokenUsage.Calls),
	)

	if phase != nil {
		if err := p.store.CompletePhase(context.WithoutCancel(ctx), phase.ID, &pr); err != nil {
			log.Warn("pipeline: failed to complete phase", zap.Error(err))
		}
	}
	return pr
}

func (p *Pipeline) settings(opts RunOptions) llm.Settings {
	s := llm.Settings{
		Model:       p.cfg.LLM.DefaultModel,
		Temperature: p.cfg.LLM.Temperature,
		MaxTokens:   p.cfg.LLM.MaxTokens,
		Timeout:     p.cfg.LLM.StructureTimeout(),
	}
	if opts.Model != "" {
		s.Model = opts.Model
	}
	if opts.Temperature != nil {
		s.Temperature = *opts.Temperature
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaultLLMMaxTokens
	}
	return s
}

func (p *Pipeline) createRun(ctx context.Context, query, topicKey, modelName string) string {
	if p.store == nil {
		return ""
	}
	rec, err := p.store.CreateRun(ctx, store.NewRun{Query: query, TopicKey: topicKey, Model: modelName})
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.Error(err))
		return ""
	}
	return rec.ID
}

func (p *Pipeline) completeRun(ctx context.Context, runID string, status model.RunStatus, result *Result) {
	if p.store == nil || runID == "" {
		return
	}

	st := result.State
	rr := &model.RunResult{
		Entities:    st.EntityNames(),
		SourceCount: len(st.Sources),
		Usage:       st.Usage,
		Phases:      result.Phases,
		Report:      st.RenderedText,
	}
	if st.Recommendation != nil && st.Recommendation.PrimaryChoice != nil {
		rr.PrimaryChoice = *st.Recommendation.PrimaryChoice
	}
	if err := ctx.Err(); err != nil {
		rr.Error = err.Error()
	}

	if err := p.store.CompleteRun(context.WithoutCancel(ctx), runID, status, rr); err != nil {
		zap.L().Warn("pipeline: failed to complete run", zap.String("run_id", runID), zap.Error(err))
	}
}

func updateMetadata(u model.Update) map[string]any {
	meta := map[string]any{}
	if u.Topic != nil {
		meta["topic"] = u.Topic.Key
	}
	if u.Sources != nil {
		meta["sources"] = len(*u.Sources)
	}
	if u.CandidateNames != nil {
		meta["candidates"] = len(*u.CandidateNames)
	}
	if u.Entities != nil {
		meta["entities"] = len(*u.Entities)
	}
	if u.Knowledge != nil {
		meta["knowledge_entities"] = len(u.Knowledge.Entities)
	}
	if u.Recommendation != nil && u.Recommendation.PrimaryChoice != nil {
		meta["primary_choice"] = *u.Recommendation.PrimaryChoice
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
