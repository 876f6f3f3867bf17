package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-research/internal/config"
	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/llm/llmtest"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/multipass"
	"github.com/sells-group/topic-research/internal/render"
	"github.com/sells-group/topic-research/internal/store"
	"github.com/sells-group/topic-research/internal/topic"
)

const (
	entityJSON    = `{"description":"A database.","pricing_model":"Freemium","strengths":["scales"],"limitations":["cost"]}`
	knowledgeJSON = `{"entities":[{"name":"PostgreSQL"},{"name":"DynamoDB"}],"pros":[{"entity":"PostgreSQL","text":"Rich SQL"}]}`
	recommendJSON = `{"primary_choice":"postgresql","backup_options":["DynamoDB"],"summary":"PostgreSQL fits relational workloads."}`
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			DefaultModel: "claude-sonnet-4-5-20250929",
			Temperature:  0.2,
		},
	}
}

func testArticles() []model.WebPage {
	return []model.WebPage{
		{URL: "https://blog.example/postgres-vs-dynamo", Title: "Postgres vs DynamoDB", Markdown: "PostgreSQL and DynamoDB compared."},
		{URL: "https://news.example/databases", Title: "Top databases", Markdown: "PostgreSQL leads, DynamoDB follows."},
	}
}

func isRouter(system string) bool     { return strings.Contains(system, "topic router") }
func isExtraction(system string) bool { return strings.Contains(system, "Extract specific") }

func schemaIs(s *llm.Schema) any {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Schema == s })
}

// fullProvider answers every call a complete run makes.
func fullProvider() *llmtest.Provider {
	p := &llmtest.Provider{ModelName: "claude-sonnet-4-5-20250929"}
	p.On("Generate", mock.Anything, mock.MatchedBy(isRouter), mock.Anything).
		Return("Databases & Data Platforms", model.TokenUsage{Calls: 1}, nil)
	p.On("Generate", mock.Anything, mock.MatchedBy(isExtraction), mock.Anything).
		Return("1. PostgreSQL\n2. DynamoDB", model.TokenUsage{Calls: 1}, nil)
	p.On("Structure", mock.Anything, schemaIs(llm.EntitySchema), mock.Anything).
		Return(model.TokenUsage{Calls: 1}, entityJSON, nil)
	p.On("Structure", mock.Anything, schemaIs(llm.KnowledgeSchema), mock.Anything).
		Return(model.TokenUsage{Calls: 1}, knowledgeJSON, nil)
	p.On("Structure", mock.Anything, schemaIs(llm.RecommendationSchema), mock.Anything).
		Return(model.TokenUsage{Calls: 1}, recommendJSON, nil)
	return p
}

func phaseNames(phases []model.PhaseResult) []string {
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		names = append(names, p.Name)
	}
	return names
}

func TestRun_EmptyQuery(t *testing.T) {
	resolver := &fakeResolver{}
	p := New(testConfig(), &fakeEvidence{}, resolver, nil, nil)

	_, err := p.Run(context.Background(), "   ", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
	assert.Empty(t, resolver.got)
}

func TestRun_ResolveError(t *testing.T) {
	resolver := &fakeResolver{err: errors.New(`llm: unsupported model "gpt-x"`)}
	p := New(testConfig(), &fakeEvidence{}, resolver, nil, nil)

	_, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{Model: "gpt-x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve model")
}

func TestRun_FullFlow(t *testing.T) {
	provider := fullProvider()
	resolver := &fakeResolver{provider: provider}
	ev := &fakeEvidence{articles: testArticles()}
	p := New(testConfig(), ev, resolver, topic.Default(), nil)

	temp := 0.7
	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{Model: "claude-haiku-4-5-20251001", Temperature: &temp})
	require.NoError(t, err)

	require.Len(t, resolver.got, 1)
	assert.Equal(t, "claude-haiku-4-5-20251001", resolver.got[0].Model)
	assert.InDelta(t, 0.7, resolver.got[0].Temperature, 0.0001)
	assert.Equal(t, defaultLLMMaxTokens, resolver.got[0].MaxTokens)
	assert.Equal(t, "claude-haiku-4-5-20251001", res.Model)

	assert.Equal(t, Stages, phaseNames(res.Phases))
	for _, ph := range res.Phases {
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}

	st := res.State
	require.NotNil(t, st.Topic)
	assert.Equal(t, "database", st.Topic.Key)
	assert.Len(t, st.Sources, 2)
	assert.Contains(t, st.AggregatedMarkdown, "### Postgres vs DynamoDB")
	assert.Equal(t, []string{"PostgreSQL", "DynamoDB"}, st.CandidateNames)
	assert.ElementsMatch(t, []string{"PostgreSQL", "DynamoDB"}, st.EntityNames())
	require.NotNil(t, st.Knowledge)
	assert.Len(t, st.Knowledge.Entities, 2)
	require.NotNil(t, st.Recommendation)
	require.NotNil(t, st.Recommendation.PrimaryChoice)
	assert.Equal(t, "PostgreSQL", *st.Recommendation.PrimaryChoice)
	assert.Contains(t, st.RenderedText, "Results for: postgres vs dynamodb")
	assert.Contains(t, st.RenderedText, "Databases & Data Platforms")

	// router, extraction, two entities, knowledge, recommendation
	assert.Equal(t, 6, st.Usage.Calls)

	searches := ev.articleSearches()
	require.Len(t, searches, 3)
	assert.Equal(t, "postgres vs dynamodb database or data platform comparison performance pricing", searches[0])
	assert.Equal(t, "postgres vs dynamodb vs competitors overview", searches[1])
	provider.AssertExpectations(t)
}

func TestRun_FastModeSkipsAggregation(t *testing.T) {
	provider := fullProvider()
	ev := &fakeEvidence{articles: testArticles()}
	p := New(testConfig(), ev, &fakeResolver{provider: provider}, nil, nil)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{FastMode: true, TopicKey: "database"})
	require.NoError(t, err)

	assert.Equal(t, Stages, phaseNames(res.Phases))
	assert.Equal(t, model.PhaseStatusSkipped, res.Phases[4].Status)
	assert.Nil(t, res.State.Knowledge)
	assert.Len(t, ev.articleSearches(), 1)
	require.NotNil(t, res.State.Recommendation)
	provider.AssertNotCalled(t, "Structure", mock.Anything, schemaIs(llm.KnowledgeSchema), mock.Anything)
}

func TestRun_RecommendationSeesKnowledge(t *testing.T) {
	provider := fullProvider()
	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: provider}, nil, nil)

	_, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)

	var prompts []string
	for _, c := range provider.Calls {
		if c.Method == "Structure" && c.Arguments.Get(1).(llm.Request).Schema == llm.RecommendationSchema {
			prompts = append(prompts, c.Arguments.Get(1).(llm.Request).User)
		}
	}
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Findings gathered across all sources")
	assert.Contains(t, prompts[0], "- PostgreSQL: Rich SQL")
}

func TestRun_DefaultConfigMakesOneKnowledgeCall(t *testing.T) {
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.LLM.DefaultModel = "claude-sonnet-4-5-20250929"

	var articles []model.WebPage
	for _, host := range []string{"a", "b", "c", "d", "e", "f"} {
		articles = append(articles, model.WebPage{
			URL:      "https://" + host + ".example/databases",
			Title:    "Databases " + host,
			Markdown: strings.Repeat("PostgreSQL and DynamoDB compared in depth. ", 200),
		})
	}

	provider := fullProvider()
	p := New(cfg, &fakeEvidence{articles: articles}, &fakeResolver{provider: provider}, nil, nil)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)
	require.NotNil(t, res.State.Knowledge)

	var knowledgeCalls int
	for _, c := range provider.Calls {
		if c.Method == "Structure" && c.Arguments.Get(1).(llm.Request).Schema == llm.KnowledgeSchema {
			knowledgeCalls++
		}
	}
	assert.Equal(t, 1, knowledgeCalls)
}

func TestRun_TopicKeyBypassesClassification(t *testing.T) {
	provider := fullProvider()
	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: provider}, nil, nil)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)

	require.NotNil(t, res.State.Topic)
	assert.Equal(t, "database", res.State.Topic.Key)
	assert.Equal(t, "database", res.Phases[0].Metadata["topic"])
	assert.Zero(t, res.Phases[0].TokenUsage.Calls)
	provider.AssertNotCalled(t, "Generate", mock.Anything, mock.MatchedBy(isRouter), mock.Anything)
}

func TestRun_UnknownTopicKeyClassifies(t *testing.T) {
	provider := fullProvider()
	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: provider}, nil, nil)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "gardening"})
	require.NoError(t, err)

	require.NotNil(t, res.State.Topic)
	assert.Equal(t, "database", res.State.Topic.Key)
	assert.Equal(t, 1, res.Phases[0].TokenUsage.Calls)
}

func TestRun_NoEvidence(t *testing.T) {
	provider := &llmtest.Provider{}
	p := New(testConfig(), &fakeEvidence{}, &fakeResolver{provider: provider}, nil, nil)

	res, err := p.Run(context.Background(), "obscure query", RunOptions{TopicKey: "general"})
	require.NoError(t, err)

	st := res.State
	assert.Empty(t, st.Sources)
	assert.Empty(t, st.AggregatedMarkdown)
	assert.Equal(t, []string{"Unknown"}, st.CandidateNames)
	assert.Empty(t, st.Entities)
	assert.Nil(t, st.Knowledge)
	assert.Nil(t, st.Recommendation)
	assert.Contains(t, st.RenderedText, render.NoRecommendation)
	assert.Len(t, res.Phases, len(Stages))
	provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "Structure", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RecordsHistory(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: fullProvider()}, nil, st)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "database", run.TopicKey)
	assert.Equal(t, "claude-sonnet-4-5-20250929", run.Model)
	require.NotNil(t, run.Result)
	assert.Equal(t, "PostgreSQL", run.Result.PrimaryChoice)
	assert.Equal(t, 2, run.Result.SourceCount)
	assert.Len(t, run.Result.Phases, len(Stages))
	assert.Equal(t, res.State.RenderedText, run.Result.Report)
}

func TestRun_StoreFailuresAreNotFatal(t *testing.T) {
	ms := &mockStore{}
	ms.On("CreateRun", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: fullProvider()}, nil, ms)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.NotEmpty(t, res.State.RenderedText)
	ms.AssertNotCalled(t, "CreatePhase", mock.Anything, mock.Anything, mock.Anything)
	ms.AssertNotCalled(t, "CompleteRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PhaseStoreErrors(t *testing.T) {
	ms := &mockStore{}
	ms.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-1"}, nil)
	ms.On("CreatePhase", mock.Anything, "run-1", StageInterpret).Return(nil, errors.New("locked"))
	ms.On("CreatePhase", mock.Anything, "run-1", mock.Anything).Return(&model.RunPhase{ID: "phase"}, nil)
	ms.On("CompletePhase", mock.Anything, "phase", mock.Anything).Return(errors.New("locked"))
	ms.On("CompleteRun", mock.Anything, "run-1", model.RunStatusComplete, mock.Anything).Return(nil)

	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: fullProvider()}, nil, ms)

	res, err := p.Run(context.Background(), "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Len(t, res.Phases, len(Stages))
	ms.AssertNumberOfCalls(t, "CompletePhase", len(Stages)-1)
	ms.AssertExpectations(t)
}

func TestRun_CancelledContextMarksRunFailed(t *testing.T) {
	ms := &mockStore{}
	ms.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-1"}, nil)
	ms.On("CreatePhase", mock.Anything, "run-1", mock.Anything).Return(&model.RunPhase{ID: "phase"}, nil)
	ms.On("CompletePhase", mock.Anything, "phase", mock.Anything).Return(nil)
	ms.On("CompleteRun", mock.Anything, "run-1", model.RunStatusFailed, mock.MatchedBy(func(r *model.RunResult) bool {
		return r.Error == context.Canceled.Error()
	})).Return(nil)

	provider := &llmtest.Provider{}
	p := New(testConfig(), &fakeEvidence{articles: testArticles()}, &fakeResolver{provider: provider}, nil, ms)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, "postgres vs dynamodb", RunOptions{TopicKey: "database"})
	require.NoError(t, err)
	assert.Empty(t, res.State.Entities)
	assert.Nil(t, res.State.Recommendation)
	ms.AssertExpectations(t)
}

func TestPasses(t *testing.T) {
	tests := []struct {
		name   string
		cfg    []model.PassSpec
		topic  *model.Topic
		expect []string
	}{
		{
			name:   "defaults",
			expect: []string{"{q} comparison best alternatives", "{q} vs competitors overview", "{q} pros and cons review"},
		},
		{
			name:   "article query replaces first pass",
			topic:  &model.Topic{ArticleQuery: "{q} job boards"},
			expect: []string{"{q} job boards", "{q} vs competitors overview", "{q} pros and cons review"},
		},
		{
			name:   "configured passes",
			cfg:    []model.PassSpec{{ID: "only", SourceType: model.SourceDocs, Template: "{q} docs"}},
			expect: []string{"{q} docs"},
		},
		{
			name: "topic passes win",
			cfg:  []model.PassSpec{{ID: "only", Template: "{q} docs"}},
			topic: &model.Topic{
				ArticleQuery: "{q} ignored",
				Passes:       []model.PassSpec{{ID: "a", Template: "{q} a"}, {ID: "b", Template: "{q} b"}},
			},
			expect: []string{"{q} a", "{q} b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Search.Passes = tt.cfg
			r := &run{p: New(cfg, nil, nil, nil, nil)}

			var got []string
			for _, ps := range r.passes(tt.topic) {
				got = append(got, ps.Template)
			}
			assert.Equal(t, tt.expect, got)
		})
	}

	assert.Equal(t, "{q} comparison best alternatives", multipass.DefaultPasses()[0].Template, "defaults are not mutated")
}

func TestResearcherCandidateQuery(t *testing.T) {
	ev := &fakeEvidence{articles: testArticles()}
	cfg := testConfig()
	cfg.Research.CandidateQuery = "{name} homepage"
	r := &run{p: New(cfg, ev, nil, nil, nil), provider: fullProvider()}

	r.researcher(&model.Topic{CandidateQuery: "{name} careers page"}).Research(context.Background(), []string{"Acme"})
	r.researcher(nil).Research(context.Background(), []string{"Globex"})

	ev.mu.Lock()
	defer ev.mu.Unlock()
	assert.Equal(t, []string{"Acme careers page", "Globex homepage"}, ev.searches)
}
