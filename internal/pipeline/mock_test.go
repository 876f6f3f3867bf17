package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) CreateRun(ctx context.Context, in store.NewRun) (*model.Run, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return m.Called(ctx, runID, status).Error(0)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	return m.Called(ctx, runID, status, result).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunPhase), args.Error(1)
}

func (m *mockStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	return m.Called(ctx, phaseID, result).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Resolver ---

type fakeResolver struct {
	provider llm.Provider
	err      error

	mu  sync.Mutex
	got []llm.Settings
}

func (f *fakeResolver) Resolve(s llm.Settings) (llm.Provider, error) {
	f.mu.Lock()
	f.got = append(f.got, s)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

// --- Evidence ---

// fakeEvidence serves article searches from articles and answers
// "<name> official site" searches with a single product page.
type fakeEvidence struct {
	articles []model.WebPage

	mu       sync.Mutex
	searches []string
}

func (f *fakeEvidence) Search(_ context.Context, query string, limit int) []model.WebPage {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	if name, ok := strings.CutSuffix(query, " official site"); ok {
		if len(f.articles) == 0 {
			return nil
		}
		return []model.WebPage{{
			URL:      "https://" + strings.ToLower(name) + ".example",
			Title:    name,
			Markdown: name + " is a database used in production.",
		}}
	}

	var out []model.WebPage
	for i, p := range f.articles {
		if len(out) == limit {
			break
		}
		p.Rank = i
		out = append(out, p)
	}
	return out
}

func (f *fakeEvidence) Scrape(context.Context, string) *model.WebPage {
	return nil
}

func (f *fakeEvidence) articleSearches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.searches {
		if !strings.HasSuffix(q, " official site") {
			out = append(out, q)
		}
	}
	return out
}
