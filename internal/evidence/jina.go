package evidence

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/pkg/jina"
)

// JinaProvider wraps the Jina reader and search endpoints as the fallback
// provider.
type JinaProvider struct {
	client jina.Client
	calc   *cost.Calculator
	tally  *cost.Tally
}

// NewJinaProvider creates a JinaProvider. calc and tally may be nil.
func NewJinaProvider(client jina.Client, calc *cost.Calculator, tally *cost.Tally) *JinaProvider {
	return &JinaProvider{client: client, calc: calc, tally: tally}
}

// Name implements Provider.
func (j *JinaProvider) Name() string { return "jina" }

// Search implements Provider.
func (j *JinaProvider) Search(ctx context.Context, query string, limit int) (RawSearchResult, error) {
	resp, err := j.client.Search(ctx, query, jina.WithCount(limit))
	if err != nil {
		return nil, err
	}
	items := make([]RawItem, 0, len(resp.Data))
	for _, r := range resp.Data {
		items = append(items, RawItem{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			Markdown:    r.Content,
		})
	}
	return TypedResult{Data: items}, nil
}

// Scrape reads one page through the reader and rejects blocked or empty
// responses.
func (j *JinaProvider) Scrape(ctx context.Context, targetURL string) (*model.WebPage, error) {
	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	if j.calc != nil {
		j.tally.Add(j.Name(), j.calc.Jina(resp.Data.Usage.Tokens))
	}
	if needsFallback(resp) {
		return nil, eris.Errorf("jina: unusable content for %s", targetURL)
	}

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	page := &model.WebPage{
		URL:         pageURL,
		Title:       resp.Data.Title,
		Description: resp.Data.Description,
		Markdown:    resp.Data.Content,
		SourceType:  model.SourceGeneral,
	}
	if logo := logoFromImages(resp.Data.Images); logo != "" {
		page.Branding = &model.Branding{LogoURL: logo}
	}
	return page, nil
}

// needsFallback reports whether a reader response is empty or a bot
// challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range []string{
		"checking your browser",
		"enable javascript",
		"please enable cookies",
		"access denied",
		"just a moment",
		"attention required",
	} {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}

// logoFromImages picks the first image whose caption mentions a logo.
// Captions are sorted so the choice is stable.
func logoFromImages(images map[string]string) string {
	keys := make([]string, 0, len(images))
	for k := range images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "logo") {
			return images[k]
		}
	}
	return ""
}
