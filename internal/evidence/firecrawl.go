package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/pkg/firecrawl"
)

// FirecrawlProvider wraps a Firecrawl client as the primary provider.
type FirecrawlProvider struct {
	client firecrawl.Client
	calc   *cost.Calculator
	tally  *cost.Tally
}

// NewFirecrawlProvider creates a FirecrawlProvider. calc and tally may be nil.
func NewFirecrawlProvider(client firecrawl.Client, calc *cost.Calculator, tally *cost.Tally) *FirecrawlProvider {
	return &FirecrawlProvider{client: client, calc: calc, tally: tally}
}

// Name implements Provider.
func (f *FirecrawlProvider) Name() string { return "firecrawl" }

// Search runs a search that also scrapes each hit to markdown.
func (f *FirecrawlProvider) Search(ctx context.Context, query string, limit int) (RawSearchResult, error) {
	resp, err := f.client.Search(ctx, firecrawl.SearchRequest{
		Query: query,
		Limit: limit,
		ScrapeOptions: &firecrawl.ScrapeOptions{
			Formats: []string{firecrawl.FormatMarkdown},
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: search %q not successful: %s", query, resp.Warning)
	}

	raw, err := decodeFirecrawlSearch(resp)
	if err != nil {
		return nil, err
	}
	f.charge(len(Normalize(raw)))
	return raw, nil
}

// Scrape fetches one page with branding hints.
func (f *FirecrawlProvider) Scrape(ctx context.Context, targetURL string) (*model.WebPage, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{firecrawl.FormatMarkdown, firecrawl.FormatBranding},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape %s not successful", targetURL)
	}
	f.charge(1)

	if strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, eris.Errorf("firecrawl: scrape %s returned no content", targetURL)
	}

	pageURL := resp.Data.ResolvedURL()
	if pageURL == "" {
		pageURL = targetURL
	}
	return &model.WebPage{
		URL:         pageURL,
		Title:       resp.Data.ResolvedTitle(),
		Description: resp.Data.ResolvedDescription(),
		Markdown:    resp.Data.Markdown,
		SourceType:  model.SourceGeneral,
		Branding:    toBranding(resp.Data.Branding),
	}, nil
}

func (f *FirecrawlProvider) charge(credits int) {
	if f.calc == nil {
		return
	}
	f.tally.Add(f.Name(), f.calc.Firecrawl(credits))
}

func toBranding(b *firecrawl.Branding) *model.Branding {
	if b == nil {
		return nil
	}
	out := &model.Branding{
		LogoURL: b.LogoURL(),
		Colors:  b.Colors,
	}
	if b.Colors != nil {
		out.PrimaryColor = b.Colors["primary"]
	}
	if out.IsZero() {
		return nil
	}
	return out
}

// decodeFirecrawlSearch maps the version-dependent response body onto the
// RawSearchResult variants: a top-level "web" list is typed, a "data" array
// is a list and a "data" object is keyed by source.
func decodeFirecrawlSearch(resp *firecrawl.SearchResponse) (RawSearchResult, error) {
	if isPresent(resp.Web) {
		items, err := decodeHits(resp.Web)
		if err != nil {
			return nil, eris.Wrap(err, "firecrawl: decode web hits")
		}
		return TypedResult{Web: items}, nil
	}

	data := bytes.TrimSpace(resp.Data)
	if !isPresent(data) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		items, err := decodeHits(data)
		if err != nil {
			return nil, eris.Wrap(err, "firecrawl: decode hit list")
		}
		return ListResult(items), nil
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(data, &keyed); err != nil {
			return nil, eris.Wrap(err, "firecrawl: decode keyed hits")
		}
		out := KeyedResult{}
		for _, key := range keyOrder {
			raw, ok := keyed[key]
			if !ok || !isPresent(raw) {
				continue
			}
			items, err := decodeHits(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "firecrawl: decode %s hits", key)
			}
			out[key] = items
		}
		return out, nil
	default:
		return nil, nil
	}
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func decodeHits(raw json.RawMessage) ([]RawItem, error) {
	var hits []firecrawl.PageData
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, err
	}
	items := make([]RawItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, RawItem{
			URL:         h.ResolvedURL(),
			Title:       h.ResolvedTitle(),
			Description: h.ResolvedDescription(),
			Markdown:    h.Markdown,
		})
	}
	return items, nil
}
