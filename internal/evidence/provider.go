package evidence

import (
	"context"

	"github.com/sells-group/topic-research/internal/model"
)

// Provider is one search and scrape backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) (RawSearchResult, error)
	Scrape(ctx context.Context, url string) (*model.WebPage, error)
}
