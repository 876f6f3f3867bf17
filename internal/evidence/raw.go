package evidence

import (
	"strings"

	"github.com/sells-group/topic-research/internal/model"
)

// RawItem is one search hit before normalization.
type RawItem struct {
	URL         string
	Title       string
	Description string
	Markdown    string
}

// RawSearchResult is the decoded shape of a provider search response. It is
// one of ListResult, KeyedResult or TypedResult.
type RawSearchResult interface {
	isRawSearchResult()
}

// ListResult is a bare array of hits.
type ListResult []RawItem

// KeyedResult is an object whose keys ("web", "data", "news") each hold hits.
type KeyedResult map[string][]RawItem

// TypedResult is a typed response exposing web and data hit lists.
type TypedResult struct {
	Web  []RawItem
	Data []RawItem
}

func (ListResult) isRawSearchResult()  {}
func (KeyedResult) isRawSearchResult() {}
func (TypedResult) isRawSearchResult() {}

// keyOrder fixes the read order of a KeyedResult.
var keyOrder = []string{"web", "data", "news"}

// Normalize converts any search result shape into pages ranked by position
// with 0 as the best rank. Hits without a URL are kept when they carry a
// title or content; fully empty hits are dropped. Unknown shapes yield an
// empty slice.
func Normalize(r RawSearchResult) []model.WebPage {
	switch v := r.(type) {
	case ListResult:
		return normalizeList(v)
	case KeyedResult:
		return normalizeKeyed(v)
	case TypedResult:
		return normalizeTyped(v)
	case *TypedResult:
		if v == nil {
			return []model.WebPage{}
		}
		return normalizeTyped(*v)
	default:
		return []model.WebPage{}
	}
}

func normalizeList(items ListResult) []model.WebPage {
	return toPages(items)
}

func normalizeKeyed(k KeyedResult) []model.WebPage {
	var items []RawItem
	for _, key := range keyOrder {
		items = append(items, k[key]...)
	}
	return toPages(items)
}

func normalizeTyped(t TypedResult) []model.WebPage {
	items := make([]RawItem, 0, len(t.Web)+len(t.Data))
	items = append(items, t.Web...)
	items = append(items, t.Data...)
	return toPages(items)
}

func toPages(items []RawItem) []model.WebPage {
	pages := make([]model.WebPage, 0, len(items))
	for _, it := range items {
		u := strings.TrimSpace(it.URL)
		title := strings.TrimSpace(it.Title)
		desc := strings.TrimSpace(it.Description)
		if u == "" && title == "" && desc == "" && strings.TrimSpace(it.Markdown) == "" {
			continue
		}
		pages = append(pages, model.WebPage{
			URL:         u,
			Title:       title,
			Description: desc,
			Markdown:    it.Markdown,
			SourceType:  model.SourceGeneral,
			Rank:        len(pages),
		})
	}
	return pages
}
