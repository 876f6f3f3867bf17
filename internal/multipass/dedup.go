package multipass

import (
	"sort"

	"github.com/sells-group/topic-research/internal/metrics"
	"github.com/sells-group/topic-research/internal/model"
)

type titleKey struct {
	domain string
	title  string
}

// better reports whether a should replace b: lower rank wins, then the
// source type with the higher priority. Full ties keep b, the first seen.
func better(a, b model.WebPage) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.SourceType.Priority() < b.SourceType.Priority()
}

// Dedup removes duplicate pages across passes. Pages are keyed by canonical
// URL; pages without a URL fall back to (domain, normalized title); pages
// with neither are kept as is. The result is sorted stably by rank, then
// source type priority. Dedup is idempotent.
func Dedup(pages []model.WebPage) []model.WebPage {
	out := make([]model.WebPage, 0, len(pages))
	byURL := make(map[string]int)
	byTitle := make(map[titleKey]int)
	var droppedURL, droppedTitle int

	keep := func(idx int, p model.WebPage) {
		if better(p, out[idx]) {
			out[idx] = p
		}
	}

	for _, p := range pages {
		if canon := CanonicalURL(p.URL); canon != "" {
			if idx, ok := byURL[canon]; ok {
				keep(idx, p)
				droppedURL++
				continue
			}
			byURL[canon] = len(out)
			out = append(out, p)
			continue
		}

		key := titleKey{domain: Domain(p.URL), title: NormalizeTitle(p.Title)}
		if key.domain == "" && key.title == "" {
			out = append(out, p)
			continue
		}
		if idx, ok := byTitle[key]; ok {
			keep(idx, p)
			droppedTitle++
			continue
		}
		byTitle[key] = len(out)
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].SourceType.Priority() < out[j].SourceType.Priority()
	})

	metrics.RecordDedupDropped("url", droppedURL)
	metrics.RecordDedupDropped("title", droppedTitle)
	return out
}
