package research

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/model"
)

// UnknownCandidate is the placeholder used when no candidate can be found.
const UnknownCandidate = "Unknown"

var listMarker = regexp.MustCompile(`^(?:[-*+•]\s*|\d+[.)]\s*)+`)

// ExtractCandidates asks the provider for entity names mentioned in the
// collected markdown. When that yields nothing, the titles of a direct
// search on the query are used instead, and as a last resort the single
// name "Unknown". The result is never empty.
func (r *Researcher) ExtractCandidates(ctx context.Context, query, markdown string) ([]string, model.TokenUsage) {
	var usage model.TokenUsage
	log := zap.L().With(zap.String("query", query))

	if strings.TrimSpace(markdown) != "" {
		reply, u, err := r.provider.Generate(ctx, extractionSystem(r.opts.Topic), extractionUser(r.opts.Topic, query, markdown))
		usage.Add(u)
		if err != nil {
			log.Warn("research: candidate extraction failed", zap.Error(err))
		} else if names := ParseCandidates(reply, r.opts.MaxCandidates); len(names) > 0 {
			log.Info("research: extracted candidates", zap.Strings("names", names))
			return names, usage
		}
	}

	log.Info("research: no extracted names, falling back to direct search")
	pages := r.evidence.Search(ctx, query, r.opts.MaxCandidates)
	titles := make([]string, 0, len(pages))
	for _, p := range pages {
		titles = append(titles, p.Title)
	}
	names := uniqueNames(titles, r.opts.MaxCandidates)
	if len(names) == 0 {
		names = []string{UnknownCandidate}
	}
	return names, usage
}

// ParseCandidates reads one name per line, dropping list markers, blank
// lines and case-insensitive repeats. At most limit names are returned when
// limit is positive.
func ParseCandidates(reply string, limit int) []string {
	lines := strings.Split(reply, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "*_`\"' ")
		names = append(names, line)
	}
	return uniqueNames(names, limit)
}

func uniqueNames(names []string, limit int) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
