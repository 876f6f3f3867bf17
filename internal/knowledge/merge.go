package knowledge

import (
	"strings"

	"github.com/sells-group/topic-research/internal/model"
)

// Normalize trims every item, drops items missing their required text and
// coerces risk categories and severities onto their closed sets. Nil slices
// become empty ones.
func Normalize(g *model.KnowledgeGraph) *model.KnowledgeGraph {
	if g == nil {
		return nil
	}
	out := &model.KnowledgeGraph{
		Entities:      make([]model.KnowledgeEntity, 0, len(g.Entities)),
		Relationships: make([]model.Relationship, 0, len(g.Relationships)),
		Pros:          make([]model.ProConItem, 0, len(g.Pros)),
		Cons:          make([]model.ProConItem, 0, len(g.Cons)),
		Risks:         make([]model.RiskItem, 0, len(g.Risks)),
		Timeline:      make([]model.TimelineItem, 0, len(g.Timeline)),
	}
	for _, e := range g.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name != "" {
			out.Entities = append(out.Entities, e)
		}
	}
	for _, r := range g.Relationships {
		r.Source, r.Target, r.Type = strings.TrimSpace(r.Source), strings.TrimSpace(r.Target), strings.TrimSpace(r.Type)
		if r.Source != "" && r.Target != "" && r.Type != "" {
			out.Relationships = append(out.Relationships, r)
		}
	}
	out.Pros = normalizeProCons(g.Pros)
	out.Cons = normalizeProCons(g.Cons)
	for _, r := range g.Risks {
		r.Text = strings.TrimSpace(r.Text)
		if r.Text == "" {
			continue
		}
		r.Category = model.ParseRiskCategory(fold(string(r.Category)))
		r.Severity = model.ParseSeverity(fold(string(r.Severity)))
		out.Risks = append(out.Risks, r)
	}
	for _, t := range g.Timeline {
		t.Event = strings.TrimSpace(t.Event)
		if t.Event != "" {
			out.Timeline = append(out.Timeline, t)
		}
	}
	return out
}

func normalizeProCons(items []model.ProConItem) []model.ProConItem {
	out := make([]model.ProConItem, 0, len(items))
	for _, it := range items {
		it.Text = strings.TrimSpace(it.Text)
		if it.Text != "" {
			out = append(out, it)
		}
	}
	return out
}

// Merge combines two graphs, keeping the first occurrence of every item.
// Entities match by case-folded name, relationships by (source, target,
// type), pros, cons and risks by entity and normalized text, and timeline
// events by date and normalized event. A nil argument yields the other.
func Merge(a, b *model.KnowledgeGraph) *model.KnowledgeGraph {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	out := &model.KnowledgeGraph{
		Entities: make([]model.KnowledgeEntity, 0, len(a.Entities)+len(b.Entities)),
	}

	entityIdx := make(map[string]int)
	for _, e := range append(append([]model.KnowledgeEntity{}, a.Entities...), b.Entities...) {
		key := fold(e.Name)
		if i, ok := entityIdx[key]; ok {
			// Fill gaps left by the first occurrence.
			if out.Entities[i].Type == "" {
				out.Entities[i].Type = e.Type
			}
			if out.Entities[i].Description == "" {
				out.Entities[i].Description = e.Description
			}
			continue
		}
		entityIdx[key] = len(out.Entities)
		out.Entities = append(out.Entities, e)
	}

	out.Relationships = mergeBy(a.Relationships, b.Relationships, func(r model.Relationship) string {
		return fold(r.Source) + "\x00" + fold(r.Target) + "\x00" + fold(r.Type)
	})
	proConKey := func(p model.ProConItem) string { return fold(p.Entity) + "\x00" + normText(p.Text) }
	out.Pros = mergeBy(a.Pros, b.Pros, proConKey)
	out.Cons = mergeBy(a.Cons, b.Cons, proConKey)
	out.Risks = mergeBy(a.Risks, b.Risks, func(r model.RiskItem) string {
		return fold(r.Entity) + "\x00" + normText(r.Text)
	})
	out.Timeline = mergeBy(a.Timeline, b.Timeline, func(t model.TimelineItem) string {
		return fold(t.Date) + "\x00" + normText(t.Event)
	})
	return out
}

func mergeBy[T any](a, b []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]T, 0, len(a)+len(b))
	for _, list := range [][]T{a, b} {
		for _, it := range list {
			k := key(it)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normText folds case, collapses whitespace and drops trailing punctuation.
func normText(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRight(s, ".;!")
}
