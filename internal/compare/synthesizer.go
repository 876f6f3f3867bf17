// Package compare synthesizes a recommendation across researched entities.
package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/topic-research/internal/llm"
	"github.com/sells-group/topic-research/internal/model"
)

// Synthesizer produces recommendations through a structuring provider.
type Synthesizer struct {
	provider llm.Provider
	topic    *model.Topic
}

// New creates a Synthesizer. topic may be nil.
func New(provider llm.Provider, topic *model.Topic) *Synthesizer {
	return &Synthesizer{provider: provider, topic: topic}
}

// Synthesize returns nil without calling the provider when there are no
// entities, and nil when structuring fails. kg may be nil. The returned
// primary choice is always nil or the exact name of one of entities.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, entities []model.EntityRecord, kg *model.KnowledgeGraph) (*model.Recommendation, model.TokenUsage) {
	var usage model.TokenUsage
	if len(entities) == 0 {
		zap.L().Debug("compare: no entities, skipping")
		return nil, usage
	}

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		zap.L().Warn("compare: encode entities", zap.Error(err))
		return nil, usage
	}

	var rec model.Recommendation
	usage, err = s.provider.Structure(ctx, llm.Request{
		System: systemPrompt(s.topic),
		User:   userPrompt(query, string(data), knowledgeBlock(kg)),
		Schema: llm.RecommendationSchema,
	}, &rec)
	if err != nil {
		zap.L().Warn("compare: structuring failed", zap.String("query", query), zap.Error(err))
		return nil, usage
	}

	Reconcile(&rec, entities)
	return &rec, usage
}

// Reconcile ties the recommendation to the researched entities. Primary and
// backup names that match an entity ignoring case and spacing are rewritten
// to the entity's exact name; names that match nothing are dropped. Backups
// never repeat the primary choice or each other.
func Reconcile(rec *model.Recommendation, entities []model.EntityRecord) {
	if rec == nil {
		return
	}
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		if k := nameKey(e.Name); k != "" {
			if _, ok := names[k]; !ok {
				names[k] = e.Name
			}
		}
	}

	if rec.PrimaryChoice != nil {
		if exact, ok := names[nameKey(*rec.PrimaryChoice)]; ok {
			rec.PrimaryChoice = &exact
		} else {
			zap.L().Warn("compare: primary choice matches no researched entity, clearing",
				zap.String("primary_choice", *rec.PrimaryChoice))
			rec.PrimaryChoice = nil
		}
	}

	seen := make(map[string]struct{}, len(rec.BackupOptions)+1)
	if rec.PrimaryChoice != nil {
		seen[nameKey(*rec.PrimaryChoice)] = struct{}{}
	}
	backups := make([]string, 0, len(rec.BackupOptions))
	for _, b := range rec.BackupOptions {
		k := nameKey(b)
		exact, ok := names[k]
		if !ok {
			zap.L().Debug("compare: dropping unknown backup option", zap.String("backup", b))
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		backups = append(backups, exact)
	}
	rec.BackupOptions = backups
}

// nameKey folds case and removes all whitespace.
func nameKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func systemPrompt(t *model.Topic) string {
	return fmt.Sprintf(`You are a %s comparing several tools and services to help a user choose the best option for their specific query.
Focus on the user's main job to be done and constraints such as budget, scale, region, self-hosting and licensing.
Favor options whose category and primary use case closely match the query, and down-rank loosely related ones.
If no candidate is a good match, set primary_choice to null and say so in the summary.
Return only a JSON object.`, t.Role())
}

func userPrompt(query, entities, knowledge string) string {
	return fmt.Sprintf(`User Query:
%s

Candidate tools and services (JSON array):
%s
%s
Produce a JSON object with:
- primary_choice: exact name of the single best candidate, or null when none is a strong match.
- backup_options: 1 to 3 alternative candidate names that also fit.
- summary: 2 to 4 plain sentences comparing the main options for this query.
- selection_criteria: the criteria that matter most for this decision.
- tradeoffs: the key tradeoffs between the top options.
- decision_steps: 3 to 7 concrete steps the user can follow to decide.

Ground everything in the candidate data and never name tools that are not listed.`, query, entities, knowledge)
}

// knowledgeBlock renders the cross-source findings as bullet lists. It is
// empty for a nil or empty graph.
func knowledgeBlock(kg *model.KnowledgeGraph) string {
	if kg.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nFindings gathered across all sources:\n")
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		b.WriteString("\n" + title + ":\n")
		for _, l := range lines {
			b.WriteString("- " + l + "\n")
		}
	}

	section("Pros", proCons(kg.Pros))
	section("Cons", proCons(kg.Cons))

	risks := make([]string, 0, len(kg.Risks))
	for _, r := range kg.Risks {
		l := withEntity(r.Entity, r.Text)
		if r.Category != "" || r.Severity != "" {
			l += " (" + strings.TrimSpace(string(r.Category)+" "+string(r.Severity)) + ")"
		}
		risks = append(risks, l)
	}
	section("Risks", risks)

	rels := make([]string, 0, len(kg.Relationships))
	for _, r := range kg.Relationships {
		rels = append(rels, fmt.Sprintf("%s %s %s", r.Source, r.Type, r.Target))
	}
	section("Relationships", rels)
	return b.String()
}

func proCons(items []model.ProConItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, withEntity(it.Entity, it.Text))
	}
	return out
}

func withEntity(entity, text string) string {
	if entity == "" {
		return text
	}
	return entity + ": " + text
}
