// Package render formats a finished research run as a plain text report.
package render

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/topic-research/internal/model"
)

const (
	// NoRecommendation is printed when no recommendation was produced.
	NoRecommendation = "Insufficient data to make a recommendation."
	// NoItems is printed for every empty section.
	NoItems = "No structured items were returned."

	rule      = "----------------------------------------"
	listLimit = 5
)

// Text renders the report for state. It never fails; empty sections are
// printed with a placeholder line.
func Text(state model.PipelineState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Results for: %s\n", state.Query)
	if state.Topic != nil {
		fmt.Fprintf(&b, "Topic: %s\n", state.Topic.Label)
	}

	section(&b, "Recommendation")
	writeRecommendation(&b, state.Recommendation)

	section(&b, "Entities")
	writeEntities(&b, state.Entities)

	section(&b, "Knowledge")
	writeKnowledge(&b, state.Knowledge)

	section(&b, "Sources")
	writeSources(&b, state.Sources)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, rule)
}

func writeRecommendation(b *strings.Builder, rec *model.Recommendation) {
	if rec == nil {
		b.WriteString(NoRecommendation + "\n")
		return
	}
	if rec.PrimaryChoice != nil {
		fmt.Fprintf(b, "Primary choice: %s\n", *rec.PrimaryChoice)
	} else {
		b.WriteString("Primary choice: none of the candidates is a strong match\n")
	}
	if len(rec.BackupOptions) > 0 {
		fmt.Fprintf(b, "Backup options: %s\n", strings.Join(rec.BackupOptions, ", "))
	}
	if s := strings.TrimSpace(rec.Summary); s != "" {
		fmt.Fprintf(b, "\n%s\n", s)
	}
	bullets(b, "Selection criteria", rec.SelectionCriteria)
	bullets(b, "Tradeoffs", rec.Tradeoffs)
	if len(rec.DecisionSteps) > 0 {
		b.WriteString("\nDecision steps:\n")
		for i, step := range rec.DecisionSteps {
			fmt.Fprintf(b, "  %d. %s\n", i+1, step)
		}
	}
}

func bullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

func writeEntities(b *strings.Builder, entities []model.EntityRecord) {
	if len(entities) == 0 {
		b.WriteString(NoItems + "\n")
		return
	}
	for i, e := range entities {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%d. %s\n", i+1, e.Name)
		field(b, "Website", e.Website)
		field(b, "Description", e.Description)
		field(b, "Category", e.Category)
		field(b, "Pricing", e.PricingModel)
		field(b, "Pricing details", e.PricingDetails)
		if e.IsOpenSource != nil {
			field(b, "Open source", yesNo(*e.IsOpenSource))
		}
		if e.APIAvailable != nil {
			field(b, "API", yesNo(*e.APIAvailable))
		}
		list(b, "Tech stack", e.TechStack)
		list(b, "Language support", e.LanguageSupport)
		list(b, "Integrations", e.IntegrationCapabilities)
		list(b, "Target users", e.TargetUsers)
		list(b, "Competitors", e.Competitors)
		list(b, "Strengths", e.Strengths)
		list(b, "Limitations", e.Limitations)
		list(b, "Ideal for", e.IdealFor)
		list(b, "Not suited for", e.NotSuitedFor)

		keys := make([]string, 0, len(e.Extensions))
		for k := range e.Extensions {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			field(b, humanize(k), e.Extensions[k])
		}
		if e.Degraded {
			b.WriteString("   (analysis unavailable)\n")
		}
	}
}

func writeKnowledge(b *strings.Builder, k *model.KnowledgeGraph) {
	if k.IsEmpty() {
		b.WriteString(NoItems + "\n")
		return
	}

	sub := func(title string, lines []string) {
		fmt.Fprintf(b, "%s:\n", title)
		if len(lines) == 0 {
			fmt.Fprintf(b, "  %s\n", NoItems)
			return
		}
		for _, l := range lines {
			fmt.Fprintf(b, "  - %s\n", l)
		}
	}

	var lines []string
	for _, e := range k.Entities {
		lines = append(lines, joinNonEmpty(" - ", e.Name+typeSuffix(e.Type), e.Description))
	}
	sub("Entities", lines)

	lines = nil
	for _, r := range k.Relationships {
		lines = append(lines, fmt.Sprintf("%s %s %s", r.Source, r.Type, r.Target))
	}
	sub("Relationships", lines)

	sub("Pros", proCons(k.Pros))
	sub("Cons", proCons(k.Cons))

	lines = nil
	for _, r := range k.Risks {
		label := string(r.Category)
		if r.Severity != "" {
			label += ", " + string(r.Severity)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", label, withEntity(r.Entity, r.Text)))
	}
	sub("Risks", lines)

	lines = nil
	for _, t := range k.Timeline {
		date := t.Date
		if date == "" {
			date = "undated"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", date, withEntity(t.Entity, t.Event)))
	}
	sub("Timeline", lines)
}

func proCons(items []model.ProConItem) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		text := it.Text
		if it.Aspect != "" {
			text = it.Aspect + ": " + text
		}
		lines = append(lines, withEntity(it.Entity, text))
	}
	return lines
}

func writeSources(b *strings.Builder, sources []model.SourceRef) {
	if len(sources) == 0 {
		b.WriteString(NoItems + "\n")
		return
	}
	for i, s := range sources {
		if s.URL != "" && s.URL != s.Title {
			fmt.Fprintf(b, "%d. %s (%s)\n", i+1, s.Title, s.URL)
		} else {
			fmt.Fprintf(b, "%d. %s\n", i+1, s.Title)
		}
	}
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "   %s: %s\n", label, value)
}

func list(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	if len(values) > listLimit {
		values = values[:listLimit]
	}
	field(b, label, strings.Join(values, ", "))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func typeSuffix(t string) string {
	if t == "" {
		return ""
	}
	return " (" + t + ")"
}

func withEntity(entity, text string) string {
	if entity == "" {
		return text
	}
	return entity + ": " + text
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
