package model

// Topic is one entry of the topic catalog. Passes, ArticleQuery and
// CandidateQuery are optional; empty values fall back to the configured
// defaults. ArticleQuery replaces the template of the first default pass.
type Topic struct {
	Key             string     `json:"key" yaml:"key"`
	Label           string     `json:"label" yaml:"label"`
	Description     string     `json:"description,omitempty" yaml:"description"`
	Domain          string     `json:"domain,omitempty" yaml:"domain"`
	EntityKind      string     `json:"entity_kind,omitempty" yaml:"entity_kind"`
	AnalysisSubject string     `json:"analysis_subject,omitempty" yaml:"analysis_subject"`
	RecommenderRole string     `json:"recommender_role,omitempty" yaml:"recommender_role"`
	ArticleQuery    string     `json:"article_query,omitempty" yaml:"article_query"`
	Passes          []PassSpec `json:"passes,omitempty" yaml:"passes"`
	CandidateQuery  string     `json:"candidate_query,omitempty" yaml:"candidate_query"`
	Fields          []string   `json:"fields,omitempty" yaml:"fields"`
}

const (
	defaultEntityKind      = "technology product, tool, service, platform, software, or API"
	defaultAnalysisSubject = "software tools, hosted services, APIs, platforms, and related products"
	defaultRecommenderRole = "senior staff engineer and tooling advisor"
)

// Kind names the kind of entity the topic compares. Safe on a nil topic.
func (t *Topic) Kind() string {
	if t == nil || t.EntityKind == "" {
		return defaultEntityKind
	}
	return t.EntityKind
}

// Subject describes what entity analysis is about. Safe on a nil topic.
func (t *Topic) Subject() string {
	if t == nil || t.AnalysisSubject == "" {
		return defaultAnalysisSubject
	}
	return t.AnalysisSubject
}

// Role is the persona used for the final recommendation. Safe on a nil topic.
func (t *Topic) Role() string {
	if t == nil || t.RecommenderRole == "" {
		return defaultRecommenderRole
	}
	return t.RecommenderRole
}

// PassSpec describes one search pass. Template must contain "{q}".
type PassSpec struct {
	ID         string     `json:"id" yaml:"id" mapstructure:"id"`
	SourceType SourceType `json:"source_type" yaml:"source_type" mapstructure:"source_type"`
	Template   string     `json:"template" yaml:"template" mapstructure:"template"`
}

// PipelineState is threaded through every stage of a research run. Only the
// orchestrator writes to it, by applying the Update each stage returns.
type PipelineState struct {
	Query              string          `json:"query"`
	Topic              *Topic          `json:"topic,omitempty"`
	AggregatedMarkdown string          `json:"aggregated_markdown,omitempty"`
	Sources            []SourceRef     `json:"sources"`
	CandidateNames     []string        `json:"candidate_names"`
	Entities           []EntityRecord  `json:"entities"`
	Knowledge          *KnowledgeGraph `json:"knowledge,omitempty"`
	Recommendation     *Recommendation `json:"recommendation,omitempty"`
	RenderedText       string          `json:"rendered_text"`
	Usage              TokenUsage      `json:"usage"`
}

// Update is the partial result of one stage. Nil fields are left untouched
// when applied; Usage is accumulated.
type Update struct {
	Topic              *Topic
	AggregatedMarkdown *string
	Sources            *[]SourceRef
	CandidateNames     *[]string
	Entities           *[]EntityRecord
	Knowledge          *KnowledgeGraph
	Recommendation     *Recommendation
	RenderedText       *string
	Usage              TokenUsage
}

// Apply merges u into s.
func (s *PipelineState) Apply(u Update) {
	if u.Topic != nil {
		s.Topic = u.Topic
	}
	if u.AggregatedMarkdown != nil {
		s.AggregatedMarkdown = *u.AggregatedMarkdown
	}
	if u.Sources != nil {
		s.Sources = *u.Sources
	}
	if u.CandidateNames != nil {
		s.CandidateNames = *u.CandidateNames
	}
	if u.Entities != nil {
		s.Entities = *u.Entities
	}
	if u.Knowledge != nil {
		s.Knowledge = u.Knowledge
	}
	if u.Recommendation != nil {
		s.Recommendation = u.Recommendation
	}
	if u.RenderedText != nil {
		s.RenderedText = *u.RenderedText
	}
	s.Usage.Add(u.Usage)
}

// EntityNames returns the names of all researched entities in order.
func (s *PipelineState) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		names = append(names, e.Name)
	}
	return names
}

// TokenUsage tracks LLM token consumption and estimated cost.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int     `json:"cache_read_tokens,omitempty"`
	Calls               int     `json:"calls"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Calls += other.Calls
	t.Cost += other.Cost
}
