package model

// RiskCategory is the closed set of risk classifications.
type RiskCategory string

const (
	RiskTechnical       RiskCategory = "technical"
	RiskIntegration     RiskCategory = "integration"
	RiskSecurity        RiskCategory = "security"
	RiskCompliance      RiskCategory = "compliance"
	RiskMaintainability RiskCategory = "maintainability"
	RiskBusiness        RiskCategory = "business"
	RiskReliability     RiskCategory = "reliability"
	RiskOther           RiskCategory = "other"
)

// AllRiskCategories returns every valid risk category.
func AllRiskCategories() []RiskCategory {
	return []RiskCategory{
		RiskTechnical, RiskIntegration, RiskSecurity, RiskCompliance,
		RiskMaintainability, RiskBusiness, RiskReliability, RiskOther,
	}
}

// ParseRiskCategory maps free text onto the closed set, defaulting to other.
func ParseRiskCategory(s string) RiskCategory {
	for _, c := range AllRiskCategories() {
		if string(c) == s {
			return c
		}
	}
	return RiskOther
}

// Severity is an optional risk severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity returns the matching severity or "" when s is not one.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	}
	return ""
}

// KnowledgeEntity is a node in the knowledge graph.
type KnowledgeEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Relationship is a typed edge between two entities.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ProConItem is an advantage or drawback, optionally tied to an entity.
type ProConItem struct {
	Entity string `json:"entity,omitempty"`
	Aspect string `json:"aspect,omitempty"`
	Text   string `json:"text"`
}

// RiskItem is a categorized risk.
type RiskItem struct {
	Entity   string       `json:"entity,omitempty"`
	Category RiskCategory `json:"category"`
	Text     string       `json:"text"`
	Severity Severity     `json:"severity,omitempty"`
}

// TimelineItem is a dated event. Date may be approximate ("early 2023").
type TimelineItem struct {
	Date   string `json:"date"`
	Event  string `json:"event"`
	Entity string `json:"entity,omitempty"`
	Source string `json:"source,omitempty"`
}

// KnowledgeGraph is the cross-entity synthesis of everything gathered in a run.
type KnowledgeGraph struct {
	Entities      []KnowledgeEntity `json:"entities"`
	Relationships []Relationship    `json:"relationships"`
	Pros          []ProConItem      `json:"pros"`
	Cons          []ProConItem      `json:"cons"`
	Risks         []RiskItem        `json:"risks"`
	Timeline      []TimelineItem    `json:"timeline"`
}

// IsEmpty reports whether the graph carries no items at all.
func (k *KnowledgeGraph) IsEmpty() bool {
	return k == nil || len(k.Entities)+len(k.Relationships)+len(k.Pros)+
		len(k.Cons)+len(k.Risks)+len(k.Timeline) == 0
}

// Recommendation is the synthesized, explainable choice among entities.
// A nil PrimaryChoice means no candidate was a strong match.
type Recommendation struct {
	PrimaryChoice     *string  `json:"primary_choice"`
	BackupOptions     []string `json:"backup_options"`
	Summary           string   `json:"summary"`
	SelectionCriteria []string `json:"selection_criteria"`
	Tradeoffs         []string `json:"tradeoffs"`
	DecisionSteps     []string `json:"decision_steps"`
}
