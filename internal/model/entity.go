package model

// EntityRecord is the structured profile of one researched candidate (a tool,
// product, service or company). Topic-specific attributes live in
// Extensions rather than in per-topic types.
type EntityRecord struct {
	Name                    string            `json:"name"`
	Description             string            `json:"description"`
	Website                 string            `json:"website"`
	Category                string            `json:"category,omitempty"`
	PrimaryUseCase          string            `json:"primary_use_case,omitempty"`
	TargetUsers             []string          `json:"target_users,omitempty"`
	PricingModel            string            `json:"pricing_model"`
	PricingDetails          string            `json:"pricing_details,omitempty"`
	IsOpenSource            *bool             `json:"is_open_source,omitempty"`
	TechStack               []string          `json:"tech_stack"`
	Competitors             []string          `json:"competitors"`
	APIAvailable            *bool             `json:"api_available,omitempty"`
	LanguageSupport         []string          `json:"language_support"`
	IntegrationCapabilities []string          `json:"integration_capabilities"`
	Strengths               []string          `json:"strengths"`
	Limitations             []string          `json:"limitations"`
	IdealFor                []string          `json:"ideal_for"`
	NotSuitedFor            []string          `json:"not_suited_for"`
	Extensions              map[string]string `json:"extensions,omitempty"`
	Branding                *Branding         `json:"branding,omitempty"`

	// Degraded is set when structuring failed and the record only carries
	// identity fields.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedEntity returns the minimal record used when structuring fails.
func DegradedEntity(name, website string) EntityRecord {
	e := IdentityEntity(name, website, "Analysis failed")
	e.Degraded = true
	return e
}

// IdentityEntity returns a record carrying only identity fields. Pricing is
// "Unknown" and every list is empty but non-nil.
func IdentityEntity(name, website, description string) EntityRecord {
	return EntityRecord{
		Name:                    name,
		Website:                 website,
		Description:             description,
		PricingModel:            "Unknown",
		PricingDetails:          "Unknown",
		TechStack:               []string{},
		Competitors:             []string{},
		LanguageSupport:         []string{},
		IntegrationCapabilities: []string{},
		Strengths:               []string{},
		Limitations:             []string{},
		IdealFor:                []string{},
		NotSuitedFor:            []string{},
	}
}

// ApplyAnalysis copies non-empty analysis fields onto e. Name and Website are
// identity fields resolved before analysis and are never overwritten.
func (e *EntityRecord) ApplyAnalysis(a EntityRecord) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setList := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = v
		}
	}

	setStr(&e.Description, a.Description)
	setStr(&e.Category, a.Category)
	setStr(&e.PrimaryUseCase, a.PrimaryUseCase)
	setStr(&e.PricingModel, a.PricingModel)
	setStr(&e.PricingDetails, a.PricingDetails)
	setList(&e.TargetUsers, a.TargetUsers)
	setList(&e.TechStack, a.TechStack)
	setList(&e.Competitors, a.Competitors)
	setList(&e.LanguageSupport, a.LanguageSupport)
	setList(&e.IntegrationCapabilities, a.IntegrationCapabilities)
	setList(&e.Strengths, a.Strengths)
	setList(&e.Limitations, a.Limitations)
	setList(&e.IdealFor, a.IdealFor)
	setList(&e.NotSuitedFor, a.NotSuitedFor)

	if a.IsOpenSource != nil {
		e.IsOpenSource = a.IsOpenSource
	}
	if a.APIAvailable != nil {
		e.APIAvailable = a.APIAvailable
	}
	for k, v := range a.Extensions {
		if v == "" {
			continue
		}
		if e.Extensions == nil {
			e.Extensions = make(map[string]string)
		}
		e.Extensions[k] = v
	}
	e.Degraded = false
}
