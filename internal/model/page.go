package model

import "maps"

// SourceType identifies which search pass family produced a page.
type SourceType string

const (
	SourceGeneral SourceType = "general_search"
	SourceDocs    SourceType = "docs_search"
	SourceBlog    SourceType = "blog_search"
)

// Priority orders source types for dedup tie-breaks. Lower wins. Unknown
// types sort after every known type.
func (s SourceType) Priority() int {
	switch s {
	case SourceGeneral:
		return 0
	case SourceDocs:
		return 1
	case SourceBlog:
		return 2
	default:
		return 3
	}
}

// Branding holds optional visual identity hints scraped from a site.
type Branding struct {
	LogoURL      string            `json:"logo_url,omitempty"`
	PrimaryColor string            `json:"primary_color,omitempty"`
	Colors       map[string]string `json:"colors,omitempty"`
}

// IsZero reports whether no branding hint was captured.
func (b *Branding) IsZero() bool {
	return b == nil || (b.LogoURL == "" && b.PrimaryColor == "" && len(b.Colors) == 0)
}

// Clone returns a deep copy of b. It returns nil for a nil b.
func (b *Branding) Clone() *Branding {
	if b == nil {
		return nil
	}
	out := *b
	out.Colors = maps.Clone(b.Colors)
	return &out
}

// WebPage is a single normalized search or scrape result. Values are
// produced by the evidence adapter and treated as immutable afterwards.
type WebPage struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Markdown    string     `json:"markdown,omitempty"`
	Description string     `json:"description,omitempty"`
	SourceType  SourceType `json:"source_type"`
	Rank        int        `json:"rank"`
	PassID      string     `json:"pass_id,omitempty"`
	Branding    *Branding  `json:"branding,omitempty"`
}

// WithPass returns a copy of p tagged with the given pass metadata.
func (p WebPage) WithPass(passID string, st SourceType, rank int) WebPage {
	p.PassID = passID
	p.SourceType = st
	p.Rank = rank
	return p
}

// SourceRef is a lightweight citation kept alongside aggregated markdown.
type SourceRef struct {
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	SourceType SourceType `json:"source_type,omitempty"`
	PassID     string     `json:"pass_id,omitempty"`
}

// Ref builds the citation for p. The title falls back to the URL, then to a
// fixed placeholder.
func (p WebPage) Ref() SourceRef {
	title := p.Title
	if title == "" {
		title = p.URL
	}
	if title == "" {
		title = "Untitled page"
	}
	return SourceRef{
		Title:      title,
		URL:        p.URL,
		SourceType: p.SourceType,
		PassID:     p.PassID,
	}
}

// Clone returns a copy of p that shares no mutable state with it.
func (p WebPage) Clone() WebPage {
	p.Branding = p.Branding.Clone()
	return p
}

// ClonePages deep-copies a page slice. A nil slice stays nil.
func ClonePages(pages []WebPage) []WebPage {
	if pages == nil {
		return nil
	}
	out := make([]WebPage, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}
