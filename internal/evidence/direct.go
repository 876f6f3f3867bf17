package evidence

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/topic-research/internal/model"
)

const (
	directMaxBody  = 512 * 1024
	directMinBytes = 100
	directAgent    = "Mozilla/5.0 (compatible; TopicResearch/1.0)"
)

// BlockType describes the kind of anti-bot page a fetch landed on.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DirectProvider fetches pages over plain HTTP and converts them to
// markdown. It needs no API key and does not search, so it only ever
// serves as the last scrape fallback.
type DirectProvider struct {
	client *http.Client
}

// NewDirectProvider creates a DirectProvider. A nil client gets a default
// with bounded dial and TLS timeouts.
func NewDirectProvider(client *http.Client) *DirectProvider {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &DirectProvider{client: client}
}

// Name implements Provider.
func (d *DirectProvider) Name() string { return "direct_http" }

// Search implements Provider. It always returns an empty result.
func (d *DirectProvider) Search(context.Context, string, int) (RawSearchResult, error) {
	return TypedResult{}, nil
}

// Scrape implements Provider. Blocked, failed and near-empty responses are
// errors so the adapter records them against the breaker.
func (d *DirectProvider) Scrape(ctx context.Context, targetURL string) (*model.WebPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: create request")
	}
	req.Header.Set("User-Agent", directAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, directMaxBody))
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("direct_http: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("direct_http: status %d", resp.StatusCode)
	}
	if len(body) < directMinBytes {
		return nil, eris.New("direct_http: empty page")
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: parse html")
	}
	page := &model.WebPage{URL: targetURL, SourceType: model.SourceGeneral}
	var sb strings.Builder
	walkHTML(doc, page, &sb, 0)
	page.Markdown = cleanText(sb.String())
	if page.Markdown == "" {
		return nil, eris.New("direct_http: no text content")
	}
	return page, nil
}

// DetectBlock reports whether a response looks like an anti-bot challenge
// rather than the requested page.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("Cf-Ray") != "" || resp.Header.Get("Cf-Cache-Status") != "" {
			return true, BlockCloudflare
		}
		if strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}
	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	// Small shells that only render with javascript.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}

const maxHTMLDepth = 64

// walkHTML writes the visible text of n to sb as light markdown and fills
// page title and description from the head.
func walkHTML(n *html.Node, page *model.WebPage, sb *strings.Builder, depth int) {
	if depth > maxHTMLDepth {
		return
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "form":
			return
		case "title":
			if page.Title == "" && n.FirstChild != nil {
				page.Title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		case "meta":
			name := strings.ToLower(attr(n, "name"))
			if name == "" {
				name = strings.ToLower(attr(n, "property"))
			}
			switch name {
			case "description", "og:description":
				if page.Description == "" {
					page.Description = strings.TrimSpace(attr(n, "content"))
				}
			case "og:image":
				if page.Branding == nil {
					if src := strings.TrimSpace(attr(n, "content")); src != "" {
						page.Branding = &model.Branding{LogoURL: src}
					}
				}
			}
			return
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n### ")
		case "p", "div", "section", "article", "table", "tr":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, page, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

func cleanText(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
