package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, status int, header http.Header, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range header {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDirectProvider_CleanHTML(t *testing.T) {
	url := serveHTML(t, http.StatusOK, nil, `<html><head><title>Acme DB</title>
<meta name="description" content="A fast document store">
<meta property="og:image" content="https://acme.example/logo.png">
<style>body{color:red}</style></head>
<body><nav>Menu</nav><h1>Welcome</h1><p>Acme DB stores documents &amp; indexes them.</p>
<script>alert('hi')</script><footer>Copyright 2024</footer></body></html>`)

	page, err := NewDirectProvider(nil).Scrape(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, url, page.URL)
	assert.Equal(t, "Acme DB", page.Title)
	assert.Equal(t, "A fast document store", page.Description)
	require.NotNil(t, page.Branding)
	assert.Equal(t, "https://acme.example/logo.png", page.Branding.LogoURL)
	assert.Contains(t, page.Markdown, "# Welcome")
	assert.Contains(t, page.Markdown, "documents & indexes")
	assert.NotContains(t, page.Markdown, "Menu")
	assert.NotContains(t, page.Markdown, "Copyright 2024")
	assert.NotContains(t, page.Markdown, "alert")
	assert.NotContains(t, page.Markdown, "color:red")
}

func TestDirectProvider_Failures(t *testing.T) {
	filler := "<p>Not found page with enough content to pass the minimum size check for a page.</p>"

	tests := []struct {
		name    string
		status  int
		header  http.Header
		body    string
		wantErr string
	}{
		{
			name:    "cloudflare",
			status:  http.StatusForbidden,
			header:  http.Header{"Cf-Ray": {"abc123"}},
			body:    `<html><body>Access denied</body></html>`,
			wantErr: "blocked (cloudflare)",
		},
		{
			name:    "captcha",
			status:  http.StatusOK,
			body:    `<html><body>Please complete the reCAPTCHA to continue</body></html>`,
			wantErr: "blocked (captcha)",
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    "<html><body>" + filler + "</body></html>",
			wantErr: "status 404",
		},
		{
			name:    "empty",
			status:  http.StatusOK,
			body:    `<html></html>`,
			wantErr: "empty page",
		},
		{
			name:    "no text",
			status:  http.StatusOK,
			body:    `<html><head><script>var x = "` + filler + `";</script></head><body></body></html>`,
			wantErr: "no text content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := serveHTML(t, tt.status, tt.header, tt.body)
			_, err := NewDirectProvider(nil).Scrape(context.Background(), url)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDirectProvider_SearchIsEmpty(t *testing.T) {
	raw, err := NewDirectProvider(nil).Search(context.Background(), "postgres", 5)
	require.NoError(t, err)
	assert.Empty(t, Normalize(raw))
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		body string
		want BlockType
	}{
		{"nil response", nil, "", BlockNone},
		{"cloudflare 403 header", &http.Response{StatusCode: 403, Header: http.Header{"Cf-Ray": {"abc"}}}, "", BlockCloudflare},
		{"cloudflare 503 server", &http.Response{StatusCode: 503, Header: http.Header{"Server": {"cloudflare"}}}, "", BlockCloudflare},
		{"challenge page", &http.Response{StatusCode: 200, Header: http.Header{}}, "Checking your browser before accessing", BlockCloudflare},
		{"captcha", &http.Response{StatusCode: 200, Header: http.Header{}}, "solve the hCaptcha", BlockCaptcha},
		{"js shell", &http.Response{StatusCode: 200, Header: http.Header{}}, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"meta refresh", &http.Response{StatusCode: 200, Header: http.Header{}}, `<meta http-equiv="refresh" content="0;url=/app">`, BlockJSShell},
		{"clean", &http.Response{StatusCode: 200, Header: http.Header{}}, "<html><body>Welcome to Acme.</body></html>", BlockNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, kind := DetectBlock(tt.resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  Hello     world  \n\n\n\n\n  foo\t\tbar ")
	assert.Equal(t, "Hello world\n\nfoo bar", got)
}
