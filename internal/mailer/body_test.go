package mailer

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testBaseURL = "https://crm.example.com"

func TestRewriteLinks(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "absolute link is wrapped",
			html:     `<a href="https://docs.example.com/pricing">pricing</a>`,
			expected: `<a href="https://crm.example.com/track/click?id=em-1&url=` + url.QueryEscape("https://docs.example.com/pricing") + `">pricing</a>`,
		},
		{
			name:     "http link is wrapped",
			html:     `<a href="http://example.com/">site</a>`,
			expected: `<a href="https://crm.example.com/track/click?id=em-1&url=` + url.QueryEscape("http://example.com/") + `">site</a>`,
		},
		{
			name:     "already-wrapped link is untouched",
			html:     `<a href="https://crm.example.com/track/click?id=em-1&url=x">go</a>`,
			expected: `<a href="https://crm.example.com/track/click?id=em-1&url=x">go</a>`,
		},
		{
			name:     "unsubscribe link is untouched",
			html:     `<a href="https://example.com/Unsubscribe?u=42">unsubscribe</a>`,
			expected: `<a href="https://example.com/Unsubscribe?u=42">unsubscribe</a>`,
		},
		{
			name:     "relative link is untouched",
			html:     `<a href="/local/page">local</a>`,
			expected: `<a href="/local/page">local</a>`,
		},
		{
			name:     "mailto link is untouched",
			html:     `<a href="mailto:sales@example.com">mail us</a>`,
			expected: `<a href="mailto:sales@example.com">mail us</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RewriteLinks(tt.html, "em-1", testBaseURL))
		})
	}
}

func TestRewriteLinksIsIdempotent(t *testing.T) {
	html := `<a href="https://docs.example.com/pricing">pricing</a>`

	once := RewriteLinks(html, "em-1", testBaseURL)
	twice := RewriteLinks(once, "em-1", testBaseURL)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "/track/click"))
}

func TestTransformBodyAppendsPixel(t *testing.T) {
	out := TransformBody("<p>Hello</p>", "em-9", testBaseURL)

	if !strings.Contains(out, `<img src="https://crm.example.com/track/open/em-9"`) {
		t.Fatalf("expected tracking pixel in body, got: %s", out)
	}
	assert.Equal(t, 1, strings.Count(out, "/track/open/"))
}

func TestTransformBodyPixelInsideBody(t *testing.T) {
	out := TransformBody("<html><body><p>Hi</p></body></html>", "em-9", testBaseURL)

	pixelIdx := strings.Index(out, "/track/open/em-9")
	bodyCloseIdx := strings.Index(out, "</body>")
	if pixelIdx < 0 || bodyCloseIdx < 0 {
		t.Fatalf("expected pixel and closing body tag, got: %s", out)
	}
	if pixelIdx > bodyCloseIdx {
		t.Errorf("pixel should be inserted before </body>, got: %s", out)
	}
}

func TestTransformBodyInlinesStyles(t *testing.T) {
	out := TransformBody("<p>Hello</p><ul><li>one</li></ul>", "em-1", testBaseURL)

	assert.Contains(t, out, `<p style="`)
	assert.Contains(t, out, `<ul style="`)
	assert.Contains(t, out, "font-family")
}

func TestTransformBodyKeepsExistingFontFamily(t *testing.T) {
	html := `<div style="font-family:Georgia,serif;">Hello</div>`
	out := TransformBody(html, "em-1", testBaseURL)

	assert.Equal(t, 1, strings.Count(out, "font-family"))
}
