package mailer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Inline styles applied to common rich-text tags. Hosted mail clients strip
// <style> blocks, so everything the editor produces has to be inlined.
var tagStyles = map[string]string{
	"p":          "margin:0 0 1em 0;",
	"blockquote": "margin:0 0 1em 0;padding-left:1em;border-left:2px solid #d0d0d0;color:#555;",
	"ul":         "margin:0 0 1em 0;padding-left:1.5em;",
	"ol":         "margin:0 0 1em 0;padding-left:1.5em;",
	"a":          "color:#2563eb;text-decoration:underline;",
}

var (
	hrefPattern     = regexp.MustCompile(`href="(https?://[^"]+)"`)
	bareTagPatterns = buildBareTagPatterns()
)

func buildBareTagPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(tagStyles))
	for tag := range tagStyles {
		// Only bare opening tags; tags that already carry attributes keep them.
		patterns[tag] = regexp.MustCompile(`<` + tag + `>`)
	}
	return patterns
}

// TransformBody is the pure body transformation of the send path: inlines
// styles, rewrites absolute links through the click-tracking redirect, and
// appends the open-tracking pixel for the given email id.
func TransformBody(bodyHTML, emailID, publicBaseURL string) string {
	out := inlineStyles(bodyHTML)
	out = RewriteLinks(out, emailID, publicBaseURL)
	return appendOpenPixel(out, emailID, publicBaseURL)
}

func inlineStyles(html string) string {
	for tag, style := range tagStyles {
		html = bareTagPatterns[tag].ReplaceAllString(html, fmt.Sprintf(`<%s style="%s">`, tag, style))
	}
	if !strings.Contains(html, "font-family") {
		html = `<div style="font-family:Arial,Helvetica,sans-serif;font-size:14px;color:#1f2937;">` + html + `</div>`
	}
	return html
}

// RewriteLinks rewrites every absolute hyperlink to the click-tracking
// redirect. Unsubscribe links and links that already point at the redirect
// are left alone so they never get double-wrapped.
func RewriteLinks(html, emailID, publicBaseURL string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]

		if strings.Contains(target, "/track/click") || strings.Contains(strings.ToLower(target), "unsubscribe") {
			return match
		}

		tracking := fmt.Sprintf("%s/track/click?id=%s&url=%s", publicBaseURL, emailID, url.QueryEscape(target))
		return fmt.Sprintf(`href="%s"`, tracking)
	})
}

func appendOpenPixel(html, emailID, publicBaseURL string) string {
	pixel := fmt.Sprintf(`<img src="%s/track/open/%s" width="1" height="1" style="display:none;" alt="">`, publicBaseURL, emailID)
	if idx := strings.LastIndex(html, "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}
