package mailing

import (
	"regexp"
	"strings"
)

var hrefRe = regexp.MustCompile(`(?i)href\s*=\s*"([^"]+)"`)

// RewriteLinks replaces every http(s) href in an HTML body using rewrite.
// Non-web links (mailto:, tel:, in-page anchors) pass through untouched,
// as do links rewrite returns unchanged.
func RewriteLinks(htmlBody string, rewrite func(href string) string) string {
	return hrefRe.ReplaceAllStringFunc(htmlBody, func(match string) string {
		sub := hrefRe.FindStringSubmatch(match)
		href := sub[1]
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return match
		}
		return `href="` + rewrite(href) + `"`
	})
}

// InjectPixel appends the open-tracking pixel, placing it just before
// </body> when one exists.
func InjectPixel(htmlBody, pixelURL string) string {
	img := `<img src="` + pixelURL + `" width="1" height="1" alt="" style="display:none;">`
	lower := strings.ToLower(htmlBody)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return htmlBody[:i] + img + htmlBody[i:]
	}
	return htmlBody + img
}

// InjectPreheader inserts hidden preview text right after <body> so inbox
// clients show it next to the subject line. No-op when the body already
// carries a preheader block or there is no preheader configured.
func InjectPreheader(htmlBody, preheader string) string {
	if preheader == "" || strings.Contains(htmlBody, `class="preheader"`) {
		return htmlBody
	}
	span := `<span class="preheader" style="display:none;font-size:1px;color:#ffffff;max-height:0;max-width:0;opacity:0;overflow:hidden;">` +
		preheader + `</span>`
	lower := strings.ToLower(htmlBody)
	if i := strings.Index(lower, "<body"); i >= 0 {
		if end := strings.Index(lower[i:], ">"); end >= 0 {
			at := i + end + 1
			return htmlBody[:at] + span + htmlBody[at:]
		}
	}
	return span + htmlBody
}

var tagRe = regexp.MustCompile(`<[^>]*>`)
var spaceRe = regexp.MustCompile(`\s+`)

// StripHTML reduces an HTML body to plain text for campaigns without an
// explicit plain-text variant.
func StripHTML(htmlBody string) string {
	text := tagRe.ReplaceAllString(htmlBody, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
