package mailing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPersonalization(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("", `Hi {{ first_name | default: "there" }}!`,
		map[string]interface{}{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada!", out)

	out, err = r.Render("", `Hi {{ first_name | default: "there" }}!`,
		map[string]interface{}{"first_name": ""})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", out)
}

func TestRenderFilters(t *testing.T) {
	r := NewRenderer()
	tests := []struct {
		tpl  string
		vars map[string]interface{}
		want string
	}{
		{`{{ name | capitalize }}`, map[string]interface{}{"name": "aDA"}, "Ada"},
		{`{{ bio | truncate: 10 }}`, map[string]interface{}{"bio": "a very long biography"}, "a very ..."},
		{`{{ email | email_domain }}`, map[string]interface{}{"email": "a@example.com"}, "example.com"},
		{`{{ email | urlencode }}`, map[string]interface{}{"email": "a+b@example.com"}, "a%2Bb%40example.com"},
		{`{{ v | escape }}`, map[string]interface{}{"v": "<b>"}, "&lt;b&gt;"},
	}
	for _, tt := range tests {
		out, err := r.Render("", tt.tpl, tt.vars)
		require.NoError(t, err, tt.tpl)
		assert.Equal(t, tt.want, out, tt.tpl)
	}
}

func TestRenderCache(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("camp-1:html", `Hello {{ first_name }}`,
		map[string]interface{}{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out)

	// Same key, different vars: cached compile, fresh render.
	out, err = r.Render("camp-1:html", `ignored when cached`,
		map[string]interface{}{"first_name": "Grace"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Grace", out)

	r.Invalidate("camp-1:html")
	out, err = r.Render("camp-1:html", `Bye {{ first_name }}`,
		map[string]interface{}{"first_name": "Grace"})
	require.NoError(t, err)
	assert.Equal(t, "Bye Grace", out)
}

func TestParseRejectsBadSyntax(t *testing.T) {
	r := NewRenderer()
	assert.NoError(t, r.Parse(`{% if x %}y{% endif %}`))
	assert.Error(t, r.Parse(`{% if x %}unclosed`))
}

func TestRewriteLinks(t *testing.T) {
	body := `<a href="https://example.com/a">A</a> ` +
		`<a href="mailto:x@example.com">mail</a> ` +
		`<a href="#top">top</a> ` +
		`<a href="http://example.com/b">B</a>`

	out := RewriteLinks(body, func(href string) string {
		return "https://t.example.com/c?u=" + href
	})

	assert.Contains(t, out, `href="https://t.example.com/c?u=https://example.com/a"`)
	assert.Contains(t, out, `href="https://t.example.com/c?u=http://example.com/b"`)
	assert.Contains(t, out, `href="mailto:x@example.com"`)
	assert.Contains(t, out, `href="#top"`)
}

func TestInjectPixel(t *testing.T) {
	out := InjectPixel(`<html><body><p>hi</p></body></html>`, "https://t.example.com/o/abc.png")
	assert.Contains(t, out, `<img src="https://t.example.com/o/abc.png"`)
	// Pixel sits just before the closing body tag.
	assert.Contains(t, out, `style="display:none;"></body>`)

	// No body tag: appended at the end.
	out = InjectPixel(`<p>hi</p>`, "https://t.example.com/o/abc.png")
	assert.True(t, strings.HasPrefix(out, `<p>hi</p><img `))
}

func TestInjectPreheader(t *testing.T) {
	out := InjectPreheader(`<html><body><p>hi</p></body></html>`, "Big savings inside")
	assert.Contains(t, out, `class="preheader"`)
	assert.Contains(t, out, "Big savings inside")

	// Idempotent.
	again := InjectPreheader(out, "Big savings inside")
	assert.Equal(t, out, again)

	// Empty preheader: untouched.
	assert.Equal(t, `<p>hi</p>`, InjectPreheader(`<p>hi</p>`, ""))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world", StripHTML("<p>Hello <b>world</b></p>"))
	assert.Equal(t, "", StripHTML("<br>"))
}
