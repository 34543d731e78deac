// Package mailing renders campaign content into per-recipient email
// bodies: Liquid templating for personalization, link rewriting for click
// tracking, and pixel/preheader injection.
package mailing

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer compiles and renders Liquid templates with a per-campaign
// compile cache.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // cacheKey → *liquid.Template
}

// NewRenderer builds a Renderer with the personalization filters
// registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ first_name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	// {{ subject | truncate: 60 }}
	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// {{ email | urlencode }}
	r.engine.RegisterFilter("urlencode", url.QueryEscape)

	// {{ value | escape }}
	r.engine.RegisterFilter("escape", html.EscapeString)

	// {{ email | email_domain }}
	r.engine.RegisterFilter("email_domain", func(email string) string {
		if at := strings.LastIndex(email, "@"); at >= 0 {
			return email[at+1:]
		}
		return ""
	})
}

// Parse compiles a template string, returning any syntax error. Used to
// validate content before a campaign can be scheduled.
func (r *Renderer) Parse(tpl string) error {
	_, err := r.engine.ParseString(tpl)
	return err
}

// Render renders tpl against vars. A non-empty cacheKey reuses the
// compiled template across recipients of the same campaign.
func (r *Renderer) Render(cacheKey, tpl string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}

	compiled, err := r.engine.ParseString(tpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, compiled)
	}
	return compiled.RenderString(vars)
}

// Invalidate drops a campaign's cached templates after an edit.
func (r *Renderer) Invalidate(cacheKey string) {
	r.cache.Delete(cacheKey)
}
