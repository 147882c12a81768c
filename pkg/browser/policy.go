package browser

import (
	"fmt"

	"github.com/gobwas/glob"
)

// DefaultDeniedURLs are pages the browser itself refuses to capture.
var DefaultDeniedURLs = []string{
	"chrome://*",
	"chrome-extension://*",
	"edge://*",
	"about:*",
	"devtools://*",
}

// URLPolicy decides which tab URLs may be captured. Denied patterns take
// precedence; with no allowed patterns everything not denied is allowed.
type URLPolicy struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewURLPolicy compiles allow and deny glob patterns. The defaults in
// DefaultDeniedURLs are always denied in addition to denied.
func NewURLPolicy(allowed, denied []string) (*URLPolicy, error) {
	p := &URLPolicy{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		p.allowed = append(p.allowed, g)
	}

	for _, pattern := range append(append([]string(nil), DefaultDeniedURLs...), denied...) {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		p.denied = append(p.denied, g)
	}

	return p, nil
}

// Allows reports whether url may be captured.
func (p *URLPolicy) Allows(url string) bool {
	for _, g := range p.denied {
		if g.Match(url) {
			return false
		}
	}

	if len(p.allowed) == 0 {
		return true
	}

	for _, g := range p.allowed {
		if g.Match(url) {
			return true
		}
	}
	return false
}
