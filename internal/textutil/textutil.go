// Package textutil holds the string helpers shared by the normalizers: HTML
// entity decoding, case folding for search, and sanitizing of CMS-authored HTML.
package textutil

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// DecodeEntities decodes numeric and named HTML entities and trims the result,
// e.g. "AT&#038;T" becomes "AT&T".
func DecodeEntities(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s))
}

// Fold returns the case-folded form of s for case-insensitive matching.
func Fold(s string) string {
	// cases.Caser is stateful and not safe for concurrent use.
	return cases.Fold().String(s)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// SanitizeHTML strips scripts, event handlers and other unsafe markup from
// HTML authored in WordPress while keeping ordinary formatting.
func SanitizeHTML(s string) string {
	if s == "" {
		return ""
	}
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
	})
	return policy.Sanitize(s)
}

// PlainText reduces an HTML fragment to its text, one line per block and
// with runs of blank lines collapsed.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapseLines(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteByte('\n')
			case "script", "style":
				if tt == html.StartTagToken {
					z.Next()
				}
			}
		}
	}
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// JoinNonEmpty joins the non-blank parts with sep.
func JoinNonEmpty(parts []string, sep string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
