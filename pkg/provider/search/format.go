package search

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/voxwire/voxwire/pkg/types"
)

// snippetLimit caps how much of each result's content reaches the LLM prompt.
const snippetLimit = 300

// FormatForLLM renders results as a context block for the LLM prompt.
// Returns the empty string when there are no results.
func FormatForLLM(results []types.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Web Search Results:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "Source: %s\n", r.URL)

		snippet := []rune(r.Snippet)
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		fmt.Fprintf(&b, "%s...\n\n", string(snippet))
	}
	return b.String()
}

// FormatCitation builds a short spoken attribution for the sources used.
// One result cites its domain directly; more than one names the first two.
func FormatCitation(results []types.SearchResult) string {
	switch len(results) {
	case 0:
		return ""
	case 1:
		return "According to " + domainLabel(results[0].URL)
	default:
		return fmt.Sprintf("Based on sources including %s and %s",
			domainLabel(results[0].URL), domainLabel(results[1].URL))
	}
}

// domainLabel reduces a result URL to a speakable source name:
// "https://www.reuters.com/world" becomes "Reuters".
func domainLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "web sources"
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "" {
		return "web sources"
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return titleCase(parts[len(parts)-2])
	}
	return host
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
