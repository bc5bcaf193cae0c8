// Package prompt renders generation prompts and parses assistant replies into tweet ideas.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hpungsan/glean/internal/models"
)

// Template placeholders.
const (
	PlaceholderDescription = "[snippet_description]"
	PlaceholderSnippet     = "[snippet]"
)

// Reply markers. Matching is case-insensitive.
const (
	ThreadMarker = "thread:"
	TweetMarker  = "tweet:"
)

// DefaultSnippetChars is how much page content a snippet carries.
const DefaultSnippetChars = 500

// Render substitutes the placeholders in tmpl in a single pass;
// substituted text is never scanned for placeholders again.
func Render(tmpl, description, snippet string) string {
	r := strings.NewReplacer(
		PlaceholderDescription, description,
		PlaceholderSnippet, snippet,
	)
	return r.Replace(tmpl)
}

// Snippet formats a page for the [snippet] placeholder, keeping the first
// maxChars runes of content and marking truncation with "...".
func Snippet(title, url, content string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}
	body, cut := models.Truncate(content, maxChars)
	if cut {
		body += "..."
	}
	return fmt.Sprintf("Title: %s\nURL: %s\nContent: %s", title, url, body)
}

// ParseResponse converts an assistant reply into a tweet idea.
// A reply starting with "Thread:" becomes a thread: its first non-blank line is
// the summary tweet and every further non-blank line a thread entry.
// Anything else is a single tweet.
func ParseResponse(reply, id string) models.TweetIdea {
	text := strings.TrimSpace(reply)

	if hasPrefixFold(text, ThreadMarker) {
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		return models.TweetIdea{
			ID:       id,
			Content:  strings.TrimSpace(lines[0][len(ThreadMarker):]),
			IsThread: true,
			Thread:   append([]string{}, lines[1:]...),
		}
	}

	if hasPrefixFold(text, TweetMarker) {
		text = strings.TrimSpace(text[len(TweetMarker):])
	}
	return models.TweetIdea{
		ID:      id,
		Content: text,
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
