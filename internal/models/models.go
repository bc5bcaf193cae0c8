// Package models holds the records glean keeps in its key-value store.
// JSON field names match the browser extension's storage layout.
package models

// CapturedPage is the text of one loaded tab, stored under a page_<timestamp> key.
type CapturedPage struct {
	Content   string `json:"content"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// EntryType classifies a knowledge-base entry.
type EntryType string

const (
	EntryWebsite EntryType = "website"
	EntryFile    EntryType = "file"
	EntryNote    EntryType = "note"
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryWebsite, EntryFile, EntryNote:
		return true
	}
	return false
}

// KnowledgeBaseEntry is one item of the knowledge base (captured site, file or note).
type KnowledgeBaseEntry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Timestamp int64     `json:"timestamp"`
}

// TweetIdea is a generated or hand-written tweet, or a thread of tweets.
type TweetIdea struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	IsThread  bool     `json:"isThread"`
	IsStarred bool     `json:"isStarred"`
	Thread    []string `json:"thread,omitempty"`
}

// PromptVersion is a named, user-editable prompt template.
type PromptVersion struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// SnippetType labels a category of source content for prompt phrasing.
type SnippetType string

const (
	SnippetWebsite       SnippetType = "Website"
	SnippetArticle       SnippetType = "Article"
	SnippetVideo         SnippetType = "Video"
	SnippetIdea          SnippetType = "Idea"
	SnippetKnowledgebase SnippetType = "Knowledgebase"
)

// SnippetTypeDescription maps a snippet type to the text placed in [snippet_description].
type SnippetTypeDescription struct {
	Type        SnippetType `json:"type"`
	Description string      `json:"description"`
}
