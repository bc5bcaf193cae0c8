package models

import (
	"strconv"
	"strings"
)

// Store keys. Page captures are namespaced by PagePrefix.
const (
	PagePrefix = "page_"

	KeyKnowledgeBase   = "knowledgeBaseEntries"
	KeyVisitedPages    = "visitedPages"
	KeyTweetIdeas      = "tweetIdeas"
	KeyMonitoring      = "monitoring"
	KeyRetentionDays   = "retentionDays"
	KeyPromptVersions  = "promptVersions"
	KeySelectedVersion = "selectedVersion"
	KeySnippetTypes    = "snippetTypes"
)

// SettingsKeys lists every key owned by the settings layer.
var SettingsKeys = []string{
	KeyMonitoring,
	KeyRetentionDays,
	KeyPromptVersions,
	KeySelectedVersion,
	KeySnippetTypes,
}

// PageKey returns the store key for a capture taken at ts (unix ms).
func PageKey(ts int64) string {
	return PagePrefix + strconv.FormatInt(ts, 10)
}

// IsPageKey reports whether key is in the page capture namespace.
func IsPageKey(key string) bool {
	return strings.HasPrefix(key, PagePrefix)
}

// ParsePageKey returns the millisecond encoded in a page key.
// ok is false unless key is PagePrefix followed by a positive integer.
func ParsePageKey(key string) (ms int64, ok bool) {
	rest, found := strings.CutPrefix(key, PagePrefix)
	if !found {
		return 0, false
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return ms, true
}
