package orchestrator

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

func urlParse(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

var leadingDateStamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s*`)

// cleanTitle strips a leading YYYY-MM-DD date stamp some list pages embed
// directly in the anchor text, and collapses embedded newlines.
func cleanTitle(title string) string {
	title = leadingDateStamp.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, "\n", " ")
	return strings.TrimSpace(title)
}

// extractJSONArray finds the first top-level JSON array substring in text,
// tolerating LLM chatter before/after the array (markdown fences, a
// preamble sentence). Returns "" when text holds no '[' ... ']' span, so
// decoding the result fails.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

type summaryResponse struct {
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags"`
	ContentKind string   `json:"content_kind"`
}

// parseSummaryResponse extracts the {summary, tags, content_kind} object
// the Phase 2 prompt requests, tolerating surrounding text. On any shape
// mismatch it returns the raw text as the summary and no tags/kind, since
// a plain-text answer is still a usable (if unstructured) summary.
func parseSummaryResponse(text string) (summary string, tags []string, kind string) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return strings.TrimSpace(text), nil, ""
	}
	var resp summaryResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return strings.TrimSpace(text), nil, ""
	}
	if len(resp.Tags) > 5 {
		resp.Tags = resp.Tags[:5]
	}
	return resp.Summary, resp.Tags, resp.ContentKind
}

// parseIntArray parses a JSON array of non-negative ints out of free text,
// returning ok=false on any shape mismatch (non-array, non-int element).
func parseIntArray(text string) ([]int, bool) {
	var raw []json.Number
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &raw); err != nil {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, n := range raw {
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return nil, false
		}
		out = append(out, i)
	}
	return out, true
}
