// Package triage implements the case triage core: parsing free-text case
// reports into structured records, classifying them by confidence, and
// orchestrating the routing pipeline for each inbound event.
package triage

import "strings"

// BotAgentforce marks a case for the agent-forward path regardless of confidence.
const BotAgentforce = "agentforce"

// CaseRecord is the structured form of a case report. It is transient,
// reconstructed per event and never persisted.
type CaseRecord struct {
	CaseNumber string
	Summary    string
	Team       string // normalized (lower-cased) team hint; empty for generic cases
	Confidence int    // 0-100
	Bot        string // "agentforce" forces the agent path

	OriginTS   string // timestamp of the source message
	ThreadTS   string // thread root (== OriginTS for top-level messages)
	OriginUser string
}

// summaryLimit caps summaries synthesized from raw text.
const summaryLimit = 100

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// stripSeparators removes timestamp separators so synthesized case numbers
// like "AF-1714000000123456" stay a single token.
func stripSeparators(ts string) string {
	return strings.NewReplacer(".", "", ":", "").Replace(ts)
}
