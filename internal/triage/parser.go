package triage

import (
	"regexp"
	"strconv"
	"strings"
)

// Label grammar for structured case reports:
//
//	Case number: 12312
//	Summary: user a is having issues
//	Team: IAM team
//	Confidence: 80%
var (
	caseNumberRe = regexp.MustCompile(`(?m)^Case number:[ \t]*(.*)$`)
	summaryRe    = regexp.MustCompile(`(?m)^Summary:[ \t]*(.*)$`)
	teamRe       = regexp.MustCompile(`(?m)^Team:[ \t]*(.*)$`)
	confidenceRe = regexp.MustCompile(`Confidence:\s*(\d+)%`)
	botRe        = regexp.MustCompile(`(?m)^Bot:[ \t]*(.*)$`)
)

// Parse extracts structured case fields from raw text. It returns ok=false
// unless all four labeled fields are present; a missing field is the only
// failure signal, malformed input never produces an error.
func Parse(text string) (CaseRecord, bool) {
	var rec CaseRecord
	var haveNumber, haveSummary, haveTeam, haveConfidence bool

	if m := caseNumberRe.FindStringSubmatch(text); m != nil {
		rec.CaseNumber = strings.TrimSpace(m[1])
		haveNumber = rec.CaseNumber != ""
	}
	if m := summaryRe.FindStringSubmatch(text); m != nil {
		rec.Summary = strings.TrimSpace(m[1])
		haveSummary = rec.Summary != ""
	}
	if m := teamRe.FindStringSubmatch(text); m != nil {
		rec.Team = strings.ToLower(strings.TrimSpace(m[1]))
		haveTeam = rec.Team != ""
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			rec.Confidence = n
			haveConfidence = true
		}
	}

	// Optional: an explicit bot flag forces the agent path downstream.
	if m := botRe.FindStringSubmatch(text); m != nil {
		rec.Bot = strings.ToLower(strings.TrimSpace(m[1]))
	}

	if !haveNumber || !haveSummary || !haveTeam || !haveConfidence {
		return CaseRecord{}, false
	}
	return rec, true
}
