package triage

import "strings"

// Outcome is the routing path selected for a case.
type Outcome int

const (
	// OutcomeGeneric presents hand-off buttons with no suggested team.
	OutcomeGeneric Outcome = iota
	// OutcomeAgentForward routes the text to the conversational agent.
	OutcomeAgentForward
	// OutcomeAutoRoute posts directly to the suggested team's channel.
	OutcomeAutoRoute
	// OutcomeOfferHandoff presents hand-off buttons with the suggested team highlighted.
	OutcomeOfferHandoff
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAgentForward:
		return "agent_forward"
	case OutcomeAutoRoute:
		return "auto_route"
	case OutcomeOfferHandoff:
		return "offer_handoff"
	default:
		return "generic"
	}
}

// autoRouteThreshold is the minimum confidence for unattended routing.
const autoRouteThreshold = 90

// Decision is a classification result: the outcome path and the case record
// (parsed or synthesized) that drives it.
type Decision struct {
	Outcome Outcome
	Record  CaseRecord
}

// Classify decides the outcome path for a raw case message. ts is the origin
// timestamp of the message, used to synthesize case numbers.
//
// The agent prefix check runs before parsing is even attempted: prefixed text
// is rarely in the four-field format, and the prefix wins even when it is.
func Classify(text, ts string) Decision {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= len(BotAgentforce) && strings.EqualFold(trimmed[:len(BotAgentforce)], BotAgentforce) {
		return Decision{
			Outcome: OutcomeAgentForward,
			Record: CaseRecord{
				CaseNumber: "AF-" + stripSeparators(ts),
				Summary:    strings.TrimSpace(trimmed[len(BotAgentforce):]),
				Team:       "Support",
				Confidence: 75,
				Bot:        BotAgentforce,
			},
		}
	}

	rec, ok := Parse(text)
	if !ok {
		return Decision{
			Outcome: OutcomeGeneric,
			Record: CaseRecord{
				CaseNumber: "AUTO-" + stripSeparators(ts),
				Summary:    Truncate(trimmed, summaryLimit),
			},
		}
	}

	if strings.EqualFold(rec.Bot, BotAgentforce) {
		return Decision{Outcome: OutcomeAgentForward, Record: rec}
	}
	if rec.Confidence >= autoRouteThreshold {
		return Decision{Outcome: OutcomeAutoRoute, Record: rec}
	}
	return Decision{Outcome: OutcomeOfferHandoff, Record: rec}
}
