package handoff

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/casetriage/internal/platform"
	"github.com/nextlevelbuilder/casetriage/internal/teams"
	"github.com/nextlevelbuilder/casetriage/internal/triage"
)

// Action ID and value vocabulary. The button value encodes
// "{token}_{originTimestamp}": the token before the final underscore-delimited
// timestamp segment identifies the destination. This is the wire contract
// between posting and click handling and must round-trip exactly.
const (
	actionPrefix  = "handoff_"
	agentActionID = "process_agentforce"
	AgentToken    = "agentforce"

	labelPrefix = "Hand-off to "
)

// fixedTeams are the built-in hand-off targets offered on every case.
var fixedTeams = []string{"Support", "Sales", "Engineering"}

// EncodeValue builds a button value from a destination token and the origin
// timestamp of the case message.
func EncodeValue(token, originTS string) string {
	return token + "_" + originTS
}

// DecodeValue splits a button value back into token and origin timestamp.
// Tokens may themselves contain underscores ("iam_team"), so the split is on
// the last underscore.
func DecodeValue(value string) (token, originTS string, ok bool) {
	i := strings.LastIndex(value, "_")
	if i <= 0 || i == len(value)-1 {
		return "", "", false
	}
	return value[:i], value[i+1:], true
}

// offerMessage builds the hand-off offer posted as a thread reply: the
// suggested team first and highlighted, then the fixed teams (deduplicated
// against the suggestion), then the agent option when no bot was specified.
// Generic cases (no parse) get no suggestion and show the raw text instead.
func offerMessage(rec triage.CaseRecord, rawText string, dir *teams.Directory) platform.OutboundMessage {
	msg := platform.OutboundMessage{
		ThreadTS: rec.ThreadTS,
		BlockID:  "handoff_buttons_" + rec.OriginTS,
	}

	suggested := rec.Team
	if suggested != "" {
		msg.Text = fmt.Sprintf("Case #%s from <@%s>", rec.CaseNumber, rec.OriginUser)
		msg.Sections = []string{
			fmt.Sprintf("*Case #%s from <@%s>*", rec.CaseNumber, rec.OriginUser),
			fmt.Sprintf("*Summary:* %s\n*Suggested Team:* %s (Confidence: %d%%)", rec.Summary, suggested, rec.Confidence),
		}
	} else {
		msg.Text = fmt.Sprintf("Case from <@%s>", rec.OriginUser)
		msg.Sections = []string{
			fmt.Sprintf("*Case from <@%s>*:\n%s", rec.OriginUser, rawText),
		}
	}

	var suggestedToken string
	if suggested != "" {
		suggestedToken = teams.ActionToken(suggested)
		// Register the display name so the click handler can recover it
		// without parsing it back out of the label text.
		dir.RegisterDisplayName(suggestedToken, suggested)
		msg.Buttons = append(msg.Buttons, platform.Button{
			ActionID: actionPrefix + suggestedToken,
			Label:    labelPrefix + suggested,
			Value:    EncodeValue(suggestedToken, rec.OriginTS),
			Primary:  true,
		})
	}

	for _, team := range fixedTeams {
		token := teams.ActionToken(team)
		if token == suggestedToken {
			continue
		}
		msg.Buttons = append(msg.Buttons, platform.Button{
			ActionID: actionPrefix + token,
			Label:    labelPrefix + team,
			Value:    EncodeValue(token, rec.OriginTS),
		})
	}

	if rec.Bot == "" {
		msg.Buttons = append(msg.Buttons, platform.Button{
			ActionID: agentActionID,
			Label:    "Process with AgentForce",
			Value:    EncodeValue(AgentToken, rec.OriginTS),
		})
	}

	return msg
}

// teamFromLabel recovers a team name from a button label. Compatibility
// fallback for clicks on offers posted before a restart, when the display
// name registry has been lost.
func teamFromLabel(label string) string {
	if strings.HasPrefix(label, labelPrefix) {
		return strings.TrimPrefix(label, labelPrefix)
	}
	return ""
}
