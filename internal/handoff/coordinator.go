// Package handoff executes the case hand-off protocol: offering targets as
// buttons, claiming a case exactly once under concurrent clicks, forwarding
// the case content to the destination team channel, and keeping the
// originating thread's displayed status consistent with reality.
package handoff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/platform"
	"github.com/nextlevelbuilder/casetriage/internal/teams"
	"github.com/nextlevelbuilder/casetriage/internal/triage"
)

// Coordinator drives the hand-off state machine. One instance serves all
// cases; per-case state is keyed by origin timestamp.
type Coordinator struct {
	gateway       platform.Gateway
	teams         *teams.Directory
	intakeChannel string
	states        *stateTable
}

// New creates a hand-off coordinator for the given intake channel.
func New(gateway platform.Gateway, dir *teams.Directory, intakeChannel string) *Coordinator {
	return &Coordinator{
		gateway:       gateway,
		teams:         dir,
		intakeChannel: intakeChannel,
		states:        newStateTable(),
	}
}

// State exposes the recorded state for a case (tests and diagnostics).
func (c *Coordinator) State(originTS string) State {
	return c.states.get(originTS)
}

// Offer posts the hand-off button offer as a thread reply and moves the case
// to Offered. For generic cases rec.Team is empty and rawText is shown.
func (c *Coordinator) Offer(ctx context.Context, rec triage.CaseRecord, rawText string) error {
	msg := offerMessage(rec, rawText, c.teams)
	if _, err := c.gateway.PostMessage(ctx, c.intakeChannel, msg); err != nil {
		return fmt.Errorf("post handoff offer: %w", err)
	}
	c.states.set(rec.OriginTS, StateOffered)
	slog.Info("handoff offered", "case", rec.CaseNumber, "suggested_team", rec.Team, "origin_ts", rec.OriginTS)
	return nil
}

// AutoRoute bypasses the offer: the case goes straight to the suggested
// team's channel, lazily provisioning it when unknown. On provisioning
// failure the case degrades to a manual offer instead of failing.
func (c *Coordinator) AutoRoute(ctx context.Context, rec triage.CaseRecord) error {
	if _, ok := c.states.claim(rec.OriginTS); !ok {
		slog.Info("auto-route skipped, case already claimed", "origin_ts", rec.OriginTS)
		return nil
	}

	target, err := c.teams.EnsureChannel(ctx, rec.Team)
	if err != nil {
		slog.Warn("auto-route channel unavailable, degrading to manual handoff",
			"team", rec.Team, "error", err)
		c.postThread(ctx, rec.ThreadTS,
			fmt.Sprintf("⚠️ Could not reach a channel for team *%s*. Please hand off manually.", rec.Team))
		if offerErr := c.Offer(ctx, rec, ""); offerErr != nil {
			// The offer did not go out, so the claim must not stick;
			// Failed keeps the case claimable.
			c.states.set(rec.OriginTS, StateFailed)
			return offerErr
		}
		return nil
	}

	_, err = c.gateway.PostMessage(ctx, target, platform.OutboundMessage{
		Text: fmt.Sprintf("*Auto-routed Case #%s from <@%s>*\n\n*Team:* %s\n*Confidence:* %d%%\n*Summary:* %s",
			rec.CaseNumber, rec.OriginUser, rec.Team, rec.Confidence, rec.Summary),
	})
	if err != nil {
		c.states.set(rec.OriginTS, StateFailed)
		c.postThread(ctx, rec.ThreadTS, "⚠️ Failed to route the case. Please hand off manually.")
		return fmt.Errorf("post auto-routed case: %w", err)
	}
	c.states.set(rec.OriginTS, StateHandedOff)

	c.postThread(ctx, rec.ThreadTS,
		fmt.Sprintf("✅ This case has been automatically routed to *%s* with %d%% confidence.", rec.Team, rec.Confidence))
	slog.Info("case auto-routed", "case", rec.CaseNumber, "team", rec.Team, "channel", target)
	return nil
}

// HandleClick executes a hand-off requested via button click. The platform
// adapter has already acknowledged the interaction; everything here is
// best-effort and reported in-thread on failure. A click on a case that is
// already Processing or HandedOff is a no-op, never a second destination post.
func (c *Coordinator) HandleClick(ctx context.Context, click bus.ButtonClick) error {
	token, originTS, ok := DecodeValue(click.Value)
	if !ok {
		slog.Error("unparseable button value", "action", click.ActionID, "value", click.Value)
		// The origin timestamp is unrecoverable here, so the warning
		// cannot be threaded on the case; post it top-level.
		c.postThread(ctx, "", "⚠️ Failed to hand off the case. Could not determine the target team.")
		return nil
	}

	teamName := c.resolveTeamName(token, click.ButtonLabel)
	if teamName == "" {
		slog.Error("no team resolvable for handoff", "action", click.ActionID, "token", token)
		c.postThread(ctx, originTS, "⚠️ Failed to hand off the case. Could not determine the target team.")
		return nil
	}

	prev, claimed := c.states.claim(originTS)
	if !claimed {
		slog.Info("duplicate handoff click ignored", "origin_ts", originTS, "state", prev.String(), "user", click.UserID)
		return nil
	}

	target, err := c.teams.EnsureChannel(ctx, teamName)
	if err != nil {
		// Target unresolvable: report and release the claim. Failed is
		// claimable, so the offer message stays eligible for another attempt.
		c.states.set(originTS, StateFailed)
		slog.Warn("handoff target unavailable", "team", teamName, "error", err)
		c.postThread(ctx, originTS,
			fmt.Sprintf("⚠️ Failed to hand off to team '%s'. The channel could not be created or found.", teamName))
		return nil
	}

	slog.Info("processing handoff", "team", teamName, "channel", target, "origin_ts", originTS, "user", click.UserID)

	// Hourglass first: the displayed state mirrors the claim.
	hourglass := platform.OutboundMessage{
		Text: fmt.Sprintf(":hourglass: Processing hand-off to %s team...", teamName),
	}
	if err := c.gateway.UpdateMessage(ctx, click.Channel, click.MessageTS, hourglass); err != nil {
		slog.Warn("failed to update handoff message to processing", "error", err)
	}

	// Re-fetch the case content; nothing durable is kept about the case.
	original, err := c.fetchOriginal(ctx, originTS)
	if err != nil {
		c.states.set(originTS, StateFailed)
		slog.Warn("could not fetch original case message", "origin_ts", originTS, "error", err)
		c.postThread(ctx, originTS, "⚠️ Failed to hand off the case. The original message could not be read.")
		return nil
	}

	_, err = c.gateway.PostMessage(ctx, target, platform.OutboundMessage{
		Text: fmt.Sprintf("*Case handed off by <@%s> to %s team*\n\n%s", click.UserID, teamName, original.Text),
	})
	if err != nil {
		c.states.set(originTS, StateFailed)
		slog.Warn("failed to post case to destination", "channel", target, "error", err)
		c.postThread(ctx, originTS, fmt.Sprintf("⚠️ Failed to hand off the case to *%s*.", teamName))
		return nil
	}

	// The destination post is the exactly-once side effect; the case is
	// handed off from here on regardless of how the UI updates fare.
	c.states.set(originTS, StateHandedOff)

	done := platform.OutboundMessage{
		Text: fmt.Sprintf("Case has been handed off to %s team by <@%s>", teamName, click.UserID),
		Sections: []string{
			fmt.Sprintf(":white_check_mark: Case has been handed off to *%s* team by <@%s>", teamName, click.UserID),
		},
	}
	if err := c.gateway.UpdateMessage(ctx, click.Channel, click.MessageTS, done); err != nil {
		slog.Warn("failed to update handoff message to done", "error", err)
	}

	c.postThread(ctx, originTS,
		fmt.Sprintf("This case has been handed off to the *%s* team by <@%s>.", teamName, click.UserID))

	slog.Info("handoff completed", "team", teamName, "origin_ts", originTS, "user", click.UserID)
	return nil
}

// resolveTeamName maps a button token to a team display name. The directory's
// display registry is the source of truth; the label prefix parse is a
// fallback for offers that predate the current process.
func (c *Coordinator) resolveTeamName(token, label string) string {
	if name, ok := c.teams.DisplayName(token); ok {
		return name
	}
	return teamFromLabel(label)
}

// fetchOriginal reads the case message back from intake channel history.
func (c *Coordinator) fetchOriginal(ctx context.Context, originTS string) (platform.Message, error) {
	msgs, err := c.gateway.FetchHistory(ctx, c.intakeChannel, originTS, true, 1)
	if err != nil {
		return platform.Message{}, err
	}
	if len(msgs) == 0 {
		return platform.Message{}, fmt.Errorf("no message at ts %s", originTS)
	}
	return msgs[0], nil
}

// postThread posts a best-effort reply in the case thread (top-level when
// threadTS is empty). Failures are logged, never propagated: the thread
// message is itself how errors surface.
func (c *Coordinator) postThread(ctx context.Context, threadTS, text string) {
	_, err := c.gateway.PostMessage(ctx, c.intakeChannel, platform.OutboundMessage{
		Text:     text,
		ThreadTS: threadTS,
	})
	if err != nil {
		slog.Error("failed to post thread reply", "thread_ts", threadTS, "error", err)
	}
}
