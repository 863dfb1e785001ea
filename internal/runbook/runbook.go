// Package runbook offers a runbook lookup on messages in team channels and
// executes the fetched runbook with step-by-step progress edited in place.
// Execution is mocked: the step list stands in for a real automation backend.
package runbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/handoff"
	"github.com/nextlevelbuilder/casetriage/internal/platform"
	"github.com/nextlevelbuilder/casetriage/internal/teams"
)

const (
	// ActionID identifies the fetch-runbook button in interaction callbacks.
	ActionID = "fetch_runbook"
	// Token is the destination token encoded in the button value.
	Token = "runbook"
)

// steps is the mock runbook. A real integration would fetch these from the
// automation backend per case.
var steps = []string{
	"1. Check system logs for errors",
	"2. Verify database connection",
	"3. Restart application service",
	"4. Clear cache",
	"5. Run system diagnostics",
}

// Runner posts runbook offers in team channels and executes clicks on them.
type Runner struct {
	gateway   platform.Gateway
	teams     *teams.Directory
	stepDelay time.Duration
}

// New creates a runbook runner over the given team directory.
func New(gateway platform.Gateway, dir *teams.Directory) *Runner {
	return &Runner{
		gateway:   gateway,
		teams:     dir,
		stepDelay: time.Second,
	}
}

// MaybeOffer posts a fetch-runbook button under msg when its channel belongs
// to a registered team. Returns true when an offer was posted.
func (r *Runner) MaybeOffer(ctx context.Context, msg bus.InboundMessage) bool {
	if !r.teams.HasChannel(msg.Channel) {
		return false
	}

	threadTS := msg.ThreadTS
	if threadTS == "" {
		threadTS = msg.Timestamp
	}
	_, err := r.gateway.PostMessage(ctx, msg.Channel, platform.OutboundMessage{
		Text:     "Would you like to fetch a runbook for this case?",
		ThreadTS: threadTS,
		BlockID:  "runbook_buttons_" + msg.Timestamp,
		Buttons: []platform.Button{{
			ActionID: ActionID,
			Label:    "Fetch runbook",
			Value:    handoff.EncodeValue(Token, msg.Timestamp),
		}},
	})
	if err != nil {
		slog.Error("failed to post runbook offer", "channel", msg.Channel, "error", err)
		return false
	}
	slog.Info("runbook offered", "channel", msg.Channel, "origin_ts", msg.Timestamp)
	return true
}

// Execute runs the runbook for a clicked offer: the button message flips to a
// fetching notice, then a progress message in the case thread is edited in
// place as each step runs.
func (r *Runner) Execute(ctx context.Context, click bus.ButtonClick) error {
	_, originTS, ok := handoff.DecodeValue(click.Value)
	if !ok {
		slog.Error("unparseable runbook button value", "value", click.Value)
		r.fail(ctx, click, fmt.Errorf("bad button value %q", click.Value))
		return nil
	}

	// The case message must still exist before anything runs against it.
	msgs, err := r.gateway.FetchHistory(ctx, click.Channel, originTS, true, 1)
	if err != nil || len(msgs) == 0 {
		slog.Warn("could not fetch case message for runbook", "origin_ts", originTS, "error", err)
		r.fail(ctx, click, fmt.Errorf("original case message not found"))
		return nil
	}

	if err := r.gateway.UpdateMessage(ctx, click.Channel, click.MessageTS, platform.OutboundMessage{
		Text:     "Fetching and executing runbook...",
		Sections: []string{":hourglass: Fetching and executing runbook..."},
	}); err != nil {
		slog.Warn("failed to update runbook offer message", "error", err)
	}

	progress, err := r.gateway.PostMessage(ctx, click.Channel, platform.OutboundMessage{
		Text:     "Starting runbook execution...",
		ThreadTS: originTS,
		Sections: []string{":hourglass: Starting runbook execution..."},
	})
	if err != nil {
		slog.Error("failed to post runbook progress message", "error", err)
		r.fail(ctx, click, err)
		return nil
	}

	for i := range steps {
		if err := r.gateway.UpdateMessage(ctx, click.Channel, progress.Timestamp, progressMessage(i)); err != nil {
			slog.Warn("failed to update runbook progress", "step", i+1, "error", err)
		}
		select {
		case <-ctx.Done():
			r.fail(context.WithoutCancel(ctx), click, ctx.Err())
			return nil
		case <-time.After(r.stepDelay):
		}
	}

	done := make([]string, 0, len(steps)+1)
	for _, step := range steps {
		done = append(done, ":white_check_mark: "+step)
	}
	done = append(done, "\n\n:tada: All steps completed successfully!")
	if err := r.gateway.UpdateMessage(ctx, click.Channel, progress.Timestamp, platform.OutboundMessage{
		Text:     "Runbook execution completed",
		Sections: []string{strings.Join(done, "\n")},
	}); err != nil {
		slog.Warn("failed to post runbook completion", "error", err)
	}
	slog.Info("runbook completed", "channel", click.Channel, "origin_ts", originTS, "user", click.UserID)
	return nil
}

// progressMessage renders the step list with the current step highlighted.
func progressMessage(current int) platform.OutboundMessage {
	lines := make([]string, 0, len(steps))
	for i, step := range steps {
		switch {
		case i < current:
			lines = append(lines, ":white_check_mark: "+step)
		case i == current:
			lines = append(lines, "*:load: "+step+"*")
		default:
			lines = append(lines, ":white_circle: "+step)
		}
	}
	return platform.OutboundMessage{
		Text:     fmt.Sprintf("Executing step %d of %d", current+1, len(steps)),
		Sections: []string{strings.Join(lines, "\n")},
	}
}

// fail flips the clicked offer message to an error notice.
func (r *Runner) fail(ctx context.Context, click bus.ButtonClick, cause error) {
	err := r.gateway.UpdateMessage(ctx, click.Channel, click.MessageTS, platform.OutboundMessage{
		Text:     "Error executing runbook",
		Sections: []string{fmt.Sprintf(":x: Error executing runbook: %v", cause)},
	})
	if err != nil {
		slog.Error("failed to report runbook error", "error", err)
	}
}
