package slack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
)

// Run starts the Socket Mode connection and pumps events onto the bus until
// ctx is done. Every interaction is acked before any handling is attempted;
// the acknowledgment must happen even when downstream fails.
func (a *Adapter) Run(ctx context.Context) error {
	go a.eventLoop(ctx)

	slog.Info("starting slack socket mode connection")
	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode: %w", err)
	}
	return nil
}

func (a *Adapter) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.handleEvent(evt)
		}
	}
}

func (a *Adapter) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.Info("slack: connecting to socket mode")
	case socketmode.EventTypeConnected:
		slog.Info("slack: connected")
	case socketmode.EventTypeConnectionError:
		slog.Warn("slack: connection error", "data", evt.Data)

	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		a.handleCallbackEvent(apiEvent)

	case socketmode.EventTypeInteractive:
		// Ack first, unconditionally: a missed ack shows the user a
		// spinner forever even when the hand-off itself succeeds.
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		cb, ok := evt.Data.(slack.InteractionCallback)
		if ok {
			a.handleInteraction(cb)
		}

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			if evt.Request != nil {
				a.socket.Ack(*evt.Request)
			}
			return
		}
		a.handleSlashCommand(evt, cmd)
	}
}

func (a *Adapter) handleCallbackEvent(apiEvent slackevents.EventsAPIEvent) {
	ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || ev == nil {
		return
	}

	published := a.bus.PublishInbound(bus.InboundMessage{
		Channel:   ev.Channel,
		UserID:    ev.User,
		Text:      ev.Text,
		Timestamp: ev.TimeStamp,
		ThreadTS:  ev.ThreadTimeStamp,
		Subtype:   ev.SubType,
		BotID:     ev.BotID,
	})
	if !published {
		slog.Warn("inbound queue full, dropping message", "channel", ev.Channel, "ts", ev.TimeStamp)
	}
}

func (a *Adapter) handleInteraction(cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := cb.ActionCallback.BlockActions[0]

	label := ""
	if action.Text.Text != "" {
		label = action.Text.Text
	}

	published := a.bus.PublishClick(bus.ButtonClick{
		ActionID:    action.ActionID,
		Value:       action.Value,
		UserID:      cb.User.ID,
		Channel:     cb.Channel.ID,
		MessageTS:   cb.Message.Timestamp,
		ButtonLabel: label,
	})
	if !published {
		slog.Warn("click queue full, dropping interaction", "action", action.ActionID)
	}
}

// handleSlashCommand answers /support inline via the ack payload.
func (a *Adapter) handleSlashCommand(evt socketmode.Event, cmd slack.SlashCommand) {
	if evt.Request == nil {
		return
	}
	switch cmd.Command {
	case "/support":
		slog.Info("received /support command", "user", cmd.UserID)
		a.socket.Ack(*evt.Request, map[string]any{
			"response_type": "in_channel",
			"text":          fmt.Sprintf("<@%s> How can I help you today?", cmd.UserID),
		})
	default:
		a.socket.Ack(*evt.Request)
	}
}
