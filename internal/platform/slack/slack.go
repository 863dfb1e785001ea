// Package slack connects the triage bot to Slack via Socket Mode. It
// implements platform.Gateway over the Web API and feeds inbound events
// (intake messages, button clicks, slash commands) onto the message bus.
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/config"
	"github.com/nextlevelbuilder/casetriage/internal/platform"
)

// Adapter wraps the Slack Web API client and the Socket Mode connection.
// Web API calls are throttled by a shared limiter to stay under Slack's
// per-method rate tiers.
type Adapter struct {
	api    *slack.Client
	socket *socketmode.Client
	bus    *bus.MessageBus
	limit  *rate.Limiter
}

// New creates a Slack adapter from config.
func New(cfg config.SlackConfig, msgBus *bus.MessageBus) (*Adapter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack app token is required for Socket Mode")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("slack app token must start with xapp-")
	}

	api := slack.New(
		cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(api, socketmode.OptionDebug(cfg.Debug))

	return &Adapter{
		api:    api,
		socket: socket,
		bus:    msgBus,
		// Tier 3 methods allow ~50 req/min; keep headroom for bursts.
		limit: rate.NewLimiter(rate.Limit(0.8), 5),
	}, nil
}

// PostMessage implements platform.Gateway.
func (a *Adapter) PostMessage(ctx context.Context, channelID string, msg platform.OutboundMessage) (platform.MessageRef, error) {
	if err := a.limit.Wait(ctx); err != nil {
		return platform.MessageRef{}, err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTS))
	}
	if blocks := renderBlocks(msg); len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	channel, ts, err := a.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return platform.MessageRef{}, fmt.Errorf("post message to %s: %w", channelID, err)
	}
	return platform.MessageRef{Channel: channel, Timestamp: ts}, nil
}

// UpdateMessage implements platform.Gateway.
func (a *Adapter) UpdateMessage(ctx context.Context, channelID, ts string, msg platform.OutboundMessage) error {
	if err := a.limit.Wait(ctx); err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	// Always replace blocks: an update without blocks must clear the old
	// buttons, not leave them clickable next to the new text.
	opts = append(opts, slack.MsgOptionBlocks(renderBlocks(msg)...))

	if _, _, _, err := a.api.UpdateMessageContext(ctx, channelID, ts, opts...); err != nil {
		return fmt.Errorf("update message %s in %s: %w", ts, channelID, err)
	}
	return nil
}

// FetchHistory implements platform.Gateway.
func (a *Adapter) FetchHistory(ctx context.Context, channelID, latest string, inclusive bool, limit int) ([]platform.Message, error) {
	if err := a.limit.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    latest,
		Inclusive: inclusive,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", channelID, err)
	}

	msgs := make([]platform.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, platform.Message{
			UserID:    m.User,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}
	return msgs, nil
}

// CreateChannel implements platform.Gateway.
func (a *Adapter) CreateChannel(ctx context.Context, name string, private bool) (string, error) {
	if err := a.limit.Wait(ctx); err != nil {
		return "", err
	}

	ch, err := a.api.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   private,
	})
	if err != nil {
		return "", fmt.Errorf("create channel %q: %w", name, err)
	}
	return ch.ID, nil
}

// renderBlocks converts the platform-neutral message model to Block Kit.
func renderBlocks(msg platform.OutboundMessage) []slack.Block {
	var blocks []slack.Block
	for _, section := range msg.Sections {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, section, false, false), nil, nil))
	}
	if len(msg.Buttons) > 0 {
		elements := make([]slack.BlockElement, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			btn := slack.NewButtonBlockElement(b.ActionID, b.Value,
				slack.NewTextBlockObject(slack.PlainTextType, b.Label, false, false))
			if b.Primary {
				btn = btn.WithStyle(slack.StylePrimary)
			}
			elements = append(elements, btn)
		}
		blocks = append(blocks, slack.NewActionBlock(msg.BlockID, elements...))
	}
	return blocks
}
