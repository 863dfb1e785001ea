// Package platform defines the chat-platform capability surface the triage
// core depends on. Concrete adapters (Slack Socket Mode) live in subpackages;
// the core only sees this interface so tests can substitute a fake.
package platform

import "context"

// MessageRef identifies a posted message on the platform.
type MessageRef struct {
	Channel   string
	Timestamp string
}

// Message is a message read back from channel history.
type Message struct {
	UserID    string
	Text      string
	Timestamp string
}

// Button is a single interactive button rendered in an actions block.
// Value is opaque wire payload that must round-trip exactly through the
// platform and back on click.
type Button struct {
	ActionID string
	Label    string
	Value    string
	Primary  bool
}

// OutboundMessage is a message to be posted or used to replace an existing one.
// Sections render as markdown blocks above the buttons; Text is the notification
// fallback and the full content when no blocks are present.
type OutboundMessage struct {
	Text     string
	ThreadTS string // reply in this thread when set
	Sections []string
	Buttons  []Button
	BlockID  string // block_id for the actions block (carries the origin timestamp)
}

// Gateway is the chat-platform capability set consumed by the triage core.
// All calls are blocking I/O boundaries and honor ctx cancellation/deadline.
type Gateway interface {
	// PostMessage posts to a channel (threaded when msg.ThreadTS is set).
	PostMessage(ctx context.Context, channelID string, msg OutboundMessage) (MessageRef, error)

	// UpdateMessage replaces the content of an existing message in place.
	UpdateMessage(ctx context.Context, channelID, ts string, msg OutboundMessage) error

	// FetchHistory reads up to limit messages at or before latest.
	FetchHistory(ctx context.Context, channelID, latest string, inclusive bool, limit int) ([]Message, error)

	// CreateChannel provisions a new channel and returns its ID.
	CreateChannel(ctx context.Context, name string, private bool) (string, error)
}
