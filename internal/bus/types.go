// Package bus carries inbound chat events from the platform adapter to the
// triage engine. Each event is consumed exactly once; handling is concurrent
// with no ordering guarantee across distinct cases.
package bus

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Channel   string `json:"channel"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	Subtype   string `json:"subtype,omitempty"` // platform message subtype ("bot_message", "message_changed", ...)
	BotID     string `json:"bot_id,omitempty"`  // set when the sender is a bot (skip to avoid echo loops)
}

// ButtonClick represents a block-action interaction callback.
// Value is the opaque payload attached when the button was posted; it encodes
// "{token}_{originTimestamp}" and must round-trip exactly.
type ButtonClick struct {
	ActionID    string `json:"action_id"`
	Value       string `json:"value"`
	UserID      string `json:"user_id"`
	Channel     string `json:"channel"`
	MessageTS   string `json:"message_ts"` // ts of the button message itself (the one edited in place)
	ButtonLabel string `json:"button_label,omitempty"`
}
