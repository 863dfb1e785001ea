package bus

import "context"

const queueSize = 256

// MessageBus is an in-process queue pair decoupling the platform adapter from
// the triage engine. Publishing never blocks the adapter's event loop: when a
// queue is full the event is dropped (the platform redelivers).
type MessageBus struct {
	inbound chan InboundMessage
	clicks  chan ButtonClick
}

// New creates a message bus with bounded queues.
func New() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, queueSize),
		clicks:  make(chan ButtonClick, queueSize),
	}
}

// PublishInbound enqueues a channel message event.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	select {
	case b.inbound <- msg:
		return true
	default:
		return false
	}
}

// PublishClick enqueues a button interaction event.
func (b *MessageBus) PublishClick(click ButtonClick) bool {
	select {
	case b.clicks <- click:
		return true
	default:
		return false
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// ConsumeClick blocks until a click is available or ctx is done.
func (b *MessageBus) ConsumeClick(ctx context.Context) (ButtonClick, bool) {
	select {
	case click := <-b.clicks:
		return click, true
	case <-ctx.Done():
		return ButtonClick{}, false
	}
}
