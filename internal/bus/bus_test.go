package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	b := New()
	msg := InboundMessage{Channel: "C1", UserID: "U1", Text: "hello", Timestamp: "1.0"}
	if !b.PublishInbound(msg) {
		t.Fatal("publish failed on empty queue")
	}

	got, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("consume failed")
	}
	if got != msg {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestPublishClickRoundTrip(t *testing.T) {
	b := New()
	click := ButtonClick{ActionID: "handoff_support", Value: "support_1.0", UserID: "U1"}
	if !b.PublishClick(click) {
		t.Fatal("publish failed")
	}
	got, ok := b.ConsumeClick(context.Background())
	if !ok || got != click {
		t.Errorf("got %+v, %v", got, ok)
	}
}

func TestPublishInbound_DropsWhenFull(t *testing.T) {
	b := New()
	for i := 0; i < queueSize; i++ {
		if !b.PublishInbound(InboundMessage{Timestamp: "1.0"}) {
			t.Fatalf("publish %d failed before queue was full", i)
		}
	}
	if b.PublishInbound(InboundMessage{Timestamp: "2.0"}) {
		t.Error("publish succeeded on a full queue")
	}
}

func TestConsume_UnblocksOnContextCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := b.ConsumeInbound(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("consume reported ok after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("consume did not unblock on cancel")
	}
}

func TestDedupeCache_SeenWithinTTL(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)
	if d.Seen("a") {
		t.Error("fresh key reported as seen")
	}
	if !d.Seen("a") {
		t.Error("repeated key not reported as seen")
	}
	if d.Seen("b") {
		t.Error("distinct key reported as seen")
	}
}

func TestDedupeCache_TTLExpiry(t *testing.T) {
	d := NewDedupeCache(10*time.Millisecond, 100)
	if d.Seen("a") {
		t.Error("fresh key reported as seen")
	}
	time.Sleep(20 * time.Millisecond)
	if d.Seen("a") {
		t.Error("expired key still reported as seen")
	}
}

func TestDedupeCache_BoundedSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 10)
	for i := 0; i < 100; i++ {
		d.Seen(string(rune('a' + i)))
	}
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n > 10 {
		t.Errorf("cache holds %d entries, cap is 10", n)
	}
}
