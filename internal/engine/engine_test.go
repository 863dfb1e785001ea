package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/handoff"
	"github.com/nextlevelbuilder/casetriage/internal/platform"
	"github.com/nextlevelbuilder/casetriage/internal/runbook"
	"github.com/nextlevelbuilder/casetriage/internal/teams"
)

const (
	intakeChannel = "C_INTAKE"
	leadsChannel  = "C_LEADS"
)

type postedMessage struct {
	Channel string
	Msg     platform.OutboundMessage
}

type fakeGateway struct {
	mu      sync.Mutex
	posts   []postedMessage
	history map[string]platform.Message
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{history: make(map[string]platform.Message)}
}

func (g *fakeGateway) PostMessage(ctx context.Context, channelID string, msg platform.OutboundMessage) (platform.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, postedMessage{Channel: channelID, Msg: msg})
	return platform.MessageRef{Channel: channelID, Timestamp: "9999.0001"}, nil
}

func (g *fakeGateway) UpdateMessage(ctx context.Context, channelID, ts string, msg platform.OutboundMessage) error {
	return nil
}

func (g *fakeGateway) FetchHistory(ctx context.Context, channelID, latest string, inclusive bool, limit int) ([]platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.history[latest]; ok {
		return []platform.Message{m}, nil
	}
	return nil, nil
}

func (g *fakeGateway) CreateChannel(ctx context.Context, name string, private bool) (string, error) {
	return "C_NEW_" + name, nil
}

func (g *fakeGateway) allPosts() []postedMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]postedMessage(nil), g.posts...)
}

type fakeAgent struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastText string
}

func (a *fakeAgent) ProcessMessage(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastText = text
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

func newTestEngine(g *fakeGateway, agent AgentGateway, seeds map[string]string) *Engine {
	dir := teams.New(g, seeds)
	coord := handoff.New(g, dir, intakeChannel)
	return NewEngine(g, agent, coord, runbook.New(g, dir), Config{
		IntakeChannel: intakeChannel,
		LeadsChannel:  leadsChannel,
		CallTimeout:   time.Second,
	})
}

func inbound(text, ts string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   intakeChannel,
		UserID:    "U_REPORTER",
		Text:      text,
		Timestamp: ts,
	}
}

func TestHandleMessage_OffersHandoffOnMediumConfidence(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)

	e.HandleMessage(context.Background(), inbound(
		"Case number: 12312\nSummary: user a is having issues\nTeam: IAM team\nConfidence: 80%",
		"1.000001"))

	posts := g.allPosts()
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1 offer", len(posts))
	}
	if posts[0].Channel != intakeChannel || posts[0].Msg.ThreadTS != "1.000001" {
		t.Errorf("offer posted to %s thread %q", posts[0].Channel, posts[0].Msg.ThreadTS)
	}
	if len(posts[0].Msg.Buttons) == 0 {
		t.Error("offer has no buttons")
	}
}

func TestHandleMessage_AutoRoutesOnHighConfidence(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, map[string]string{"iam team": "C_IAM"})

	e.HandleMessage(context.Background(), inbound(
		"Case number: 12312\nSummary: user a is having issues\nTeam: IAM team\nConfidence: 95%",
		"1.000001"))

	var routed bool
	for _, p := range g.allPosts() {
		if p.Channel == "C_IAM" && strings.Contains(p.Msg.Text, "Auto-routed Case #12312") {
			routed = true
		}
	}
	if !routed {
		t.Errorf("case not auto-routed, posts: %+v", g.allPosts())
	}
}

func TestHandleMessage_AgentForward(t *testing.T) {
	g := newFakeGateway()
	agent := &fakeAgent{reply: "Our refund policy allows returns within 30 days."}
	e := newTestEngine(g, agent, nil)

	e.HandleMessage(context.Background(), inbound("agentforce what is our refund policy", "1.000001"))

	if agent.calls != 1 {
		t.Fatalf("agent called %d times, want 1", agent.calls)
	}
	if agent.lastText != "agentforce what is our refund policy" {
		t.Errorf("agent got %q", agent.lastText)
	}
	posts := g.allPosts()
	if len(posts) != 1 || posts[0].Msg.Text != agent.reply {
		t.Errorf("agent reply not posted, posts: %+v", posts)
	}
	if posts[0].Msg.ThreadTS != "1.000001" {
		t.Errorf("agent reply not threaded: %q", posts[0].Msg.ThreadTS)
	}
}

func TestHandleMessage_AgentFailureProducesApology(t *testing.T) {
	g := newFakeGateway()
	agent := &fakeAgent{err: errors.New("session expired")}
	e := newTestEngine(g, agent, nil)

	e.HandleMessage(context.Background(), inbound("agentforce help", "1.000001"))

	posts := g.allPosts()
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	if !strings.Contains(posts[0].Msg.Text, "Sorry") {
		t.Errorf("expected apology, got %q", posts[0].Msg.Text)
	}
}

func TestHandleMessage_AgentUnconfiguredProducesApology(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)

	e.HandleMessage(context.Background(), inbound("agentforce help", "1.000001"))

	posts := g.allPosts()
	if len(posts) != 1 || !strings.Contains(posts[0].Msg.Text, "not configured") {
		t.Errorf("expected not-configured apology, posts: %+v", posts)
	}
}

func TestHandleMessage_SkipsBotsEditsAndEmpty(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)

	tests := []struct {
		name string
		msg  bus.InboundMessage
	}{
		{"bot message", bus.InboundMessage{Channel: intakeChannel, Text: "hi", Timestamp: "1.1", BotID: "B123"}},
		{"edited message", bus.InboundMessage{Channel: intakeChannel, Text: "hi", Timestamp: "1.2", Subtype: "message_changed"}},
		{"empty text", bus.InboundMessage{Channel: intakeChannel, Timestamp: "1.3"}},
		{"other channel", bus.InboundMessage{Channel: "C_ELSEWHERE", Text: "hi", Timestamp: "1.4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.HandleMessage(context.Background(), tt.msg)
			if n := len(g.allPosts()); n != 0 {
				t.Errorf("posted %d messages for a skippable event", n)
			}
		})
	}
}

func TestHandleMessage_DuplicateDeliveryIgnored(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)
	msg := inbound("server is down", "1.000001")

	e.HandleMessage(context.Background(), msg)
	e.HandleMessage(context.Background(), msg)

	if n := len(g.allPosts()); n != 1 {
		t.Errorf("got %d posts for a redelivered event, want 1", n)
	}
}

func TestHandleMessage_LeadsChannelAck(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)

	e.HandleMessage(context.Background(), bus.InboundMessage{
		Channel:   leadsChannel,
		UserID:    "U_LEAD",
		Text:      "interested in the enterprise plan",
		Timestamp: "5.000001",
	})

	posts := g.allPosts()
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	if posts[0].Channel != leadsChannel {
		t.Errorf("ack posted to %s", posts[0].Channel)
	}
	if !strings.Contains(posts[0].Msg.Text, "New lead received from <@U_LEAD>") {
		t.Errorf("ack text = %q", posts[0].Msg.Text)
	}
	if posts[0].Msg.ThreadTS != "5.000001" {
		t.Errorf("ack not threaded: %q", posts[0].Msg.ThreadTS)
	}
}

func TestHandleMessage_TeamChannelGetsRunbookOffer(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, map[string]string{"Support": "C_SUP"})

	e.HandleMessage(context.Background(), bus.InboundMessage{
		Channel:   "C_SUP",
		UserID:    "U_ENG",
		Text:      "investigating the outage now",
		Timestamp: "6.000001",
	})

	posts := g.allPosts()
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1 runbook offer", len(posts))
	}
	if posts[0].Channel != "C_SUP" || posts[0].Msg.ThreadTS != "6.000001" {
		t.Errorf("offer posted to %s thread %q", posts[0].Channel, posts[0].Msg.ThreadTS)
	}
	if len(posts[0].Msg.Buttons) != 1 || posts[0].Msg.Buttons[0].ActionID != runbook.ActionID {
		t.Errorf("offer buttons = %+v", posts[0].Msg.Buttons)
	}
}

func TestHandleClick_RunbookButtonRouted(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, map[string]string{"Support": "C_SUP"})

	// A malformed value fails fast inside the runner; the click must still
	// be routed there rather than to the hand-off coordinator.
	e.HandleClick(context.Background(), bus.ButtonClick{
		ActionID:  runbook.ActionID,
		Value:     "garbage",
		UserID:    "U_A",
		Channel:   "C_SUP",
		MessageTS: "9999.0001",
	})

	if n := len(g.allPosts()); n != 0 {
		t.Errorf("runbook click produced %d posts, want 0 (error edits the offer in place)", n)
	}
}

func TestHandleClick_AgentButtonFetchesAndForwards(t *testing.T) {
	g := newFakeGateway()
	g.history["2.000001"] = platform.Message{Text: "how do I rotate my keys", Timestamp: "2.000001"}
	agent := &fakeAgent{reply: "Rotate keys from the security console."}
	e := newTestEngine(g, agent, nil)

	e.HandleClick(context.Background(), bus.ButtonClick{
		ActionID:  "process_agentforce",
		Value:     handoff.EncodeValue(handoff.AgentToken, "2.000001"),
		UserID:    "U_A",
		Channel:   intakeChannel,
		MessageTS: "9999.0001",
	})

	if agent.lastText != "how do I rotate my keys" {
		t.Errorf("agent got %q, want the fetched case text", agent.lastText)
	}
	posts := g.allPosts()
	if len(posts) != 1 || posts[0].Msg.Text != agent.reply {
		t.Errorf("agent reply not posted, posts: %+v", posts)
	}
	if posts[0].Msg.ThreadTS != "2.000001" {
		t.Errorf("reply not threaded on origin: %q", posts[0].Msg.ThreadTS)
	}
}

func TestHandleClick_AgentButtonMissingHistory(t *testing.T) {
	g := newFakeGateway()
	agent := &fakeAgent{reply: "unused"}
	e := newTestEngine(g, agent, nil)

	e.HandleClick(context.Background(), bus.ButtonClick{
		ActionID:  "process_agentforce",
		Value:     handoff.EncodeValue(handoff.AgentToken, "2.000001"),
		UserID:    "U_A",
		Channel:   intakeChannel,
		MessageTS: "9999.0001",
	})

	if agent.calls != 0 {
		t.Errorf("agent called with no case text")
	}
	posts := g.allPosts()
	if len(posts) != 1 || !strings.Contains(posts[0].Msg.Text, "could not recover the case text") {
		t.Errorf("expected recovery apology, posts: %+v", posts)
	}
}

func TestHandleClick_HandoffButtonDelegatesToCoordinator(t *testing.T) {
	g := newFakeGateway()
	g.history["3.000001"] = platform.Message{Text: "original case", Timestamp: "3.000001"}
	e := newTestEngine(g, nil, map[string]string{"Support": "C_SUP"})

	e.HandleClick(context.Background(), bus.ButtonClick{
		ActionID:  "handoff_support",
		Value:     "support_3.000001",
		UserID:    "U_A",
		Channel:   intakeChannel,
		MessageTS: "9999.0001",
	})

	var handed bool
	for _, p := range g.allPosts() {
		if p.Channel == "C_SUP" && strings.Contains(p.Msg.Text, "original case") {
			handed = true
		}
	}
	if !handed {
		t.Errorf("handoff click not executed, posts: %+v", g.allPosts())
	}
}

func TestHandleClick_DuplicateDeliveryIgnored(t *testing.T) {
	g := newFakeGateway()
	g.history["2.000001"] = platform.Message{Text: "case text", Timestamp: "2.000001"}
	agent := &fakeAgent{reply: "answer"}
	e := newTestEngine(g, agent, nil)

	click := bus.ButtonClick{
		ActionID:  "process_agentforce",
		Value:     handoff.EncodeValue(handoff.AgentToken, "2.000001"),
		UserID:    "U_A",
		Channel:   intakeChannel,
		MessageTS: "9999.0001",
	}
	e.HandleClick(context.Background(), click)
	e.HandleClick(context.Background(), click)

	if agent.calls != 1 {
		t.Errorf("agent called %d times for a redelivered click, want 1", agent.calls)
	}
}

func TestRun_ConsumesFromBus(t *testing.T) {
	g := newFakeGateway()
	e := newTestEngine(g, nil, nil)
	msgBus := bus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx, msgBus)
		close(done)
	}()

	if !msgBus.PublishInbound(inbound("server is down", "7.000001")) {
		t.Fatal("publish failed")
	}

	deadline := time.After(2 * time.Second)
	for len(g.allPosts()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no offer posted within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
