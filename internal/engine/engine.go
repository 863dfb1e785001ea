// Package engine runs the triage pipeline for each inbound chat event:
// classify the case, then dispatch to auto-routing, the hand-off coordinator,
// the agent gateway, or the generic offer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/casetriage/internal/bus"
	"github.com/nextlevelbuilder/casetriage/internal/handoff"
	"github.com/nextlevelbuilder/casetriage/internal/platform"
	"github.com/nextlevelbuilder/casetriage/internal/runbook"
	"github.com/nextlevelbuilder/casetriage/internal/triage"
)

// AgentGateway is the conversational agent the engine forwards cases to.
type AgentGateway interface {
	ProcessMessage(ctx context.Context, text string) (string, error)
}

// Config carries the engine's channel wiring and limits.
type Config struct {
	IntakeChannel string
	LeadsChannel  string
	CallTimeout   time.Duration // per external call hop
}

// Engine orchestrates Parser → Classifier → (AutoRoute | Handoff | Agent |
// Generic) for every inbound event. Each event is handled in its own
// goroutine; a failing task never affects other concurrent tasks.
type Engine struct {
	gateway  platform.Gateway
	agent    AgentGateway // nil when the integration is not configured
	coord    *handoff.Coordinator
	runbooks *runbook.Runner
	cfg      Config
	dedupe   *bus.DedupeCache
	tracer   trace.Tracer
}

// NewEngine creates the triage engine.
func NewEngine(gateway platform.Gateway, agent AgentGateway, coord *handoff.Coordinator, runbooks *runbook.Runner, cfg Config) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Engine{
		gateway:  gateway,
		agent:    agent,
		coord:    coord,
		runbooks: runbooks,
		cfg:      cfg,
		dedupe:   bus.NewDedupeCache(20*time.Minute, 5000),
		tracer:   otel.Tracer("casetriage/triage"),
	}
}

// Run consumes events from the bus until ctx is done.
func (e *Engine) Run(ctx context.Context, msgBus *bus.MessageBus) {
	slog.Info("triage engine started", "intake_channel", e.cfg.IntakeChannel)
	go func() {
		for {
			click, ok := msgBus.ConsumeClick(ctx)
			if !ok {
				return
			}
			go e.safely(ctx, "click", func(taskCtx context.Context) {
				e.HandleClick(taskCtx, click)
			})
		}
	}()
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go e.safely(ctx, "message", func(taskCtx context.Context) {
			e.HandleMessage(taskCtx, msg)
		})
	}
}

// safely isolates one handling task: bounded lifetime, panic containment.
func (e *Engine) safely(ctx context.Context, kind string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("triage task panicked", "kind", kind, "panic", r)
		}
	}()
	// Generous task budget; individual gateway calls are further bounded
	// by the platform adapter's own timeouts.
	taskCtx, cancel := context.WithTimeout(ctx, 4*e.cfg.CallTimeout)
	defer cancel()
	fn(taskCtx)
}

// HandleMessage triages one inbound channel message.
func (e *Engine) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	// Bot echoes and edits are not new cases.
	if msg.BotID != "" || msg.Subtype != "" || msg.Text == "" {
		return
	}
	if e.dedupe.Seen("msg:" + msg.Channel + ":" + msg.Timestamp) {
		slog.Debug("duplicate delivery ignored", "ts", msg.Timestamp)
		return
	}

	if msg.Channel == e.cfg.LeadsChannel && e.cfg.LeadsChannel != "" {
		e.handleLead(ctx, msg)
		return
	}
	if msg.Channel != e.cfg.IntakeChannel {
		// Messages in team channels get a runbook offer; everywhere else
		// is out of scope.
		if e.runbooks != nil {
			e.runbooks.MaybeOffer(ctx, msg)
		}
		return
	}

	ctx, span := e.tracer.Start(ctx, "triage.handle_message",
		trace.WithAttributes(attribute.String("origin_ts", msg.Timestamp)))
	defer span.End()

	decision := triage.Classify(msg.Text, msg.Timestamp)
	rec := decision.Record
	rec.OriginTS = msg.Timestamp
	rec.OriginUser = msg.UserID
	rec.ThreadTS = msg.ThreadTS
	if rec.ThreadTS == "" {
		rec.ThreadTS = msg.Timestamp
	}
	span.SetAttributes(
		attribute.String("outcome", decision.Outcome.String()),
		attribute.String("team", rec.Team),
		attribute.Int("confidence", rec.Confidence),
	)
	slog.Info("case classified",
		"outcome", decision.Outcome.String(),
		"case", rec.CaseNumber,
		"team", rec.Team,
		"confidence", rec.Confidence,
	)

	var err error
	switch decision.Outcome {
	case triage.OutcomeAgentForward:
		err = e.agentForward(ctx, rec, msg.Text)
	case triage.OutcomeAutoRoute:
		err = e.coord.AutoRoute(ctx, rec)
	default: // OfferHandoff, Generic
		err = e.coord.Offer(ctx, rec, msg.Text)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("case handling failed", "outcome", decision.Outcome.String(), "error", err)
	}
}

// HandleClick dispatches one button interaction.
func (e *Engine) HandleClick(ctx context.Context, click bus.ButtonClick) {
	if e.dedupe.Seen("click:" + click.MessageTS + ":" + click.ActionID + ":" + click.Value) {
		slog.Debug("duplicate click delivery ignored", "action", click.ActionID)
		return
	}

	ctx, span := e.tracer.Start(ctx, "triage.handle_click",
		trace.WithAttributes(attribute.String("action_id", click.ActionID)))
	defer span.End()

	if click.ActionID == runbook.ActionID && e.runbooks != nil {
		if err := e.runbooks.Execute(ctx, click); err != nil {
			span.SetStatus(codes.Error, err.Error())
			slog.Error("runbook execution failed", "error", err)
		}
		return
	}

	token, originTS, ok := handoff.DecodeValue(click.Value)
	if ok && token == handoff.AgentToken {
		e.agentProcessClick(ctx, click, originTS)
		return
	}

	if err := e.coord.HandleClick(ctx, click); err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("handoff click failed", "action", click.ActionID, "error", err)
	}
}

// agentForward sends the raw case text to the agent and posts its reply in
// the case thread. A gateway failure produces a visible apology, not silence.
func (e *Engine) agentForward(ctx context.Context, rec triage.CaseRecord, rawText string) error {
	reply := e.processWithAgent(ctx, rawText)
	_, err := e.gateway.PostMessage(ctx, e.cfg.IntakeChannel, platform.OutboundMessage{
		Text:     reply,
		ThreadTS: rec.ThreadTS,
	})
	if err != nil {
		return fmt.Errorf("post agent reply: %w", err)
	}
	return nil
}

// agentProcessClick handles the "Process with AgentForce" button: the case
// text is re-fetched from history (nothing durable is kept) and forwarded.
func (e *Engine) agentProcessClick(ctx context.Context, click bus.ButtonClick, originTS string) {
	text := ""
	msgs, err := e.gateway.FetchHistory(ctx, e.cfg.IntakeChannel, originTS, true, 1)
	if err != nil || len(msgs) == 0 {
		slog.Warn("could not fetch case text for agent processing", "origin_ts", originTS, "error", err)
	} else {
		text = msgs[0].Text
	}

	reply := e.processWithAgent(ctx, text)
	_, err = e.gateway.PostMessage(ctx, e.cfg.IntakeChannel, platform.OutboundMessage{
		Text:     reply,
		ThreadTS: originTS,
	})
	if err != nil {
		slog.Error("failed to post agent reply", "origin_ts", originTS, "error", err)
	}
}

// processWithAgent runs text through the agent gateway, degrading to an
// apology string on any failure.
func (e *Engine) processWithAgent(ctx context.Context, text string) string {
	if e.agent == nil {
		return "Sorry, AgentForce processing is not configured right now. Please hand the case off to a team instead."
	}
	if text == "" {
		return "Sorry, I could not recover the case text to process. Please hand the case off to a team instead."
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	reply, err := e.agent.ProcessMessage(callCtx, text)
	if err != nil {
		slog.Error("agent processing failed", "error", err)
		return "Sorry, I couldn't process this case with AgentForce right now. Please try again later or hand it off to a team."
	}
	return reply
}

// handleLead acknowledges a message in the new-leads channel.
func (e *Engine) handleLead(ctx context.Context, msg bus.InboundMessage) {
	threadTS := msg.ThreadTS
	if threadTS == "" {
		threadTS = msg.Timestamp
	}
	_, err := e.gateway.PostMessage(ctx, e.cfg.LeadsChannel, platform.OutboundMessage{
		Text:     fmt.Sprintf("New lead received from <@%s>! Processing...", msg.UserID),
		ThreadTS: threadTS,
	})
	if err != nil {
		slog.Error("failed to acknowledge lead", "error", err)
	}
}
