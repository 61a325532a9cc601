// Package call coordinates the full life of a phone call: routing on open,
// turn processing, synthesis, archiving on close, and the idle reaper sweep.
package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/flow"
	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/router"
	"github.com/AKillionVoice/voicepipe/internal/session"
	"github.com/AKillionVoice/voicepipe/internal/store"
	"github.com/AKillionVoice/voicepipe/internal/synth"
	"github.com/AKillionVoice/voicepipe/internal/util"
)

// eventBuffer sizes the coordinator's outbound event channel.
const eventBuffer = 64

// audioTTL is how long synthesized clips stay fetchable after rendering.
const audioTTL = 10 * time.Minute

// FollowUpSender delivers the post-call SMS.
type FollowUpSender interface {
	SendFollowUp(ctx context.Context, session *models.CallSession, agent *models.AgentConfig) error
}

// TurnOutput is what the telephony gateway needs to answer one webhook: the
// reply text and the playable audio reference.
type TurnOutput struct {
	CallID      string
	Text        string
	Audio       models.AudioRef
	Interrupted bool
	Degraded    bool
	Closing     bool
}

// Coordinator wires the call modules together. It is safe for concurrent
// use; per-call serialization is delegated to the session registry.
type Coordinator struct {
	registry *session.Registry
	engine   *flow.Engine
	synth    *synth.Orchestrator
	store    store.Store
	followup FollowUpSender

	routerMu sync.RWMutex
	router   *router.Router

	agentMu sync.RWMutex
	agents  map[string]*models.AgentConfig

	audioMu   sync.Mutex
	audio     map[string]*audioEntry
	lastAudio map[string]string // call id -> most recent clip id

	events chan models.Event
}

type audioEntry struct {
	audio   *synth.Audio
	addedAt time.Time
}

// NewCoordinator creates a Coordinator. followup may be nil when SMS
// delivery is not configured.
func NewCoordinator(registry *session.Registry, rt *router.Router, engine *flow.Engine, orch *synth.Orchestrator, st store.Store, followup FollowUpSender) *Coordinator {
	return &Coordinator{
		registry:  registry,
		router:    rt,
		engine:    engine,
		synth:     orch,
		store:     st,
		followup:  followup,
		agents:    make(map[string]*models.AgentConfig),
		audio:     make(map[string]*audioEntry),
		lastAudio: make(map[string]string),
		events:    make(chan models.Event, eventBuffer),
	}
}

// LoadAgents pulls agent configurations from the store into the in-memory
// lookup and rebuilds the router over them. Called at startup and after
// agent updates; on a rebuild failure the previous router keeps serving.
func (c *Coordinator) LoadAgents() error {
	agents, err := c.store.ListAgents()
	if err != nil {
		return err
	}
	rt, err := router.New(agents)
	if err != nil {
		return err
	}

	c.agentMu.Lock()
	c.agents = make(map[string]*models.AgentConfig, len(agents))
	for i := range agents {
		c.agents[agents[i].ID] = &agents[i]
	}
	c.agentMu.Unlock()

	c.routerMu.Lock()
	c.router = rt
	c.routerMu.Unlock()

	slog.Info("Coordinator.LoadAgents: agents loaded", "count", len(agents))
	return nil
}

// Events returns the coordinator's outbound event stream: goal completions,
// call summaries, and forwarded session-reaped events.
func (c *Coordinator) Events() <-chan models.Event {
	return c.events
}

// Start pumps registry events into the coordinator stream until ctx ends.
func (c *Coordinator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-c.registry.Events():
				c.emit(event)
			}
		}
	}()
}

// agent resolves an agent id against the in-memory lookup.
func (c *Coordinator) agent(id string) (*models.AgentConfig, error) {
	c.agentMu.RLock()
	defer c.agentMu.RUnlock()
	a, ok := c.agents[id]
	if !ok {
		return nil, models.ErrAgentNotFound
	}
	return a, nil
}

// HandleCallStarted opens the session, routes it to an agent, and produces
// the opening reply. Duplicate start events return the session's current
// state without re-routing.
func (c *Coordinator) HandleCallStarted(ctx context.Context, event *models.CallStarted) (TurnOutput, error) {
	_, created, err := c.registry.Open(event)
	if err != nil {
		return TurnOutput{}, err
	}
	if !created {
		slog.Debug("Coordinator.HandleCallStarted: duplicate start event", "callID", event.CallID)
		return TurnOutput{CallID: event.CallID}, nil
	}

	c.routerMu.RLock()
	rt := c.router
	c.routerMu.RUnlock()
	decision := rt.Route(event.InitialSpeech)
	agent, err := c.agent(decision.AgentID)
	if err != nil {
		slog.Error("Coordinator.HandleCallStarted: routed agent missing", "agentID", decision.AgentID, "callID", event.CallID)
		return TurnOutput{}, err
	}

	var result flow.TurnResult
	err = c.registry.WithSession(event.CallID, func(s *models.CallSession) error {
		s.AgentID = agent.ID
		s.RoutingConfidence = decision.Confidence
		s.MatchedKeywords = decision.MatchedKeywords
		var beginErr error
		result, beginErr = c.engine.BeginCall(ctx, s, agent)
		return beginErr
	})
	if err != nil {
		return TurnOutput{}, err
	}

	slog.Info("Coordinator.HandleCallStarted: call routed",
		"callID", event.CallID, "agentID", agent.ID, "confidence", decision.Confidence, "fallback", decision.Fallback)
	return c.renderOutput(ctx, event.CallID, agent, result), nil
}

// HandleUtterance processes one caller utterance and produces the reply.
func (c *Coordinator) HandleUtterance(ctx context.Context, event *models.UtteranceReceived) (TurnOutput, error) {
	if err := event.Validate(); err != nil {
		return TurnOutput{}, err
	}

	var result flow.TurnResult
	var agent *models.AgentConfig
	var closing bool
	err := c.registry.WithSession(event.CallID, func(s *models.CallSession) error {
		var aerr error
		agent, aerr = c.agent(s.AgentID)
		if aerr != nil {
			return aerr
		}
		var terr error
		result, terr = c.engine.ProcessTurn(ctx, s, agent, event)
		if terr != nil {
			return terr
		}
		for _, goalID := range result.CompletedGoals {
			c.emit(models.Event{
				Type:      models.EventGoalCompleted,
				CallID:    s.CallID,
				Timestamp: time.Now(),
				Payload: models.GoalCompletedPayload{
					GoalID:    goalID,
					AgentID:   s.AgentID,
					Collected: s.Goals[goalID].Collected,
				},
			})
		}
		closing = s.State.Phase == models.PhaseClosing
		return nil
	})
	if err != nil {
		return TurnOutput{}, err
	}
	out := c.renderOutput(ctx, event.CallID, agent, result)
	out.Closing = closing
	return out, nil
}

// HandleCallEnded closes the session, writes the archive record, emits the
// call summary, and triggers the follow-up SMS.
func (c *Coordinator) HandleCallEnded(ctx context.Context, event *models.CallEnded) error {
	if err := event.Validate(); err != nil {
		return err
	}
	reason := event.Reason
	if reason == "" {
		reason = "completed"
	}

	s, err := c.registry.Close(event.CallID, reason)
	if err != nil {
		return err
	}

	s.Summary = c.engine.Summary(ctx, s)
	c.archive(s)

	c.emit(models.Event{
		Type:      models.EventCallSummary,
		CallID:    s.CallID,
		Timestamp: time.Now(),
		Payload: models.CallSummaryPayload{
			Summary:   s.Summary,
			AgentID:   s.AgentID,
			Duration:  s.Duration(time.Now()),
			TurnCount: s.State.TurnCount,
			EndReason: s.EndReason,
		},
	})

	if c.followup != nil && s.AgentID != "" {
		if agent, aerr := c.agent(s.AgentID); aerr == nil && agent.SMSTemplate != "" {
			if ferr := c.followup.SendFollowUp(ctx, s, agent); ferr != nil {
				slog.Warn("Coordinator.HandleCallEnded: follow-up failed", "error", ferr, "callID", s.CallID)
			}
		}
	}
	return nil
}

// ReapSweep runs one reaper pass, archiving every reaped session. Wired to
// the scheduler.
func (c *Coordinator) ReapSweep() {
	for _, s := range c.registry.ReapIdle() {
		c.archive(s)
	}
	c.pruneAudio()
}

// SnapshotSweep persists the current state of every live session so a crash
// loses at most one sweep interval of conversation. Wired to the scheduler;
// the startup reconciler closes out any snapshots left behind by a crash.
func (c *Coordinator) SnapshotSweep() {
	var saved int
	for _, info := range c.registry.List() {
		err := c.registry.WithSession(info.CallID, func(s *models.CallSession) error {
			return c.store.SaveCallRecord(s)
		})
		if err != nil {
			slog.Warn("Coordinator.SnapshotSweep: failed to snapshot session", "error", err, "callID", info.CallID)
			continue
		}
		saved++
	}
	if saved > 0 {
		slog.Debug("Coordinator.SnapshotSweep: live sessions persisted", "count", saved)
	}
}

// archive writes the final call record; failures are logged, not fatal — the
// call itself already succeeded. Goals still collecting when the call ends
// are marked abandoned.
func (c *Coordinator) archive(s *models.CallSession) {
	for _, progress := range s.Goals {
		if progress.Status == models.GoalStatusInProgress {
			progress.Status = models.GoalStatusAbandoned
		}
	}
	if err := c.store.SaveCallRecord(s); err != nil {
		slog.Error("Coordinator.archive: failed to save call record", "error", err, "callID", s.CallID)
	}
}

// renderOutput synthesizes the reply and registers the clip for playback.
func (c *Coordinator) renderOutput(ctx context.Context, callID string, agent *models.AgentConfig, result flow.TurnResult) TurnOutput {
	out := TurnOutput{
		CallID:      callID,
		Text:        result.Reply,
		Interrupted: result.Interrupted,
		Degraded:    result.Degraded,
	}

	req := synth.Request{
		Text:     result.Reply,
		Voice:    agent.Voice.Voice,
		Speed:    agent.Voice.Speed,
		Emotion:  result.Directive.Emotion,
		Language: agent.Voice.Language,
	}
	audio, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		out.Degraded = true
	}
	if audio == nil {
		return out
	}

	adapted := synth.AdaptForTelephony(audio)
	id := util.NewAudioID()
	c.audioMu.Lock()
	// A barge-in cancels the previous reply's clip so the gateway can no
	// longer fetch it. Only this call's audio is touched.
	if result.Interrupted {
		if prev, ok := c.lastAudio[callID]; ok {
			delete(c.audio, prev)
		}
	}
	c.audio[id] = &audioEntry{audio: adapted, addedAt: time.Now()}
	c.lastAudio[callID] = id
	c.audioMu.Unlock()

	out.Audio = models.AudioRef{
		ID:          id,
		ContentType: "audio/basic",
		Duration:    time.Duration(len(adapted.Data)) * time.Second / synth.TelephonyRate,
		Provider:    adapted.Provider,
		Apology:     adapted.Apology,
	}
	return out
}

// GetAudio returns a previously rendered clip.
func (c *Coordinator) GetAudio(id string) (*synth.Audio, error) {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	e, ok := c.audio[id]
	if !ok {
		return nil, models.ErrAudioNotFound
	}
	return e.audio, nil
}

// pruneAudio drops clips older than the TTL and any call mappings that
// point at pruned clips.
func (c *Coordinator) pruneAudio() {
	cutoff := time.Now().Add(-audioTTL)
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	for id, e := range c.audio {
		if e.addedAt.Before(cutoff) {
			delete(c.audio, id)
		}
	}
	for callID, id := range c.lastAudio {
		if _, ok := c.audio[id]; !ok {
			delete(c.lastAudio, callID)
		}
	}
}

// Registry exposes the session registry for read-only admin queries.
func (c *Coordinator) Registry() *session.Registry {
	return c.registry
}

// emit pushes an event without blocking; a full channel drops the event.
func (c *Coordinator) emit(event models.Event) {
	select {
	case c.events <- event:
	default:
		slog.Warn("Coordinator.emit: event channel full, dropping event", "type", event.Type, "callID", event.CallID)
	}
}
