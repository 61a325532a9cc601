package call

import (
	"context"
	"testing"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/flow"
	"github.com/AKillionVoice/voicepipe/internal/goals"
	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/router"
	"github.com/AKillionVoice/voicepipe/internal/session"
	"github.com/AKillionVoice/voicepipe/internal/store"
	"github.com/AKillionVoice/voicepipe/internal/synth"
)

type scriptedGenerator struct{ reply string }

func (g *scriptedGenerator) Generate(ctx context.Context, directive models.Directive, history []models.Message) (string, error) {
	if g.reply != "" {
		return g.reply, nil
	}
	return "Of course, happy to help.", nil
}

type silentProvider struct{}

func (silentProvider) Name() string { return "silent" }
func (silentProvider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	return &synth.Audio{Data: make([]byte, 1600), SampleRate: 8000, Channels: 1}, nil
}

type recordingFollowUp struct{ calls int }

func (r *recordingFollowUp) SendFollowUp(ctx context.Context, s *models.CallSession, a *models.AgentConfig) error {
	r.calls++
	return nil
}

func testCoordinator(t *testing.T, followup FollowUpSender) (*Coordinator, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	agents := []models.AgentConfig{
		{
			ID: "billing", Name: "Billing", SystemPrompt: "You handle billing.", Priority: 2,
			Keywords:    []models.Keyword{{Word: "invoice", Weight: 1}, {Word: "refund", Weight: 1}},
			GoalIDs:     []string{"booking"},
			SMSTemplate: "Thanks for calling {{.AgentName}}.",
		},
		{ID: "general", Name: "General", SystemPrompt: "You handle everything.", Priority: 1, Fallback: true},
	}
	for _, a := range agents {
		if err := st.SaveAgent(a); err != nil {
			t.Fatalf("SaveAgent failed: %v", err)
		}
	}

	rt, err := router.New(agents)
	if err != nil {
		t.Fatalf("router.New failed: %v", err)
	}
	tracker, err := goals.NewTracker([]models.GoalDefinition{
		{ID: "booking", RequiredFields: []string{"date"}},
	})
	if err != nil {
		t.Fatalf("goals.NewTracker failed: %v", err)
	}
	engine := flow.NewEngine(&scriptedGenerator{}, nil, tracker)
	orch, err := synth.NewOrchestrator([]synth.Provider{silentProvider{}})
	if err != nil {
		t.Fatalf("synth.NewOrchestrator failed: %v", err)
	}
	registry := session.NewRegistry()

	c := NewCoordinator(registry, rt, engine, orch, st, followup)
	if err := c.LoadAgents(); err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}
	return c, st
}

func TestHandleCallStartedRoutesAndReplies(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	out, err := c.HandleCallStarted(context.Background(), &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "I want a refund on my invoice",
	})
	if err != nil {
		t.Fatalf("HandleCallStarted failed: %v", err)
	}
	if out.Text == "" {
		t.Error("expected an opening reply")
	}
	if out.Audio.ID == "" {
		t.Error("expected playable audio")
	}

	info, err := c.Registry().Get("CA1")
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if info.AgentID != "billing" {
		t.Errorf("expected billing route, got %q", info.AgentID)
	}
	if info.RoutingConfidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", info.RoutingConfidence)
	}
}

func TestHandleCallStartedIdempotent(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	event := &models.CallStarted{CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund"}
	if _, err := c.HandleCallStarted(context.Background(), event); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := c.HandleCallStarted(context.Background(), event); err != nil {
		t.Fatalf("duplicate start must not fail: %v", err)
	}
	if c.Registry().Count() != 1 {
		t.Errorf("expected 1 session, got %d", c.Registry().Count())
	}
}

func TestHandleUtteranceEmitsGoalCompleted(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	ctx := context.Background()
	if _, err := c.HandleCallStarted(ctx, &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := c.HandleUtterance(ctx, &models.UtteranceReceived{CallID: "CA1", Text: "can we do tomorrow?"}); err != nil {
		t.Fatalf("utterance failed: %v", err)
	}

	select {
	case event := <-c.Events():
		if event.Type != models.EventGoalCompleted {
			t.Errorf("expected goal-completed event, got %q", event.Type)
		}
		payload, ok := event.Payload.(models.GoalCompletedPayload)
		if !ok || payload.GoalID != "booking" {
			t.Errorf("unexpected payload: %+v", event.Payload)
		}
	default:
		t.Error("expected a goal-completed event")
	}

	// Repeating the utterance never completes the goal again.
	if _, err := c.HandleUtterance(ctx, &models.UtteranceReceived{CallID: "CA1", Text: "tomorrow still works"}); err != nil {
		t.Fatalf("utterance failed: %v", err)
	}
	select {
	case event := <-c.Events():
		t.Errorf("unexpected second event: %+v", event)
	default:
	}
}

func TestHandleUtteranceUnknownSession(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	_, err := c.HandleUtterance(context.Background(), &models.UtteranceReceived{CallID: "nope", Text: "hi"})
	if err != models.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHandleCallEndedArchivesAndNotifies(t *testing.T) {
	followup := &recordingFollowUp{}
	c, st := testCoordinator(t, followup)
	ctx := context.Background()
	if _, err := c.HandleCallStarted(ctx, &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := c.HandleUtterance(ctx, &models.UtteranceReceived{CallID: "CA1", Text: "hello"}); err != nil {
		t.Fatalf("utterance failed: %v", err)
	}

	if err := c.HandleCallEnded(ctx, &models.CallEnded{CallID: "CA1", Reason: "hangup"}); err != nil {
		t.Fatalf("HandleCallEnded failed: %v", err)
	}

	record, err := st.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("expected archived record: %v", err)
	}
	if record.Status != models.SessionStatusEnded || record.Summary == "" {
		t.Errorf("unexpected record: status=%q summary=%q", record.Status, record.Summary)
	}
	if followup.calls != 1 {
		t.Errorf("expected one follow-up, got %d", followup.calls)
	}

	// Drain goal event, then expect the summary event.
	var sawSummary bool
	for i := 0; i < 2; i++ {
		select {
		case event := <-c.Events():
			if event.Type == models.EventCallSummary {
				sawSummary = true
			}
		default:
		}
	}
	if !sawSummary {
		t.Error("expected a call-summary event")
	}
	if err := c.HandleCallEnded(ctx, &models.CallEnded{CallID: "CA1"}); err != models.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound on double end, got %v", err)
	}
}

func TestCallEndAbandonsOpenGoals(t *testing.T) {
	c, st := testCoordinator(t, nil)
	ctx := context.Background()
	if _, err := c.HandleCallStarted(ctx, &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// The caller never supplies a date, so booking stays open.
	if _, err := c.HandleUtterance(ctx, &models.UtteranceReceived{CallID: "CA1", Text: "hello"}); err != nil {
		t.Fatalf("utterance failed: %v", err)
	}

	// A mid-call snapshot must not touch live goals.
	c.SnapshotSweep()
	snapshot, err := st.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("expected snapshot record: %v", err)
	}
	if got := snapshot.Goals["booking"].Status; got != models.GoalStatusInProgress {
		t.Fatalf("live goal must stay in progress, got %q", got)
	}

	if err := c.HandleCallEnded(ctx, &models.CallEnded{CallID: "CA1", Reason: "hangup"}); err != nil {
		t.Fatalf("HandleCallEnded failed: %v", err)
	}
	record, err := st.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("expected archived record: %v", err)
	}
	if got := record.Goals["booking"].Status; got != models.GoalStatusAbandoned {
		t.Errorf("expected abandoned goal at call end, got %q", got)
	}
}

func TestReapSweepArchivesReapedSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveAgent(models.AgentConfig{ID: "general", Name: "General", SystemPrompt: "p", Fallback: true}); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	rt, err := router.New([]models.AgentConfig{{ID: "general", SystemPrompt: "p", Fallback: true}})
	if err != nil {
		t.Fatalf("router.New failed: %v", err)
	}
	current := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	engine := flow.NewEngine(&scriptedGenerator{}, nil, nil, flow.WithClock(func() time.Time { return current }))
	orch, err := synth.NewOrchestrator([]synth.Provider{silentProvider{}})
	if err != nil {
		t.Fatalf("synth.NewOrchestrator failed: %v", err)
	}

	registry := session.NewRegistry(session.WithClock(func() time.Time { return current }))
	c := NewCoordinator(registry, rt, engine, orch, st, nil)
	if err := c.LoadAgents(); err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}

	if _, err := c.HandleCallStarted(context.Background(), &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	current = current.Add(session.DefaultIdleTimeout + time.Minute)
	c.ReapSweep()

	record, err := st.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("expected archived record for reaped session: %v", err)
	}
	if record.Status != models.SessionStatusReaped {
		t.Errorf("expected reaped status, got %q", record.Status)
	}
}

func TestGetAudio(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	out, err := c.HandleCallStarted(context.Background(), &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	audio, err := c.GetAudio(out.Audio.ID)
	if err != nil {
		t.Fatalf("GetAudio failed: %v", err)
	}
	if audio.SampleRate != synth.TelephonyRate || audio.Channels != 1 {
		t.Errorf("expected telephony audio, got %d Hz %d ch", audio.SampleRate, audio.Channels)
	}
	if _, err := c.GetAudio("missing"); err != models.ErrAudioNotFound {
		t.Errorf("expected ErrAudioNotFound, got %v", err)
	}
}

func TestInterruptionCancelsPriorClip(t *testing.T) {
	c, _ := testCoordinator(t, nil)
	ctx := context.Background()
	if _, err := c.HandleCallStarted(ctx, &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first, err := c.HandleUtterance(ctx, &models.UtteranceReceived{CallID: "CA1", Text: "tell me about my invoice"})
	if err != nil {
		t.Fatalf("utterance failed: %v", err)
	}
	if _, err := c.GetAudio(first.Audio.ID); err != nil {
		t.Fatalf("expected first clip to be fetchable: %v", err)
	}

	second, err := c.HandleUtterance(ctx, &models.UtteranceReceived{
		CallID:            "CA1",
		Text:              "actually wait, I meant tomorrow",
		PlaybackRemaining: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("interrupting utterance failed: %v", err)
	}
	if !second.Interrupted {
		t.Error("expected the turn to be flagged as a barge-in")
	}
	if _, err := c.GetAudio(first.Audio.ID); err != models.ErrAudioNotFound {
		t.Errorf("expected first clip to be canceled, got %v", err)
	}
	if _, err := c.GetAudio(second.Audio.ID); err != nil {
		t.Errorf("expected replacement clip to be fetchable: %v", err)
	}
}

func TestSnapshotSweepPersistsLiveSessions(t *testing.T) {
	c, st := testCoordinator(t, nil)
	ctx := context.Background()
	if _, err := c.HandleCallStarted(ctx, &models.CallStarted{
		CallID: "CA1", CallerAddress: "+15550100", InitialSpeech: "refund",
	}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	c.SnapshotSweep()

	record, err := st.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("expected a snapshot record: %v", err)
	}
	if record.Status != models.SessionStatusActive {
		t.Errorf("expected active snapshot, got %q", record.Status)
	}
}
