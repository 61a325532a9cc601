package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/goals"
	"github.com/AKillionVoice/voicepipe/internal/models"
)

type stubGenerator struct {
	reply string
	err   error
	calls []models.Directive
}

func (s *stubGenerator) Generate(ctx context.Context, directive models.Directive, history []models.Message) (string, error) {
	s.calls = append(s.calls, directive)
	if s.err != nil {
		return "", s.err
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return "Happy to help with that.", nil
}

type stubRetriever struct {
	snippets []models.KnowledgeSnippet
	queries  []string
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, domainIDs []string) []models.KnowledgeSnippet {
	s.queries = append(s.queries, query)
	return s.snippets
}

func testAgent() *models.AgentConfig {
	return &models.AgentConfig{
		ID:           "support",
		SystemPrompt: "You are a support agent for Acme.",
		Keywords:     []models.Keyword{{Word: "help", Weight: 1}},
		DomainIDs:    []string{"faq"},
	}
}

func newEngine(gen Generator, ret Retriever, tr GoalTracker) *Engine {
	return NewEngine(gen, ret, tr, WithClock(func() time.Time {
		return time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	}))
}

func utter(text string) *models.UtteranceReceived {
	return &models.UtteranceReceived{CallID: "CA1", Text: text}
}

func TestBeginCallActivatesSession(t *testing.T) {
	gen := &stubGenerator{reply: "Hello, thanks for calling Acme!"}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())

	res, err := e.BeginCall(context.Background(), s, testAgent())
	if err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}
	if s.Status != models.SessionStatusActive {
		t.Errorf("expected active status, got %q", s.Status)
	}
	if res.Reply == "" {
		t.Error("expected an opening reply")
	}
	if len(s.Messages) != 1 || s.Messages[0].Role != models.RoleAgent {
		t.Errorf("expected one agent message, got %v", s.Messages)
	}
}

func TestPhasesAdvanceForwardOnly(t *testing.T) {
	tracker, err := goals.NewTracker([]models.GoalDefinition{
		{ID: "booking", RequiredFields: []string{"date"}},
	})
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	gen := &stubGenerator{}
	e := newEngine(gen, nil, tracker)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	agent := testAgent()
	agent.GoalIDs = []string{"booking"}
	ctx := context.Background()

	if _, err := e.BeginCall(ctx, s, agent); err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}

	if _, err := e.ProcessTurn(ctx, s, agent, utter("hi there")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase != models.PhaseDiscovery {
		t.Fatalf("expected discovery after first turn, got %q", s.State.Phase)
	}

	if _, err := e.ProcessTurn(ctx, s, agent, utter("can we do tomorrow?")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase != models.PhaseResolution {
		t.Fatalf("expected resolution once the goal is half done, got %q", s.State.Phase)
	}

	if _, err := e.ProcessTurn(ctx, s, agent, utter("great, thanks")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase != models.PhaseClosing {
		t.Fatalf("expected closing once every goal is complete, got %q", s.State.Phase)
	}

	// Closing is terminal: more turns never move the phase back.
	if _, err := e.ProcessTurn(ctx, s, agent, utter("one more thing about my invoice")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase != models.PhaseClosing {
		t.Errorf("phase must not move backward, got %q", s.State.Phase)
	}
}

func TestDiscoveryHoldsWithoutGoalProgress(t *testing.T) {
	gen := &stubGenerator{}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive
	agent := testAgent()
	ctx := context.Background()

	// Chatty turns with nothing collected keep the call in discovery.
	for _, text := range []string{"hi there", "hmm, let me think", "just a moment"} {
		if _, err := e.ProcessTurn(ctx, s, agent, utter(text)); err != nil {
			t.Fatalf("turn failed: %v", err)
		}
	}
	if s.State.Phase != models.PhaseDiscovery {
		t.Fatalf("expected discovery to hold without goal progress, got %q", s.State.Phase)
	}

	// Past the configured turn limit, discovery gives way regardless.
	e2 := NewEngine(gen, nil, nil, WithDiscoveryTurnLimit(3))
	s2 := models.NewCallSession("CA2", "+15550100", time.Now())
	s2.Status = models.SessionStatusActive
	for _, text := range []string{"hi there", "hmm, let me think", "just a moment", "still here"} {
		if _, err := e2.ProcessTurn(ctx, s2, agent, utter(text)); err != nil {
			t.Fatalf("turn failed: %v", err)
		}
	}
	if s2.State.Phase != models.PhaseResolution {
		t.Errorf("expected resolution past the turn limit, got %q", s2.State.Phase)
	}
}

func TestClosingWaitsForAllGoals(t *testing.T) {
	tracker, err := goals.NewTracker([]models.GoalDefinition{
		{ID: "booking", RequiredFields: []string{"date"}},
		{ID: "callback", RequiredFields: []string{"phone"}},
	})
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	gen := &stubGenerator{}
	e := newEngine(gen, nil, tracker)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	agent := testAgent()
	agent.GoalIDs = []string{"booking", "callback"}
	ctx := context.Background()

	if _, err := e.BeginCall(ctx, s, agent); err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}
	if _, err := e.ProcessTurn(ctx, s, agent, utter("hi there")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	res, err := e.ProcessTurn(ctx, s, agent, utter("can we do tomorrow?"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if len(res.CompletedGoals) != 1 || res.CompletedGoals[0] != "booking" {
		t.Fatalf("expected booking to complete, got %v", res.CompletedGoals)
	}
	if s.State.Phase != models.PhaseResolution {
		t.Fatalf("expected resolution, got %q", s.State.Phase)
	}

	// One of two goals done must not end the call.
	if _, err := e.ProcessTurn(ctx, s, agent, utter("sure, whatever works")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase == models.PhaseClosing {
		t.Fatal("call must not close while a goal is still collecting")
	}

	if _, err := e.ProcessTurn(ctx, s, agent, utter("you can reach me at 555-123-4567")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if s.State.Phase != models.PhaseClosing {
		t.Errorf("expected closing once both goals completed, got %q", s.State.Phase)
	}
}

func TestProcessTurnRejectsEndedSession(t *testing.T) {
	e := newEngine(&stubGenerator{}, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusEnded

	if _, err := e.ProcessTurn(context.Background(), s, testAgent(), utter("hello?")); err != models.ErrSessionEnded {
		t.Errorf("expected ErrSessionEnded, got %v", err)
	}
}

func TestProcessTurnEnforcesTurnCeiling(t *testing.T) {
	e := NewEngine(&stubGenerator{}, nil, nil, WithMaxTurns(2))
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive
	agent := testAgent()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.ProcessTurn(ctx, s, agent, utter("hello")); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}
	if _, err := e.ProcessTurn(ctx, s, agent, utter("hello")); err != models.ErrTurnAborted {
		t.Errorf("expected ErrTurnAborted past the ceiling, got %v", err)
	}
}

func TestGenerationFailureDegrades(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive

	res, err := e.ProcessTurn(context.Background(), s, testAgent(), utter("hello"))
	if err != nil {
		t.Fatalf("degraded turn must not fail: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded result")
	}
	if res.Reply == "" {
		t.Error("expected a holding line reply")
	}
}

func TestDirectiveTemperature(t *testing.T) {
	gen := &stubGenerator{}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive
	ctx := context.Background()

	res, err := e.ProcessTurn(ctx, s, testAgent(), utter("hi"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if res.Directive.Temperature != 0.8 {
		t.Errorf("expected 0.8 in discovery, got %f", res.Directive.Temperature)
	}

	// An upset caller drops the temperature regardless of phase.
	res, err = e.ProcessTurn(ctx, s, testAgent(), utter("this is terrible, I'm really frustrated"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if res.Directive.Temperature != 0.5 {
		t.Errorf("expected 0.5 for negative sentiment, got %f", res.Directive.Temperature)
	}
}

func TestDirectiveCarriesKnowledge(t *testing.T) {
	gen := &stubGenerator{}
	ret := &stubRetriever{snippets: []models.KnowledgeSnippet{
		{DocumentID: "d1", Content: "Store hours are 9 to 5."},
	}}
	e := newEngine(gen, ret, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive

	res, err := e.ProcessTurn(context.Background(), s, testAgent(), utter("when are you open?"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if len(ret.queries) != 1 || ret.queries[0] != "when are you open?" {
		t.Errorf("expected retrieval with the utterance, got %v", ret.queries)
	}
	if want := "Store hours are 9 to 5."; !contains(res.Directive.SystemContext, want) {
		t.Errorf("expected directive to carry the passage %q", want)
	}
}

func TestInterruptionShortensReply(t *testing.T) {
	gen := &stubGenerator{}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive
	ctx := context.Background()

	normal, err := e.ProcessTurn(ctx, s, testAgent(), utter("hi"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	interrupted, err := e.ProcessTurn(ctx, s, testAgent(), &models.UtteranceReceived{
		CallID: "CA1", Text: "wait, stop", PlaybackRemaining: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !interrupted.Interrupted {
		t.Fatal("expected barge-in to be detected")
	}
	if interrupted.Directive.MaxTokens >= normal.Directive.MaxTokens {
		t.Errorf("expected interrupted budget %d below normal %d",
			interrupted.Directive.MaxTokens, normal.Directive.MaxTokens)
	}
}

func TestEngineOptionsConfigureBounds(t *testing.T) {
	gen := &stubGenerator{}
	e := NewEngine(gen, nil, nil,
		WithInterruptionWindow(5*time.Second),
		WithSentimentWindow(2),
		WithTopicDepth(1),
	)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	agent := testAgent()
	ctx := context.Background()

	if _, err := e.BeginCall(ctx, s, agent); err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}
	if s.State.SentimentWindow != 2 || s.State.TopicDepth != 1 {
		t.Errorf("expected bounds on session state, got window=%d depth=%d",
			s.State.SentimentWindow, s.State.TopicDepth)
	}

	// Inside the widened window, unmarked speech is turn-taking, not a barge-in.
	res, err := e.ProcessTurn(ctx, s, agent, &models.UtteranceReceived{
		CallID: "CA1", Text: "tell me more", PlaybackRemaining: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if res.Interrupted {
		t.Error("expected speech inside the widened window to pass as turn-taking")
	}
}

func TestContextBudgetLimitsKnowledge(t *testing.T) {
	ret := &stubRetriever{snippets: []models.KnowledgeSnippet{
		{DocumentID: "d1", Content: "Store hours are 9 to 5.", TokenCost: 500},
	}}
	e := NewEngine(&stubGenerator{}, ret, nil, WithContextTokenBudget(50))
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive

	res, err := e.ProcessTurn(context.Background(), s, testAgent(), utter("when are you open?"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if contains(res.Directive.SystemContext, "Store hours") {
		t.Error("expected the snippet to be dropped under a tight context budget")
	}
}

func TestGoalQuestionInDirective(t *testing.T) {
	tracker, err := goals.NewTracker([]models.GoalDefinition{
		{ID: "booking", RequiredFields: []string{"date"}},
	})
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	gen := &stubGenerator{}
	e := newEngine(gen, nil, tracker)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	agent := testAgent()
	agent.GoalIDs = []string{"booking"}

	if _, err := e.BeginCall(context.Background(), s, agent); err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}
	res, err := e.ProcessTurn(context.Background(), s, agent, utter("I'd like to book something"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !contains(res.Directive.SystemContext, "What day works best for you?") {
		t.Error("expected the directive to carry the goal question")
	}
}

func TestSummaryFallsBackOnError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	e := newEngine(gen, nil, nil)
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.State.TurnCount = 4
	s.State.PushTopic("billing")

	summary := e.Summary(context.Background(), s)
	if summary == "" {
		t.Fatal("expected a fallback summary")
	}
	if !contains(summary, "billing") {
		t.Errorf("expected fallback summary to mention the topic, got %q", summary)
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

type alwaysNegativeClassifier struct{}

func (alwaysNegativeClassifier) Classify(text string) models.Sentiment {
	return models.SentimentNegative
}

func TestClassifierIsPluggable(t *testing.T) {
	gen := &stubGenerator{}
	e := NewEngine(gen, nil, nil, WithClassifier(alwaysNegativeClassifier{}))
	s := models.NewCallSession("CA1", "+15550100", time.Now())
	s.Status = models.SessionStatusActive

	res, err := e.ProcessTurn(context.Background(), s, testAgent(), utter("a perfectly calm sentence"))
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if res.Directive.Temperature != 0.5 {
		t.Errorf("expected the swapped classifier to drive temperature, got %f", res.Directive.Temperature)
	}
	if got := s.State.DominantSentiment(); got != models.SentimentNegative {
		t.Errorf("expected negative sentiment recorded, got %q", got)
	}
}
