package router

import (
	"testing"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

func testAgents() []models.AgentConfig {
	return []models.AgentConfig{
		{
			ID:           "billing",
			SystemPrompt: "You handle billing.",
			Priority:     1,
			Keywords: []models.Keyword{
				{Word: "invoice", Weight: 1.0},
				{Word: "refund", Weight: 1.0},
				{Word: "charge", Weight: 1.0},
			},
		},
		{
			ID:           "support",
			SystemPrompt: "You handle support.",
			Priority:     2,
			Keywords: []models.Keyword{
				{Word: "broken", Weight: 1.0},
				{Word: "help", Weight: 0.5},
			},
		},
		{
			ID:           "general",
			SystemPrompt: "You handle everything else.",
			Fallback:     true,
		},
	}
}

func TestNewRequiresFallback(t *testing.T) {
	agents := testAgents()[:2]
	if _, err := New(agents); err != models.ErrNoFallbackAgent {
		t.Errorf("expected ErrNoFallbackAgent, got %v", err)
	}
}

func TestNewRejectsDuplicateFallback(t *testing.T) {
	agents := append(testAgents(), models.AgentConfig{ID: "general2", SystemPrompt: "p", Fallback: true})
	if _, err := New(agents); err != models.ErrNoFallbackAgent {
		t.Errorf("expected ErrNoFallbackAgent for duplicate fallback, got %v", err)
	}
}

func TestRouteKeywordMatch(t *testing.T) {
	r, err := New(testAgents())
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}

	decision := r.Route("I need a refund for this invoice")
	if decision.AgentID != "billing" {
		t.Errorf("expected billing, got %q", decision.AgentID)
	}
	if decision.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 for two full-weight matches, got %f", decision.Confidence)
	}
	if len(decision.MatchedKeywords) != 2 {
		t.Errorf("expected 2 matched keywords, got %v", decision.MatchedKeywords)
	}
	if decision.Fallback {
		t.Error("keyword route must not be marked fallback")
	}
}

func TestRouteNoMatchUsesFallback(t *testing.T) {
	r, err := New(testAgents())
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}

	decision := r.Route("good morning")
	if decision.AgentID != "general" {
		t.Errorf("expected fallback agent, got %q", decision.AgentID)
	}
	if decision.Confidence != 0 {
		t.Errorf("expected confidence 0 on fallback, got %f", decision.Confidence)
	}
	if !decision.Fallback {
		t.Error("expected decision to be marked fallback")
	}
}

func TestRouteEmptyTextUsesFallback(t *testing.T) {
	r, err := New(testAgents())
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("")
	if decision.AgentID != "general" || decision.Confidence != 0 {
		t.Errorf("expected fallback with confidence 0, got %q %f", decision.AgentID, decision.Confidence)
	}
}

func TestRouteBelowThresholdUsesFallback(t *testing.T) {
	agents := []models.AgentConfig{
		{ID: "weak", SystemPrompt: "p", Keywords: []models.Keyword{{Word: "maybe", Weight: 0.1}}},
		{ID: "general", SystemPrompt: "p", Fallback: true},
	}
	r, err := New(agents)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("maybe later")
	if decision.AgentID != "general" {
		t.Errorf("expected sub-threshold match to fall back, got %q", decision.AgentID)
	}
}

func TestRouteCustomThreshold(t *testing.T) {
	agents := []models.AgentConfig{
		{ID: "weak", SystemPrompt: "p", Keywords: []models.Keyword{{Word: "maybe", Weight: 0.1}}},
		{ID: "general", SystemPrompt: "p", Fallback: true},
	}
	r, err := New(agents, WithConfidenceThreshold(0.05))
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("maybe later")
	if decision.AgentID != "weak" {
		t.Errorf("expected lowered threshold to admit weak match, got %q", decision.AgentID)
	}
}

func TestRouteTieBreakByPriority(t *testing.T) {
	agents := []models.AgentConfig{
		{ID: "first", SystemPrompt: "p", Priority: 1, Keywords: []models.Keyword{{Word: "order", Weight: 1.0}}},
		{ID: "second", SystemPrompt: "p", Priority: 5, Keywords: []models.Keyword{{Word: "order", Weight: 1.0}}},
		{ID: "general", SystemPrompt: "p", Fallback: true},
	}
	r, err := New(agents)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("where is my order")
	if decision.AgentID != "second" {
		t.Errorf("expected higher priority agent to win the tie, got %q", decision.AgentID)
	}
}

func TestRouteTieBreakByDeclarationOrder(t *testing.T) {
	agents := []models.AgentConfig{
		{ID: "first", SystemPrompt: "p", Priority: 3, Keywords: []models.Keyword{{Word: "order", Weight: 1.0}}},
		{ID: "second", SystemPrompt: "p", Priority: 3, Keywords: []models.Keyword{{Word: "order", Weight: 1.0}}},
		{ID: "general", SystemPrompt: "p", Fallback: true},
	}
	r, err := New(agents)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("where is my order")
	if decision.AgentID != "first" {
		t.Errorf("expected earlier declared agent to win the tie, got %q", decision.AgentID)
	}
}

func TestRouteDeterministic(t *testing.T) {
	r, err := New(testAgents())
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	text := "my charge is broken, help me with a refund"
	first := r.Route(text)
	for i := 0; i < 50; i++ {
		again := r.Route(text)
		if again.AgentID != first.AgentID || again.Confidence != first.Confidence {
			t.Fatalf("routing not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestRouteCaseInsensitive(t *testing.T) {
	r, err := New(testAgents())
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("I want a REFUND")
	if decision.AgentID != "billing" {
		t.Errorf("expected case-insensitive match, got %q", decision.AgentID)
	}
}

func TestRouteConfidenceClamped(t *testing.T) {
	agents := []models.AgentConfig{
		{ID: "heavy", SystemPrompt: "p", Keywords: []models.Keyword{{Word: "urgent", Weight: 5.0}}},
		{ID: "general", SystemPrompt: "p", Fallback: true},
	}
	r, err := New(agents)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	decision := r.Route("this is urgent")
	if decision.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %f", decision.Confidence)
	}
}
