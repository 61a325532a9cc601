// Package router selects the agent persona for an incoming call based on
// weighted keyword matches against the caller's opening speech.
//
// Scoring is a pure function of the configured agents and the input text:
// the same inputs always produce the same decision, and no I/O happens on
// the scoring path.
package router

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// DefaultConfidenceThreshold is the minimum confidence a scored agent needs
// to win the route; decisions below it fall through to the fallback agent.
const DefaultConfidenceThreshold = 0.3

// Opts holds configuration options for creating a Router.
type Opts struct {
	// ConfidenceThreshold overrides DefaultConfidenceThreshold when > 0.
	ConfidenceThreshold float64
}

// Option configures a Router.
type Option func(*Opts)

// WithConfidenceThreshold sets the minimum confidence for a keyword route.
func WithConfidenceThreshold(t float64) Option {
	return func(o *Opts) { o.ConfidenceThreshold = t }
}

// Router scores opening speech against agent keyword sets. It is safe for
// concurrent use; the agent list is immutable after construction.
type Router struct {
	agents    []models.AgentConfig // declaration order preserved for tie-breaks
	fallback  string               // fallback agent id
	threshold float64
}

// New creates a Router over the given agents. The set must contain exactly
// one agent marked as fallback, and every non-fallback agent must carry
// keywords.
func New(agents []models.AgentConfig, opts ...Option) (*Router, error) {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	threshold := DefaultConfidenceThreshold
	if options.ConfidenceThreshold > 0 {
		threshold = options.ConfidenceThreshold
	}

	var fallback string
	for i := range agents {
		if err := agents[i].Validate(); err != nil {
			return nil, err
		}
		if agents[i].Fallback {
			if fallback != "" {
				return nil, models.ErrNoFallbackAgent
			}
			fallback = agents[i].ID
		}
	}
	if fallback == "" {
		return nil, models.ErrNoFallbackAgent
	}

	slog.Debug("Router.New: router created", "agents", len(agents), "fallback", fallback, "threshold", threshold)
	return &Router{agents: append([]models.AgentConfig(nil), agents...), fallback: fallback, threshold: threshold}, nil
}

// agentScore is one agent's scored result for a piece of text.
type agentScore struct {
	index      int // declaration order
	agentID    string
	priority   int
	confidence float64
	matched    []string
}

// Route scores text against every agent and returns the winning decision.
// Empty or matchless text routes to the fallback agent with confidence 0.
func (r *Router) Route(text string) models.RouteDecision {
	scores := r.scoreAll(text)

	best := agentScore{index: -1}
	for _, s := range scores {
		if s.confidence < r.threshold {
			continue
		}
		if better(s, best) {
			best = s
		}
	}
	if best.index < 0 {
		slog.Debug("Router.Route: no agent above threshold, using fallback", "fallback", r.fallback)
		return models.RouteDecision{AgentID: r.fallback, Confidence: 0, Fallback: true}
	}

	slog.Debug("Router.Route: routed", "agentID", best.agentID, "confidence", best.confidence, "matched", best.matched)
	return models.RouteDecision{
		AgentID:         best.agentID,
		Confidence:      best.confidence,
		MatchedKeywords: best.matched,
	}
}

// better reports whether a should win over b: higher confidence first, then
// higher priority, then earlier declaration order.
func better(a, b agentScore) bool {
	if b.index < 0 {
		return true
	}
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.index < b.index
}

// scoreAll computes each agent's confidence for the given text.
func (r *Router) scoreAll(text string) []agentScore {
	lower := strings.ToLower(text)
	scores := make([]agentScore, 0, len(r.agents))
	for i, agent := range r.agents {
		var sum float64
		var matched []string
		for _, k := range agent.Keywords {
			if k.Word == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(k.Word)) {
				sum += k.Weight
				matched = append(matched, k.Word)
			}
		}
		confidence := 0.0
		if len(matched) > 0 {
			confidence = sum / float64(len(matched))
			if confidence > 1 {
				confidence = 1
			}
			if confidence < 0 {
				confidence = 0
			}
		}
		sort.Strings(matched)
		scores = append(scores, agentScore{
			index:      i,
			agentID:    agent.ID,
			priority:   agent.Priority,
			confidence: confidence,
			matched:    matched,
		})
	}
	return scores
}

// Fallback returns the id of the configured fallback agent.
func (r *Router) Fallback() string { return r.fallback }

// Threshold returns the effective confidence threshold.
func (r *Router) Threshold() float64 { return r.threshold }
