package flow

import (
	"fmt"
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// Per-phase reply token budgets. Opening and closing turns stay short; the
// working phases get room to explain.
const (
	greetingTokens   = 80
	discoveryTokens  = 120
	resolutionTokens = 150
	closingTokens    = 80
)

// phaseInstructions steer the model's behavior per phase.
var phaseInstructions = map[models.Phase]string{
	models.PhaseGreeting:   "Greet the caller warmly in one or two short sentences and ask how you can help.",
	models.PhaseDiscovery:  "Ask focused questions to understand what the caller needs. One question at a time.",
	models.PhaseResolution: "Work the caller's request. Be concrete and specific. Confirm details back to the caller.",
	models.PhaseClosing:    "Wrap up the call. Confirm anything agreed, thank the caller, and say goodbye briefly.",
}

// buildDirective assembles the system context and sampling parameters for one
// turn. It is a pure function of the session state and its inputs.
func (e *Engine) buildDirective(session *models.CallSession, agent *models.AgentConfig, snippets []models.KnowledgeSnippet, nextQuestion string, interrupted bool) models.Directive {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	b.WriteString("\n\nYou are speaking on a live phone call. Keep replies short and natural for speech; never use lists, markdown, or URLs.")

	b.WriteString(fmt.Sprintf("\n\nConversation phase: %s. %s", session.State.Phase, phaseInstructions[session.State.Phase]))

	if sentiment := session.State.DominantSentiment(); sentiment == models.SentimentNegative {
		b.WriteString("\nThe caller sounds frustrated. Acknowledge their frustration, stay calm, and keep replies brief and direct.")
	} else if sentiment == models.SentimentPositive {
		b.WriteString("\nThe caller sounds pleased. Match their energy.")
	}

	if topic := session.State.CurrentTopic(); topic != "" {
		b.WriteString("\nCurrent topic: " + topic + ".")
		if len(session.State.Topics) > 1 {
			b.WriteString(" Earlier topics: " + strings.Join(session.State.Topics[1:], ", ") + ".")
		}
	}

	if interrupted {
		b.WriteString("\nThe caller interrupted your last reply. Stop that thread, acknowledge them briefly, and address what they just said.")
	}

	// Pack snippets under whatever room the context budget leaves. Snippets
	// arrive ordered by relevance, so stopping at the first overflow keeps the
	// best ones.
	if len(snippets) > 0 {
		remaining := e.contextBudget - estimateTokens(b.Len())
		wroteHeader := false
		for _, s := range snippets {
			cost := s.TokenCost
			if cost <= 0 {
				cost = estimateTokens(len(s.Content))
			}
			if cost > remaining {
				break
			}
			if !wroteHeader {
				b.WriteString("\n\nReference information (use only what is relevant):")
				wroteHeader = true
			}
			b.WriteString("\n- " + s.Content)
			remaining -= cost
		}
	}

	if nextQuestion != "" {
		b.WriteString("\n\nYou still need information from the caller. When it fits naturally, ask: " + nextQuestion)
	}

	return models.Directive{
		SystemContext: b.String(),
		MaxTokens:     e.tokenBudget(session, interrupted),
		Temperature:   e.temperature(session),
		Emotion:       replyEmotion(session, agent),
	}
}

// estimateTokens approximates token count from byte length at four bytes per
// token, the same estimate the knowledge retriever uses for snippet cost.
func estimateTokens(byteLen int) int {
	return byteLen / 4
}

// tokenBudget picks the reply length cap for the current turn. Barge-in
// replies are halved so the agent yields the floor quickly.
func (e *Engine) tokenBudget(session *models.CallSession, interrupted bool) int {
	var budget int
	switch session.State.Phase {
	case models.PhaseGreeting:
		budget = greetingTokens
	case models.PhaseDiscovery:
		budget = discoveryTokens
	case models.PhaseResolution:
		budget = resolutionTokens
	default:
		budget = closingTokens
	}
	if interrupted {
		budget /= 2
	}
	return budget
}

// temperature picks the sampling temperature: exploratory early in the call,
// steadier once resolving, and lowest when the caller is upset.
func (e *Engine) temperature(session *models.CallSession) float64 {
	if session.State.DominantSentiment() == models.SentimentNegative {
		return 0.5
	}
	switch session.State.Phase {
	case models.PhaseResolution, models.PhaseClosing:
		return 0.6
	default:
		return 0.8
	}
}

// replyEmotion picks the synthesis emotion for the reply: empathetic toward
// an upset caller, cheerful toward a happy one, otherwise the agent default.
func replyEmotion(session *models.CallSession, agent *models.AgentConfig) string {
	switch session.State.DominantSentiment() {
	case models.SentimentNegative:
		return "empathetic"
	case models.SentimentPositive:
		return "cheerful"
	default:
		if agent.DefaultEmotion != "" {
			return agent.DefaultEmotion
		}
		return "neutral"
	}
}
