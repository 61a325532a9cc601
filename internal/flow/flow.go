// Package flow implements the conversation engine that drives a call turn by
// turn. It advances the phase machine, reads caller sentiment, tracks topics,
// detects barge-ins, assembles the per-turn directive for the language model,
// and shapes the reply for speech playback.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/goals"
	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/tone"
)

// Generator produces a reply from a conversation history under a directive.
type Generator interface {
	Generate(ctx context.Context, directive models.Directive, history []models.Message) (string, error)
}

// Retriever fetches reference passages for prompt grounding.
type Retriever interface {
	Retrieve(ctx context.Context, query string, domainIDs []string) []models.KnowledgeSnippet
}

// GoalTracker folds caller utterances into goal progress.
type GoalTracker interface {
	Begin(session *models.CallSession, goalIDs []string)
	Process(session *models.CallSession, text string) goals.Result
}

// DefaultMaxTurns ends a call after this many caller turns when the agent
// configuration does not set its own limit.
const DefaultMaxTurns = 50

// DefaultDiscoveryTurnLimit is the turn count after which discovery gives way
// to resolution even without goal progress.
const DefaultDiscoveryTurnLimit = 6

// DefaultContextTokenBudget caps the estimated token size of the assembled
// directive context, bounding how much retrieved knowledge gets packed in.
const DefaultContextTokenBudget = 2000

// TurnResult is the outcome of processing one caller utterance.
type TurnResult struct {
	Reply          string           // voice-optimized reply text
	Directive      models.Directive // the directive the reply was generated under
	Interrupted    bool             // the utterance was a barge-in
	CompletedGoals []string         // goal ids that completed on this turn
	Degraded       bool             // a collaborator failed and the turn degraded
}

// Opts holds configuration options for creating an Engine.
type Opts struct {
	// MaxTurns overrides DefaultMaxTurns when > 0.
	MaxTurns int
	// DiscoveryTurnLimit overrides DefaultDiscoveryTurnLimit when > 0.
	DiscoveryTurnLimit int
	// InterruptionWindow overrides DefaultInterruptionWindow when > 0.
	InterruptionWindow time.Duration
	// SentimentWindow overrides models.DefaultSentimentWindowSize when > 0.
	SentimentWindow int
	// TopicDepth overrides models.DefaultTopicStackDepth when > 0.
	TopicDepth int
	// ContextTokenBudget overrides DefaultContextTokenBudget when > 0.
	ContextTokenBudget int
	// Classifier overrides the default lexicon sentiment classifier.
	Classifier tone.Classifier
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Option configures an Engine.
type Option func(*Opts)

// WithMaxTurns sets the per-call turn ceiling.
func WithMaxTurns(n int) Option {
	return func(o *Opts) { o.MaxTurns = n }
}

// WithDiscoveryTurnLimit sets how many turns discovery may run before the
// phase advances regardless of goal progress.
func WithDiscoveryTurnLimit(n int) Option {
	return func(o *Opts) { o.DiscoveryTurnLimit = n }
}

// WithInterruptionWindow sets the playback tail inside which caller speech
// needs an interruption marker to count as a barge-in.
func WithInterruptionWindow(d time.Duration) Option {
	return func(o *Opts) { o.InterruptionWindow = d }
}

// WithSentimentWindow sets the per-session sentiment window size.
func WithSentimentWindow(n int) Option {
	return func(o *Opts) { o.SentimentWindow = n }
}

// WithTopicDepth sets the per-session topic stack bound.
func WithTopicDepth(n int) Option {
	return func(o *Opts) { o.TopicDepth = n }
}

// WithContextTokenBudget sets the estimated token ceiling for the directive
// context.
func WithContextTokenBudget(n int) Option {
	return func(o *Opts) { o.ContextTokenBudget = n }
}

// WithClassifier swaps in a different sentiment classifier.
func WithClassifier(c tone.Classifier) Option {
	return func(o *Opts) { o.Classifier = c }
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Engine runs the per-turn conversation pipeline. It holds no per-call state;
// all mutable state lives on the session, which arrives already serialized by
// the session registry.
type Engine struct {
	generator          Generator
	retriever          Retriever
	tracker            GoalTracker
	classifier         tone.Classifier
	maxTurns           int
	discoveryTurnLimit int
	interruptWindow    time.Duration
	sentimentWindow    int
	topicDepth         int
	contextBudget      int
	now                func() time.Time
}

// NewEngine creates a conversation engine. retriever and tracker may be nil,
// in which case the corresponding pipeline stages are skipped.
func NewEngine(generator Generator, retriever Retriever, tracker GoalTracker, opts ...Option) *Engine {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	maxTurns := DefaultMaxTurns
	if options.MaxTurns > 0 {
		maxTurns = options.MaxTurns
	}
	discoveryTurnLimit := DefaultDiscoveryTurnLimit
	if options.DiscoveryTurnLimit > 0 {
		discoveryTurnLimit = options.DiscoveryTurnLimit
	}
	contextBudget := DefaultContextTokenBudget
	if options.ContextTokenBudget > 0 {
		contextBudget = options.ContextTokenBudget
	}
	classifier := options.Classifier
	if classifier == nil {
		classifier = tone.NewLexiconClassifier()
	}
	now := time.Now
	if options.Clock != nil {
		now = options.Clock
	}
	return &Engine{
		generator:          generator,
		retriever:          retriever,
		tracker:            tracker,
		classifier:         classifier,
		maxTurns:           maxTurns,
		discoveryTurnLimit: discoveryTurnLimit,
		interruptWindow:    options.InterruptionWindow,
		sentimentWindow:    options.SentimentWindow,
		topicDepth:         options.TopicDepth,
		contextBudget:      contextBudget,
		now:                now,
	}
}

// BeginCall prepares a freshly routed session: it attaches the agent's goals
// and produces the opening reply.
func (e *Engine) BeginCall(ctx context.Context, session *models.CallSession, agent *models.AgentConfig) (TurnResult, error) {
	if e.tracker != nil && len(agent.GoalIDs) > 0 {
		e.tracker.Begin(session, agent.GoalIDs)
	}
	session.State.SentimentWindow = e.sentimentWindow
	session.State.TopicDepth = e.topicDepth
	directive := e.buildDirective(session, agent, nil, "", false)
	reply, degraded := e.generate(ctx, session, directive)
	session.Status = models.SessionStatusActive
	session.AppendMessage(models.Message{Role: models.RoleAgent, Text: reply, Timestamp: e.now()})
	return TurnResult{Reply: reply, Directive: directive, Degraded: degraded}, nil
}

// ProcessTurn runs the full pipeline for one caller utterance: sentiment,
// interruption detection, phase advance, goal extraction, knowledge
// retrieval, generation, and voice shaping.
func (e *Engine) ProcessTurn(ctx context.Context, session *models.CallSession, agent *models.AgentConfig, event *models.UtteranceReceived) (TurnResult, error) {
	if session.Status == models.SessionStatusEnded || session.Status == models.SessionStatusReaped {
		return TurnResult{}, models.ErrSessionEnded
	}

	maxTurns := e.maxTurns
	if agent.MaxTurns > 0 {
		maxTurns = agent.MaxTurns
	}
	if session.State.TurnCount >= maxTurns {
		slog.Info("Engine.ProcessTurn: turn ceiling reached", "callID", session.CallID, "turns", session.State.TurnCount)
		return TurnResult{}, models.ErrTurnAborted
	}

	interrupted := IsInterruption(e.interruptWindow, event.PlaybackRemaining, event.Text)
	sentiment := e.classifySentiment(event.Text)
	session.State.RecordSentiment(sentiment)
	session.State.Interrupted = interrupted
	session.State.TurnCount++

	if topic := DetectTopic(event.Text); topic != "" {
		session.State.PushTopic(topic)
	}

	var progress goals.Result
	if e.tracker != nil {
		progress = e.tracker.Process(session, event.Text)
	}

	session.AppendMessage(models.Message{
		Role:      models.RoleCaller,
		Text:      event.Text,
		Timestamp: e.now(),
		Extracted: progress.Extracted,
	})

	e.advancePhase(session, event.Text, progress)

	var snippets []models.KnowledgeSnippet
	if e.retriever != nil && len(agent.DomainIDs) > 0 {
		snippets = e.retriever.Retrieve(ctx, event.Text, agent.DomainIDs)
	}

	directive := e.buildDirective(session, agent, snippets, progress.NextQuestion, interrupted)
	reply, degraded := e.generate(ctx, session, directive)
	session.AppendMessage(models.Message{Role: models.RoleAgent, Text: reply, Timestamp: e.now()})

	slog.Debug("Engine.ProcessTurn: turn complete",
		"callID", session.CallID, "phase", session.State.Phase, "sentiment", sentiment,
		"interrupted", interrupted, "snippets", len(snippets), "degraded", degraded)

	return TurnResult{
		Reply:          reply,
		Directive:      directive,
		Interrupted:    interrupted,
		CompletedGoals: progress.CompletedNow,
		Degraded:       degraded,
	}, nil
}

// generate calls the language model and voice-optimizes the result. Model
// failures degrade to a canned holding line rather than failing the turn.
func (e *Engine) generate(ctx context.Context, session *models.CallSession, directive models.Directive) (string, bool) {
	reply, err := e.generator.Generate(ctx, directive, session.Messages)
	if err != nil {
		slog.Warn("Engine.generate: generation failed, using holding line", "callID", session.CallID, "error", err)
		return degradedReply(session.State.Phase), true
	}
	return OptimizeForVoice(reply), false
}

// degradedReply is the canned line used when generation fails outright.
func degradedReply(phase models.Phase) string {
	switch phase {
	case models.PhaseGreeting:
		return "Thanks for calling. How can I help you today?"
	case models.PhaseClosing:
		return "Thanks so much for calling. Goodbye."
	default:
		return "I'm sorry, I didn't quite catch that. Could you say that again?"
	}
}

// advancePhase moves the session's phase forward when its exit condition is
// met. Phases never move backward. Discovery ends once any goal is at least
// half complete or the discovery turn limit is exceeded; resolution ends only
// when every tracked goal is complete or the caller signals a wrap-up.
func (e *Engine) advancePhase(session *models.CallSession, text string, progress goals.Result) {
	state := &session.State
	switch state.Phase {
	case models.PhaseGreeting:
		// The first caller utterance ends the greeting.
		state.Phase = models.PhaseDiscovery
	case models.PhaseDiscovery:
		if progress.MaxCompletion >= 0.5 || state.TurnCount > e.discoveryTurnLimit {
			state.Phase = models.PhaseResolution
		}
	case models.PhaseResolution:
		if progress.AllComplete || hasClosingCue(text) {
			state.Phase = models.PhaseClosing
		}
	case models.PhaseClosing:
		// Terminal until the call ends.
	}
}

// closingCues are phrases that signal the caller is wrapping up.
var closingCues = []string{
	"goodbye", "bye bye", "that's all", "that is all", "nothing else",
	"that's everything", "have a good day", "i'm all set",
}

func hasClosingCue(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range closingCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// Summary produces the end-of-call wrap-up. Generation failures fall back to
// a synthesized summary built from session facts.
func (e *Engine) Summary(ctx context.Context, session *models.CallSession) string {
	directive := models.Directive{
		SystemContext: "Summarize this phone call in two or three sentences: the caller's need, what was resolved, and any follow-ups. Plain prose, no lists.",
		MaxTokens:     150,
		Temperature:   0.3,
	}
	summary, err := e.generator.Generate(ctx, directive, session.Messages)
	if err != nil {
		slog.Warn("Engine.Summary: generation failed, using fallback summary", "callID", session.CallID, "error", err)
		return fallbackSummary(session)
	}
	return strings.TrimSpace(summary)
}

func fallbackSummary(session *models.CallSession) string {
	topic := session.State.CurrentTopic()
	if topic == "" {
		topic = "a general inquiry"
	}
	return fmt.Sprintf("Call from %s handled over %d turns regarding %s. Final phase: %s.",
		session.CallerAddress, session.State.TurnCount, topic, session.State.Phase)
}
