package models

// Phase represents the stage of a conversation. Phases only advance; a call
// never moves back to an earlier phase.
type Phase string

const (
	// PhaseGreeting is the opening stage of a call.
	PhaseGreeting Phase = "greeting"
	// PhaseDiscovery is the stage where the agent learns the caller's need.
	PhaseDiscovery Phase = "discovery"
	// PhaseResolution is the stage where the agent works the caller's request.
	PhaseResolution Phase = "resolution"
	// PhaseClosing is the wrap-up stage before hangup.
	PhaseClosing Phase = "closing"
)

// IsValidPhase checks if the given phase is supported.
func IsValidPhase(p Phase) bool {
	switch p {
	case PhaseGreeting, PhaseDiscovery, PhaseResolution, PhaseClosing:
		return true
	default:
		return false
	}
}

// phaseOrder maps each phase to its position in the forward-only sequence.
var phaseOrder = map[Phase]int{
	PhaseGreeting:   0,
	PhaseDiscovery:  1,
	PhaseResolution: 2,
	PhaseClosing:    3,
}

// After reports whether p comes strictly later in the sequence than other.
func (p Phase) After(other Phase) bool {
	return phaseOrder[p] > phaseOrder[other]
}

// Sentiment is a classified emotional read of one caller utterance.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValidSentiment checks if the given sentiment is supported.
func IsValidSentiment(s Sentiment) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}

// DefaultSentimentWindowSize is the number of recent sentiment readings
// retained per session when no override is set.
const DefaultSentimentWindowSize = 6

// DefaultTopicStackDepth bounds the number of remembered conversation topics
// when no override is set.
const DefaultTopicStackDepth = 5

// ConversationState is the flow engine's per-session working state. It lives
// inside CallSession and shares its serialization guarantee.
type ConversationState struct {
	Phase      Phase       `json:"phase"`
	Sentiments []Sentiment `json:"sentiments,omitempty"` // bounded window, oldest first
	Topics     []string    `json:"topics,omitempty"`     // stack, most recent first
	TurnCount  int         `json:"turn_count"`
	Interrupted bool       `json:"interrupted,omitempty"` // last turn was a barge-in

	// SentimentWindow and TopicDepth override the package defaults when
	// positive. They are set once at call start so the bounds survive
	// serialization along with the rest of the state.
	SentimentWindow int `json:"sentiment_window,omitempty"`
	TopicDepth      int `json:"topic_depth,omitempty"`
}

func (c *ConversationState) sentimentWindow() int {
	if c.SentimentWindow > 0 {
		return c.SentimentWindow
	}
	return DefaultSentimentWindowSize
}

func (c *ConversationState) topicDepth() int {
	if c.TopicDepth > 0 {
		return c.TopicDepth
	}
	return DefaultTopicStackDepth
}

// NewConversationState returns a state at the greeting phase.
func NewConversationState() ConversationState {
	return ConversationState{Phase: PhaseGreeting}
}

// RecordSentiment appends a sentiment reading, evicting the oldest entry once
// the window is full.
func (c *ConversationState) RecordSentiment(s Sentiment) {
	c.Sentiments = append(c.Sentiments, s)
	if w := c.sentimentWindow(); len(c.Sentiments) > w {
		c.Sentiments = c.Sentiments[len(c.Sentiments)-w:]
	}
}

// DominantSentiment returns the most frequent sentiment in the window.
// Ties resolve to the most recent reading among the tied values, and an empty
// window reads as neutral.
func (c *ConversationState) DominantSentiment() Sentiment {
	if len(c.Sentiments) == 0 {
		return SentimentNeutral
	}
	counts := make(map[Sentiment]int, 3)
	lastIndex := make(map[Sentiment]int, 3)
	for i, s := range c.Sentiments {
		counts[s]++
		lastIndex[s] = i
	}
	best := c.Sentiments[len(c.Sentiments)-1]
	for s, n := range counts {
		if n > counts[best] || (n == counts[best] && lastIndex[s] > lastIndex[best]) {
			best = s
		}
	}
	return best
}

// PushTopic puts topic on top of the stack. If the topic is already present
// it moves to the top instead of duplicating; when the stack is full the
// oldest topic falls off the bottom.
func (c *ConversationState) PushTopic(topic string) {
	if topic == "" {
		return
	}
	for i, t := range c.Topics {
		if t == topic {
			c.Topics = append(c.Topics[:i], c.Topics[i+1:]...)
			break
		}
	}
	c.Topics = append([]string{topic}, c.Topics...)
	if d := c.topicDepth(); len(c.Topics) > d {
		c.Topics = c.Topics[:d]
	}
}

// CurrentTopic returns the top of the topic stack, or "" when empty.
func (c *ConversationState) CurrentTopic() string {
	if len(c.Topics) == 0 {
		return ""
	}
	return c.Topics[0]
}

// Directive is the flow engine's instruction to the language model for one
// turn. It is a pure value; producing it performs no I/O.
type Directive struct {
	SystemContext string  `json:"system_context"`
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
	Emotion       string  `json:"emotion,omitempty"` // synthesis emotion hint for the reply
}

// RouteDecision is the router's verdict for one call opening.
type RouteDecision struct {
	AgentID         string   `json:"agent_id"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Fallback        bool     `json:"fallback"` // true when the decision fell through to the default agent
}
