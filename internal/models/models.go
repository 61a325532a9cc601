// Package models defines the core data structures for VoicePipe.
//
// It includes call sessions, agent configurations, conversation state, goal
// tracking records, and the inbound telephony event types shared across modules.
package models

import (
	"time"
)

// SessionStatus represents the lifecycle status of a call session.
type SessionStatus string

const (
	// SessionStatusCreated indicates the session exists but no turn has been processed.
	SessionStatusCreated SessionStatus = "created"
	// SessionStatusActive indicates at least one turn has been processed.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusEnded indicates the call completed or was hung up.
	SessionStatusEnded SessionStatus = "ended"
	// SessionStatusReaped indicates the session was force-closed after idling past the timeout.
	SessionStatusReaped SessionStatus = "reaped"
)

// IsValidSessionStatus checks if the given session status is supported.
func IsValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusCreated, SessionStatusActive, SessionStatusEnded, SessionStatusReaped:
		return true
	default:
		return false
	}
}

// MessageRole identifies the author of a message in the call transcript.
type MessageRole string

const (
	// RoleCaller is a transcribed caller utterance.
	RoleCaller MessageRole = "caller"
	// RoleAgent is a generated agent reply.
	RoleAgent MessageRole = "agent"
	// RoleSystem is an internally injected context message.
	RoleSystem MessageRole = "system"
)

// Message is one entry in a session's ordered transcript. Messages are
// append-only and never mutated after creation.
type Message struct {
	Role      MessageRole       `json:"role"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Extracted map[string]string `json:"extracted,omitempty"` // slot data pulled from this utterance
}

// Keyword is a weighted routing keyword on an agent configuration.
type Keyword struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// VoiceProfile describes how an agent's replies should sound.
type VoiceProfile struct {
	Provider string  `json:"provider,omitempty"` // preferred synthesis provider name
	Voice    string  `json:"voice"`              // provider voice id, e.g. "alloy"
	Speed    float64 `json:"speed,omitempty"`    // 0 means provider default
	Language string  `json:"language,omitempty"`
}

// AgentConfig describes one routable agent persona. Configurations are
// read-mostly and supplied by the persistence collaborator.
type AgentConfig struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Keywords       []Keyword    `json:"keywords"`
	Priority       int          `json:"priority"`
	SystemPrompt   string       `json:"system_prompt"`
	Voice          VoiceProfile `json:"voice"`
	DefaultEmotion string       `json:"default_emotion,omitempty"` // e.g. "warm", "neutral"
	DomainIDs      []string     `json:"domain_ids,omitempty"`      // assigned knowledge domains
	GoalIDs        []string     `json:"goal_ids,omitempty"`        // assigned goal definitions
	SMSTemplate    string       `json:"sms_template,omitempty"`
	MaxTurns       int          `json:"max_turns,omitempty"`
	Fallback       bool         `json:"fallback,omitempty"` // designated default agent
}

// Validate checks the agent invariant: every agent carries a non-empty keyword
// set except the designated fallback agent.
func (a *AgentConfig) Validate() error {
	if a.ID == "" {
		return ErrEmptyAgentID
	}
	if len(a.Keywords) == 0 && !a.Fallback {
		return ErrAgentWithoutKeywords
	}
	if a.SystemPrompt == "" {
		return ErrAgentWithoutPrompt
	}
	return nil
}

// TotalKeywordWeight returns the sum of the agent's keyword weights.
func (a *AgentConfig) TotalKeywordWeight() float64 {
	var total float64
	for _, k := range a.Keywords {
		total += k.Weight
	}
	return total
}

// CallSession is the isolated per-call mutable state unit. It is owned
// exclusively by the session registry and mutated only through serialized
// per-session operations; no two turns for the same call id are ever in
// flight concurrently.
type CallSession struct {
	CallID            string                   `json:"call_id"`
	CallerAddress     string                   `json:"caller_address"`
	AgentID           string                   `json:"agent_id,omitempty"`
	RoutingConfidence float64                  `json:"routing_confidence"`
	MatchedKeywords   []string                 `json:"matched_keywords,omitempty"`
	Status            SessionStatus            `json:"status"`
	CreatedAt         time.Time                `json:"created_at"`
	LastActivity      time.Time                `json:"last_activity"`
	Messages          []Message                `json:"messages"`
	State             ConversationState        `json:"state"`
	Goals             map[string]*GoalProgress `json:"goals,omitempty"` // keyed by goal id
	Summary           string                   `json:"summary,omitempty"`
	EndReason         string                   `json:"end_reason,omitempty"`
}

// NewCallSession creates a session in the created state with an initialized
// conversation state.
func NewCallSession(callID, callerAddress string, now time.Time) *CallSession {
	return &CallSession{
		CallID:        callID,
		CallerAddress: callerAddress,
		Status:        SessionStatusCreated,
		CreatedAt:     now,
		LastActivity:  now,
		State:         NewConversationState(),
		Goals:         make(map[string]*GoalProgress),
	}
}

// AppendMessage adds a message to the transcript in caller-observed order and
// bumps the activity timestamp.
func (s *CallSession) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
	if m.Timestamp.After(s.LastActivity) {
		s.LastActivity = m.Timestamp
	}
}

// IdleFor reports how long the session has been without activity as of now.
func (s *CallSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Duration reports the wall-clock length of the call as of now.
func (s *CallSession) Duration(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// CallerMessages returns the transcript restricted to caller utterances.
func (s *CallSession) CallerMessages() []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.Role == RoleCaller {
			out = append(out, m)
		}
	}
	return out
}

// SessionInfo is the read-only view of a session exposed by the admin API.
type SessionInfo struct {
	CallID            string        `json:"call_id"`
	CallerAddress     string        `json:"caller_address"`
	AgentID           string        `json:"agent_id,omitempty"`
	Status            SessionStatus `json:"status"`
	Phase             Phase         `json:"phase"`
	TurnCount         int           `json:"turn_count"`
	RoutingConfidence float64       `json:"routing_confidence"`
	CreatedAt         time.Time     `json:"created_at"`
	LastActivity      time.Time     `json:"last_activity"`
	MessageCount      int           `json:"message_count"`
}

// Info builds the admin view of the session.
func (s *CallSession) Info() SessionInfo {
	return SessionInfo{
		CallID:            s.CallID,
		CallerAddress:     s.CallerAddress,
		AgentID:           s.AgentID,
		Status:            s.Status,
		Phase:             s.State.Phase,
		TurnCount:         s.State.TurnCount,
		RoutingConfidence: s.RoutingConfidence,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.LastActivity,
		MessageCount:      len(s.Messages),
	}
}

// SMSLog records one follow-up SMS sent after a call.
type SMSLog struct {
	ID       string    `json:"id"`
	CallID   string    `json:"call_id"`
	To       string    `json:"to"`
	Body     string    `json:"body"`
	AgentID  string    `json:"agent_id"`
	Status   string    `json:"status"`
	SentAt   time.Time `json:"sent_at"`
	SMSSid   string    `json:"sms_sid,omitempty"`
	Template string    `json:"template,omitempty"`
}

// AudioRef identifies a synthesized audio asset the telephony gateway can
// fetch for playback.
type AudioRef struct {
	ID          string        `json:"id"`
	ContentType string        `json:"content_type"`
	Duration    time.Duration `json:"duration"`
	Provider    string        `json:"provider,omitempty"` // provider that rendered it
	Apology     bool          `json:"apology,omitempty"`  // true when this is the canned apology clip
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard JSON API response.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
