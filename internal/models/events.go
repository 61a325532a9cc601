package models

import "time"

// CallStarted is the inbound event for a new call reaching the platform.
type CallStarted struct {
	CallID        string    `json:"call_id"`
	CallerAddress string    `json:"caller_address"`
	InitialSpeech string    `json:"initial_speech,omitempty"` // first utterance, when the gateway batches it
	ReceivedAt    time.Time `json:"received_at"`
}

// Validate checks the event's required fields.
func (e *CallStarted) Validate() error {
	if e.CallID == "" {
		return ErrEmptyCallID
	}
	if e.CallerAddress == "" {
		return ErrEmptyCallerAddress
	}
	return nil
}

// UtteranceReceived is the inbound event for one transcribed caller utterance.
type UtteranceReceived struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
	// PlaybackRemaining is how much of the agent's previous reply was still
	// playing when the caller spoke. Zero means the reply had finished.
	PlaybackRemaining time.Duration `json:"playback_remaining,omitempty"`
	ReceivedAt        time.Time     `json:"received_at"`
}

// Validate checks the event's required fields.
func (e *UtteranceReceived) Validate() error {
	if e.CallID == "" {
		return ErrEmptyCallID
	}
	if e.Text == "" {
		return ErrEmptyUtterance
	}
	return nil
}

// CallEnded is the inbound event for a call leaving the platform.
type CallEnded struct {
	CallID     string    `json:"call_id"`
	Reason     string    `json:"reason,omitempty"` // e.g. "completed", "hangup", "error"
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks the event's required fields.
func (e *CallEnded) Validate() error {
	if e.CallID == "" {
		return ErrEmptyCallID
	}
	return nil
}

// EventType identifies an outbound platform event.
type EventType string

const (
	// EventSessionReaped fires when the reaper closes an idle session.
	EventSessionReaped EventType = "session_reaped"
	// EventGoalCompleted fires exactly once per goal when it reaches 100%.
	EventGoalCompleted EventType = "goal_completed"
	// EventCallSummary fires after a call ends with the wrap-up summary.
	EventCallSummary EventType = "call_summary"
)

// Event is an outbound platform event delivered to registered consumers.
type Event struct {
	Type      EventType   `json:"type"`
	CallID    string      `json:"call_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SessionReapedPayload carries the detail of a reaped session.
type SessionReapedPayload struct {
	CallerAddress string        `json:"caller_address"`
	AgentID       string        `json:"agent_id,omitempty"`
	IdleFor       time.Duration `json:"idle_for"`
	TurnCount     int           `json:"turn_count"`
}

// GoalCompletedPayload carries the detail of a completed goal.
type GoalCompletedPayload struct {
	GoalID    string            `json:"goal_id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Collected map[string]string `json:"collected"`
}

// CallSummaryPayload carries the post-call wrap-up.
type CallSummaryPayload struct {
	Summary   string        `json:"summary"`
	AgentID   string        `json:"agent_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	TurnCount int           `json:"turn_count"`
	EndReason string        `json:"end_reason,omitempty"`
}
