package models

import "time"

// GoalStatus represents the progress status of a goal within a session.
type GoalStatus string

const (
	// GoalStatusInProgress indicates the goal is still collecting fields.
	GoalStatusInProgress GoalStatus = "in_progress"
	// GoalStatusComplete indicates every required field has been collected.
	// Complete is terminal; a goal never leaves this status.
	GoalStatusComplete GoalStatus = "complete"
	// GoalStatusAbandoned indicates the call ended before the goal
	// completed. Set when the session closes or is reaped.
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// IsValidGoalStatus checks if the given goal status is supported.
func IsValidGoalStatus(s GoalStatus) bool {
	switch s {
	case GoalStatusInProgress, GoalStatusComplete, GoalStatusAbandoned:
		return true
	default:
		return false
	}
}

// GoalDefinition describes one data-collection goal an agent pursues, e.g.
// booking an appointment or qualifying a lead.
type GoalDefinition struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields,omitempty"`
	// PromptHints maps a field name to the question the agent should ask
	// for it when the generic question would be awkward.
	PromptHints map[string]string `json:"prompt_hints,omitempty"`
}

// Validate checks the definition's required fields.
func (g *GoalDefinition) Validate() error {
	if g.ID == "" {
		return ErrGoalNotFound
	}
	return nil
}

// GoalProgress tracks one goal's collected fields within a session.
type GoalProgress struct {
	GoalID      string            `json:"goal_id"`
	Status      GoalStatus        `json:"status"`
	Collected   map[string]string `json:"collected"` // field name -> extracted value
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// NewGoalProgress starts tracking for the given goal definition.
func NewGoalProgress(goalID string) *GoalProgress {
	return &GoalProgress{
		GoalID:    goalID,
		Status:    GoalStatusInProgress,
		Collected: make(map[string]string),
	}
}

// Completion returns the fraction of required fields collected, in [0, 1].
// A goal with no required fields is complete by definition.
func (p *GoalProgress) Completion(def *GoalDefinition) float64 {
	if len(def.RequiredFields) == 0 {
		return 1
	}
	var have int
	for _, f := range def.RequiredFields {
		if _, ok := p.Collected[f]; ok {
			have++
		}
	}
	return float64(have) / float64(len(def.RequiredFields))
}

// MissingFields returns the required fields not yet collected, in the
// definition's declared order.
func (p *GoalProgress) MissingFields(def *GoalDefinition) []string {
	var missing []string
	for _, f := range def.RequiredFields {
		if _, ok := p.Collected[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
