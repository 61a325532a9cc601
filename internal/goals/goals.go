// Package goals tracks data-collection goals across a call. Each goal
// declares the fields it needs; the tracker extracts field values from caller
// utterances and reports completion exactly once per goal.
package goals

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// fieldPatterns maps well-known field names to the expressions used to pull
// their values out of free-form speech transcriptions. Custom fields with no
// pattern here are only fillable through explicit extraction hints.
var fieldPatterns = map[string]*regexp.Regexp{
	"date":     regexp.MustCompile(`(?i)\b(today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december)\b(\s+\d{1,2}(st|nd|rd|th)?)?|\b\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?\b`),
	"time":     regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm|o'?clock)\b|\b(noon|midnight|morning|afternoon|evening)\b`),
	"email":    regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`),
	"phone":    regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
	"name":     regexp.MustCompile(`(?i)\b(?:my name is|i'm|i am|this is|call me)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	"company":  regexp.MustCompile(`(?i)\b(?:i work at|i'm with|i am with|from|at|company is)\s+([A-Z][A-Za-z0-9&\s]{1,40}?)(?:[.,]|$)`),
	"budget":   regexp.MustCompile(`(?i)\$\s?[\d,]+(\.\d{2})?(\s?k)?|\b[\d,]+\s?(dollars|bucks|grand|k)\b`),
	"timeline": regexp.MustCompile(`(?i)\b(asap|immediately|right away|(?:this|next)\s+(?:week|month|quarter|year)|within\s+\d+\s+(?:days?|weeks?|months?))\b`),
	"service":  regexp.MustCompile(`(?i)\b(consultation|appointment|meeting|session|checkup|review|demo|call)\b`),

	"company_size": regexp.MustCompile(`(?i)\b(\d+)\s*(?:employees?|people|staff)\b`),
	// decision_maker has no pattern; see extractDecisionMaker.
}

// submatchFields are fields whose pattern captures the value in group 1
// rather than the whole match.
var submatchFields = map[string]bool{
	"name":         true,
	"company":      true,
	"company_size": true,
}

// decisionMakerRoles are titles that mean the caller can sign off themselves.
var decisionMakerRoles = []string{"owner", "ceo", "president", "manager", "director", "head of"}

// genericQuestions supplies a follow-up question per well-known field when a
// goal definition carries no prompt hint for it.
var genericQuestions = map[string]string{
	"date":     "What day works best for you?",
	"time":     "What time would you prefer?",
	"email":    "What's the best email address to reach you?",
	"phone":    "What's a good phone number for you?",
	"name":     "May I have your name, please?",
	"company":  "What company are you with?",
	"budget":   "Do you have a budget in mind?",
	"timeline": "What timeline are you working with?",
	"service":  "What type of service are you looking for?",

	"company_size":   "Roughly how many people are at your company?",
	"decision_maker": "Will you be the one making the final decision?",
}

// Result reports the outcome of processing one utterance against a
// session's goals.
type Result struct {
	// Extracted holds the field values newly collected from this utterance.
	Extracted map[string]string
	// CompletedNow lists goals that crossed into complete on this update.
	// A goal appears here at most once over a session's lifetime.
	CompletedNow []string
	// NextQuestion is a suggested follow-up question for the first missing
	// required field of the first incomplete goal, or "".
	NextQuestion string
	// MaxCompletion is the highest completion fraction across the
	// session's tracked goals after this update.
	MaxCompletion float64
	// AllComplete is true when the session tracks at least one goal and
	// every tracked goal is complete.
	AllComplete bool
}

// Tracker extracts goal fields from utterances and maintains per-session
// progress. Tracker itself is stateless; progress lives in the session and
// is handed in on each call under the session's serialization guarantee.
type Tracker struct {
	definitions map[string]*models.GoalDefinition
	order       []string // declaration order, for stable question selection
}

// NewTracker creates a Tracker over the given goal definitions.
func NewTracker(defs []models.GoalDefinition) (*Tracker, error) {
	t := &Tracker{definitions: make(map[string]*models.GoalDefinition, len(defs))}
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, err
		}
		def := defs[i]
		t.definitions[def.ID] = &def
		t.order = append(t.order, def.ID)
	}
	return t, nil
}

// Definition returns the definition for the given goal id.
func (t *Tracker) Definition(goalID string) (*models.GoalDefinition, error) {
	def, ok := t.definitions[goalID]
	if !ok {
		return nil, models.ErrGoalNotFound
	}
	return def, nil
}

// Begin initializes progress entries for the given goal ids on a session.
// Unknown ids are skipped with a warning rather than failing the call.
func (t *Tracker) Begin(session *models.CallSession, goalIDs []string) {
	if session.Goals == nil {
		session.Goals = make(map[string]*models.GoalProgress)
	}
	for _, id := range goalIDs {
		if _, ok := t.definitions[id]; !ok {
			slog.Warn("Tracker.Begin: unknown goal id, skipping", "goalID", id, "callID", session.CallID)
			continue
		}
		if _, exists := session.Goals[id]; !exists {
			session.Goals[id] = models.NewGoalProgress(id)
		}
	}
}

// Process extracts field values from text and folds them into the session's
// goal progress. Completed goals are immutable: later utterances never alter
// their collected fields, and a goal id is reported in CompletedNow exactly
// once.
func (t *Tracker) Process(session *models.CallSession, text string) Result {
	res := Result{Extracted: make(map[string]string)}
	if strings.TrimSpace(text) == "" {
		res.NextQuestion = t.nextQuestion(session)
		res.MaxCompletion, res.AllComplete = t.progressSummary(session)
		return res
	}

	for _, goalID := range t.trackedOrder(session) {
		progress := session.Goals[goalID]
		if progress.Status == models.GoalStatusComplete {
			continue
		}
		def := t.definitions[goalID]

		for _, field := range append(append([]string{}, def.RequiredFields...), def.OptionalFields...) {
			if _, have := progress.Collected[field]; have {
				continue
			}
			value := extractField(field, text)
			if value == "" {
				continue
			}
			progress.Collected[field] = value
			res.Extracted[field] = value
		}

		if progress.Completion(def) >= 1 {
			progress.Status = models.GoalStatusComplete
			res.CompletedNow = append(res.CompletedNow, goalID)
			slog.Info("Tracker.Process: goal completed", "callID", session.CallID, "goalID", goalID, "collected", len(progress.Collected))
		}
	}

	res.NextQuestion = t.nextQuestion(session)
	res.MaxCompletion, res.AllComplete = t.progressSummary(session)
	return res
}

// progressSummary reports the highest completion fraction across the
// session's tracked goals and whether every one of them is complete. A
// session with no tracked goals reads as 0 and not-all-complete.
func (t *Tracker) progressSummary(session *models.CallSession) (float64, bool) {
	tracked := t.trackedOrder(session)
	if len(tracked) == 0 {
		return 0, false
	}
	var max float64
	all := true
	for _, goalID := range tracked {
		progress := session.Goals[goalID]
		if c := progress.Completion(t.definitions[goalID]); c > max {
			max = c
		}
		if progress.Status != models.GoalStatusComplete {
			all = false
		}
	}
	return max, all
}

// Completion returns the completion fraction for one goal on the session.
func (t *Tracker) Completion(session *models.CallSession, goalID string) (float64, error) {
	def, ok := t.definitions[goalID]
	if !ok {
		return 0, models.ErrGoalNotFound
	}
	progress, ok := session.Goals[goalID]
	if !ok {
		return 0, models.ErrGoalNotFound
	}
	return progress.Completion(def), nil
}

// trackedOrder returns the session's goal ids in tracker declaration order
// so processing and question selection stay deterministic.
func (t *Tracker) trackedOrder(session *models.CallSession) []string {
	var ids []string
	for _, id := range t.order {
		if _, ok := session.Goals[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// nextQuestion picks the follow-up question for the first missing required
// field of the first incomplete goal.
func (t *Tracker) nextQuestion(session *models.CallSession) string {
	for _, goalID := range t.trackedOrder(session) {
		progress := session.Goals[goalID]
		if progress.Status == models.GoalStatusComplete {
			continue
		}
		def := t.definitions[goalID]
		missing := progress.MissingFields(def)
		if len(missing) == 0 {
			continue
		}
		field := missing[0]
		if hint, ok := def.PromptHints[field]; ok {
			return hint
		}
		if q, ok := genericQuestions[field]; ok {
			return q
		}
		return "Could you tell me your " + strings.ReplaceAll(field, "_", " ") + "?"
	}
	return ""
}

// extractField applies the field's pattern to text and returns the first
// match, or "" when the field has no pattern or nothing matched.
func extractField(field, text string) string {
	if field == "decision_maker" {
		return extractDecisionMaker(text)
	}
	pattern, ok := fieldPatterns[field]
	if !ok {
		return ""
	}
	if submatchFields[field] {
		m := pattern.FindStringSubmatch(text)
		if len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return strings.TrimSpace(pattern.FindString(text))
}

// extractDecisionMaker reads purchase authority from the utterance: a
// decision-making title means yes, deferring to someone else means no, and
// anything else stays uncollected.
func extractDecisionMaker(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "need to check") || strings.Contains(lower, "ask my") {
		return "no"
	}
	for _, role := range decisionMakerRoles {
		if strings.Contains(lower, role) {
			return "yes"
		}
	}
	return ""
}
